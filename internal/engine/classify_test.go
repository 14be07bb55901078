package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		exitCode int
		output   string
		cause    error
		want     FailureKind
	}{
		{name: "noperm exit", exitCode: 77, want: FailureAuth},
		{name: "tempfail exit", exitCode: 75, want: FailureQuota},
		{name: "unavailable exit", exitCode: 69, want: FailureNetwork},
		{name: "401 text", exitCode: 1, output: "Error: request failed with status 401", want: FailureAuth},
		{name: "invalid key", exitCode: 1, output: "Invalid API key provided", want: FailureAuth},
		{name: "rate limit", exitCode: 1, output: "rate limit reached for requests", want: FailureQuota},
		{name: "429", exitCode: 1, output: "HTTP 429 Too Many Requests", want: FailureQuota},
		{name: "dial", exitCode: 1, output: "dial tcp 10.0.0.1:443: connect: connection refused", want: FailureNetwork},
		{name: "dns", exitCode: 1, output: "lookup api.example.com: no such host", want: FailureNetwork},
		{name: "deadline", exitCode: -1, cause: fmt.Errorf("run: %w", context.DeadlineExceeded), want: FailureNetwork},
		{name: "cancel wins over exit code", exitCode: 77, cause: context.Canceled, want: FailureNetwork},
		{name: "unclassified", exitCode: 2, output: "panic: index out of range", want: FailureUnknown},
		{name: "cause text", exitCode: -1, cause: errors.New("unauthorized"), want: FailureAuth},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.exitCode, tc.output, tc.cause)
			assert.Equal(t, tc.want, got.Kind)
			assert.Equal(t, tc.exitCode, got.ExitCode)
		})
	}
}

func TestClassify_MessageIsLastLine(t *testing.T) {
	got := Classify(1, "starting\nloading config\n\nError: 401 Unauthorized\n", nil)
	assert.Equal(t, "Error: 401 Unauthorized", got.Message)
	assert.Equal(t, "translation engine failed (authentication): Error: 401 Unauthorized", got.Error())

	long := Classify(1, strings.Repeat("x", 1000), nil)
	assert.Len(t, long.Message, maxMessageLen+3)
}

func TestClassify_LongMessageKeepsWholeRunes(t *testing.T) {
	// "é" is two bytes, so the limit falls inside a rune
	got := Classify(1, "x"+strings.Repeat("é", 400), nil)

	assert.True(t, utf8.ValidString(got.Message))
	assert.True(t, strings.HasSuffix(got.Message, "é..."))
	assert.Len(t, got.Message, maxMessageLen-1+3)
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := errors.New("exit status 75")
	err := Classify(75, "", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "exit status 75", err.Message)
	assert.True(t, err.Kind.Retryable())
	assert.False(t, FailureAuth.Retryable())
}
