package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// FailureKind classifies a process-level engine failure.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureAuth
	FailureQuota
	FailureNetwork
)

func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "authentication"
	case FailureQuota:
		return "quota_exceeded"
	case FailureNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Retryable reports whether repeating the same request may succeed.
func (k FailureKind) Retryable() bool {
	return k == FailureNetwork || k == FailureQuota
}

// Exit statuses from sysexits.h that engines use to report failure causes.
const (
	exitUnavailable = 69 // EX_UNAVAILABLE
	exitTempFail    = 75 // EX_TEMPFAIL
	exitNoPerm      = 77 // EX_NOPERM
)

var (
	authHints = []string{
		"401", "403", "unauthorized", "unauthenticated", "forbidden",
		"invalid api key", "invalid_api_key", "incorrect api key", "authentication",
	}
	quotaHints = []string{
		"429", "quota", "rate limit", "rate_limit", "ratelimit",
		"too many requests", "insufficient_quota", "billing",
	}
	networkHints = []string{
		"dial tcp", "connection refused", "connection reset", "no such host",
		"network is unreachable", "timeout", "timed out", "tls handshake",
		"unexpected eof", "temporary failure in name resolution", "503", "502",
	}
)

// EngineError is a process-level engine failure. Every language of the batch
// carries its Error() text as the error marker.
type EngineError struct {
	Kind     FailureKind
	ExitCode int
	Message  string
	Cause    error
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("translation engine failed (%s)", e.Kind)
	}
	return fmt.Sprintf("translation engine failed (%s): %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Classify maps an engine failure to a FailureKind. Context cancellation or
// deadline wins, then the exit status, then the text the engine printed.
// exitCode is -1 when the process did not exit normally.
func Classify(exitCode int, output string, cause error) *EngineError {
	ret := &EngineError{
		Kind:     FailureUnknown,
		ExitCode: exitCode,
		Message:  summarize(output),
		Cause:    cause,
	}
	if ret.Message == "" && cause != nil {
		ret.Message = cause.Error()
	}

	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		ret.Kind = FailureNetwork
		return ret
	}

	switch exitCode {
	case exitNoPerm:
		ret.Kind = FailureAuth
		return ret
	case exitTempFail:
		ret.Kind = FailureQuota
		return ret
	case exitUnavailable:
		ret.Kind = FailureNetwork
		return ret
	}

	text := strings.ToLower(output)
	if cause != nil {
		text += "\n" + strings.ToLower(cause.Error())
	}
	switch {
	case containsAny(text, authHints):
		ret.Kind = FailureAuth
	case containsAny(text, quotaHints):
		ret.Kind = FailureQuota
	case containsAny(text, networkHints):
		ret.Kind = FailureNetwork
	}
	return ret
}

func containsAny(text string, hints []string) bool {
	for _, hint := range hints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}

const maxMessageLen = 300

// summarize keeps the last non-empty line of the engine output, where CLIs
// usually print the fatal error.
func summarize(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > maxMessageLen {
			cut := maxMessageLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			line = line[:cut] + "..."
		}
		return line
	}
	return ""
}
