package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/contextual-meta-translator/internal/engine"
	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

type ErrorType int

const (
	ErrAuthentication ErrorType = iota
	ErrQuotaExceeded
	ErrNetwork
	ErrPerLanguage
	ErrStoreUnavailable
	ErrValidation
	ErrUnknown
)

// TranslationError is a classified failure of a translate or admin call.
// Batch-level failures carry whatever result could still be assembled in
// Partial: languages served from cache plus the error markers of the rest.
type TranslationError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
	Partial *Result
}

func NewError(errorType ErrorType, message string) *TranslationError {
	return &TranslationError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *TranslationError {
	return &TranslationError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *TranslationError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ctxParts []string
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

func (e *TranslationError) WithContext(key string, value any) *TranslationError {
	e.Context[key] = value
	return e
}

// Retryable reports whether the same request may succeed later.
func (e *TranslationError) Retryable() bool {
	return e.Type == ErrNetwork || e.Type == ErrQuotaExceeded
}

func (t ErrorType) String() string {
	switch t {
	case ErrAuthentication:
		return "Authentication"
	case ErrQuotaExceeded:
		return "QuotaExceeded"
	case ErrNetwork:
		return "Network"
	case ErrPerLanguage:
		return "PerLanguage"
	case ErrStoreUnavailable:
		return "StoreUnavailable"
	case ErrValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

// fromFailure maps an engine failure onto the service taxonomy.
func fromFailure(kind engine.FailureKind) ErrorType {
	switch kind {
	case engine.FailureAuth:
		return ErrAuthentication
	case engine.FailureQuota:
		return ErrQuotaExceeded
	case engine.FailureNetwork:
		return ErrNetwork
	default:
		return ErrUnknown
	}
}

// GetAdvice returns a short operator hint for err.
func GetAdvice(err *TranslationError) string {
	switch err.Type {
	case ErrAuthentication:
		return "Check ENGINE_API_KEY and that ENGINE_API_KEY_ENV names the variable the engine reads"
	case ErrQuotaExceeded:
		return "The engine provider rejected the request for rate or usage limits; retry later or raise the quota"
	case ErrNetwork:
		return "The engine could not reach its provider or the request deadline expired; retry the request"
	case ErrPerLanguage:
		return "Some languages produced no usable output; they are not cached and will be retried on the next request"
	case ErrStoreUnavailable:
		return "Check CACHE_DB_PATH permissions and free disk space"
	case ErrValidation:
		return "Use BCP-47 language codes such as es, fr or pt-BR"
	default:
		return "Inspect the engine output in the logs (LOG_LEVEL=debug)"
	}
}

// LogError logs err with its advice when it is a TranslationError.
func LogError(err error) {
	var terr *TranslationError
	if !errors.As(err, &terr) {
		log.Error("Unknown Error: %v", err)
		return
	}
	log.Error("Error Detail: %v\n advice: %s", terr, GetAdvice(terr))
}

func IsErrorType(err error, errorType ErrorType) bool {
	var terr *TranslationError
	if errors.As(err, &terr) {
		return terr.Type == errorType
	}
	return false
}
