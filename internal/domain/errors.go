package domain

import (
	"errors"
	"fmt"
)

// Invocation error kinds. Every failure that crosses the capability boundary
// wraps exactly one of these.
var (
	ErrUnknownCapability = fmt.Errorf("unknown capability")
	ErrInvalidInput      = fmt.Errorf("invalid input")
	ErrUpstream          = fmt.Errorf("upstream error")
	ErrInternal          = fmt.Errorf("internal error")
)

// Startup errors. These never reach a caller; the process exits instead.
var (
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
	ErrMissingAPIKey = fmt.Errorf("%w: PERPLEXITY_API_KEY is not set", ErrConfigLoad)
	ErrDecryption    = fmt.Errorf("decryption failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Get")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// UpstreamError is returned when the search API answers with a non-success
// status. Body is the response body, verbatim.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// ErrorCode is a machine-parseable error category.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeUnknownCapability ErrorCode = "UNKNOWN_CAPABILITY"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeUpstream          ErrorCode = "UPSTREAM_ERROR"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrUnknownCapability: CodeUnknownCapability,
	ErrInvalidInput:      CodeInvalidInput,
	ErrUpstream:          CodeUpstream,
	ErrInternal:          CodeInternal,
	ErrConfigLoad:        CodeConfigLoad,
	ErrDecryption:        CodeDecryption,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}

// invocationKinds are the only kinds an invocation may fail with.
var invocationKinds = []error{
	ErrUnknownCapability,
	ErrInvalidInput,
	ErrUpstream,
	ErrInternal,
}

// Classify normalizes err into one of the invocation error kinds.
// Errors already carrying a kind are returned unchanged; anything else is
// wrapped as ErrInternal under op. Returns nil for nil.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range invocationKinds {
		if errors.Is(err, kind) {
			return err
		}
	}
	return NewDomainError(op, ErrInternal, err.Error())
}
