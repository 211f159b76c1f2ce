// ABOUTME: Structured error context for enhanced error reporting
// ABOUTME: Provides error codes, categories, the fetch error taxonomy, and slog integration

package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"unicode/utf8"
)

// Error category constants.
const (
	CategoryTransient = "transient"  // Retryable errors (network, timeout).
	CategoryPermanent = "permanent"  // Non-retryable errors (malformed data).
	CategoryUserError = "user_error" // Errors caused by caller input or configuration.
)

// Error code constants. Codes identify the failure class across logs, API
// responses, and per-item batch results.
const (
	CodeAuthFailed     = "AUTH_FAILED"     // Missing credential or rejected token exchange.
	CodeUpstreamStatus = "UPSTREAM_STATUS" // Upstream returned a non-success HTTP status.
	CodeFetchTimeout   = "FETCH_TIMEOUT"   // Deadline exceeded talking to an upstream.
	CodeParseFailed    = "PARSE_FAILED"    // Response body is not usable JSON or lacks required shape.
	CodeContentType    = "CONTENT_TYPE"    // Upstream served a non-JSON content type.
	CodeCacheIO        = "CACHE_IO"        // Local cache read/write failure.
	CodeConfigInvalid  = "CONFIG_INVALID"  // Configuration missing or failed validation.
)

// ErrorContext provides structured context for errors.
type ErrorContext struct {
	// Code is a unique error identifier (e.g., "FETCH_TIMEOUT").
	Code string `json:"code"`

	// Category classifies the error type (transient, permanent, user_error).
	Category string `json:"category"`

	// Operation is the operation that failed (e.g., "fetch_station_status").
	Operation string `json:"operation"`

	// StackTrace contains the call stack if captured.
	StackTrace string `json:"stack_trace,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`

	// Err is the underlying error if any.
	Err error `json:"-"`
}

// UpstreamDetails carries the HTTP evidence for an upstream failure.
type UpstreamDetails struct {
	StatusCode int    `json:"status_code"`
	Excerpt    string `json:"excerpt,omitempty"`
}

// NewErrorContext creates a new error context.
func NewErrorContext(code, category, operation string) *ErrorContext {
	return &ErrorContext{
		Code:      code,
		Category:  category,
		Operation: operation,
	}
}

// NewAuthError reports a missing credential or a failed token exchange.
func NewAuthError(operation string, err error) *ErrorContext {
	return NewErrorContext(CodeAuthFailed, CategoryPermanent, operation).WithError(err)
}

// NewUpstreamError reports a non-success HTTP status from an upstream,
// carrying the status code and a truncated body excerpt as evidence.
func NewUpstreamError(operation string, statusCode int, excerpt string) *ErrorContext {
	return NewErrorContext(CodeUpstreamStatus, CategoryTransient, operation).
		WithDetails(&UpstreamDetails{StatusCode: statusCode, Excerpt: excerpt}).
		WithError(fmt.Errorf("upstream returned status %d", statusCode))
}

// NewTimeoutError reports a deadline exceeded against an upstream.
func NewTimeoutError(operation string, err error) *ErrorContext {
	return NewErrorContext(CodeFetchTimeout, CategoryTransient, operation).WithError(err)
}

// NewParseError reports an unusable response body or document shape.
func NewParseError(operation string, err error) *ErrorContext {
	return NewErrorContext(CodeParseFailed, CategoryPermanent, operation).WithError(err)
}

// NewContentTypeError reports a response served with a non-JSON content type.
func NewContentTypeError(operation, contentType string) *ErrorContext {
	return NewErrorContext(CodeContentType, CategoryPermanent, operation).
		WithError(fmt.Errorf("unexpected content type %q", contentType))
}

// NewCacheError reports a local cache read or write failure.
func NewCacheError(operation string, err error) *ErrorContext {
	return NewErrorContext(CodeCacheIO, CategoryTransient, operation).WithError(err)
}

// WithStack captures the current call stack.
func (e *ErrorContext) WithStack() *ErrorContext {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(2, pcs[:])

	var sb strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		// Skip runtime frames.
		if strings.Contains(frame.Function, "runtime.") {
			if !more {
				break
			}
			continue
		}
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	e.StackTrace = sb.String()
	return e
}

// WithDetails adds additional context details.
func (e *ErrorContext) WithDetails(details any) *ErrorContext {
	e.Details = details
	return e
}

// WithError attaches the underlying error.
func (e *ErrorContext) WithError(err error) *ErrorContext {
	e.Err = err
	return e
}

// IsRetryable returns true if the error is retryable.
func (e *ErrorContext) IsRetryable() bool {
	return e.Category == CategoryTransient
}

// Error implements the error interface.
func (e *ErrorContext) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Category, e.Operation, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Operation)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ErrorContext) Unwrap() error {
	return e.Err
}

// LogValue implements slog.LogValuer for structured logging.
func (e *ErrorContext) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", e.Code),
		slog.String("category", e.Category),
		slog.String("operation", e.Operation),
		slog.Bool("is_retryable", e.IsRetryable()),
	}

	if e.StackTrace != "" {
		attrs = append(attrs, slog.String("stack_trace", e.StackTrace))
	}

	if e.Details != nil {
		attrs = append(attrs, slog.Any("details", e.Details))
	}

	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}

	return slog.GroupValue(attrs...)
}

// ErrCode returns the structured error code, or "" for plain errors.
func ErrCode(err error) string {
	var ec *ErrorContext
	if errors.As(err, &ec) {
		return ec.Code
	}
	return ""
}

// IsAuthError reports whether err is a credential or token-exchange failure.
func IsAuthError(err error) bool { return ErrCode(err) == CodeAuthFailed }

// IsUpstreamError reports whether err carries a non-success upstream status.
func IsUpstreamError(err error) bool { return ErrCode(err) == CodeUpstreamStatus }

// IsTimeout reports whether err is an upstream deadline failure.
func IsTimeout(err error) bool { return ErrCode(err) == CodeFetchTimeout }

// IsParseError reports whether err is a malformed-body failure.
func IsParseError(err error) bool { return ErrCode(err) == CodeParseFailed }

// IsContentTypeError reports whether err is a non-JSON content-type failure.
func IsContentTypeError(err error) bool { return ErrCode(err) == CodeContentType }

// IsCacheError checks for a local cache read/write failure.
func IsCacheError(err error) bool { return ErrCode(err) == CodeCacheIO }

// UpstreamStatusCode extracts the HTTP status carried by an upstream error.
func UpstreamStatusCode(err error) (int, bool) {
	var ec *ErrorContext
	if !errors.As(err, &ec) || ec.Code != CodeUpstreamStatus {
		return 0, false
	}
	if d, ok := ec.Details.(*UpstreamDetails); ok {
		return d.StatusCode, true
	}
	return 0, false
}

// ExcerptLimit bounds upstream body excerpts carried inside errors.
const ExcerptLimit = 256

// BodyExcerpt returns at most ExcerptLimit bytes of body for use in
// error payloads, dropping a trailing rune split by the cut.
func BodyExcerpt(body []byte) string {
	if len(body) <= ExcerptLimit {
		return string(body)
	}
	b := body[:ExcerptLimit]
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return string(b)
}
