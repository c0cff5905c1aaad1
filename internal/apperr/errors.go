// In file: internal/apperr/errors.go
package apperr

import "fmt"

// Kind is one of the domain error categories spec.md §7 names.
type Kind string

const (
	KindAuthentication     Kind = "authentication_error"
	KindInvalidRequest     Kind = "invalid_request_error"
	KindConfiguration      Kind = "configuration_error"
	KindBackend            Kind = "backend_error"
	KindRateLimitExceeded  Kind = "rate_limit_exceeded"
	KindServiceUnavailable Kind = "service_unavailable"
	KindLoopDetection      Kind = "loop_detection_error"
	KindInternal           Kind = "llm_proxy_error"
)

// Error is the single domain error type every layer above a connector
// raises. Grounded on
// original_source/src/core/transport/fastapi/exception_adapters.py's
// map_domain_exception_to_http_exception, which dispatches HTTP status by
// exception class; here the class is folded into one Kind field instead of
// a subclass hierarchy, since Go has no exception classes to subtype.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int // explicit upstream status, 0 if not applicable
	ResetAt    int64 // unix seconds, for RateLimitExceeded's Retry-After
	Details    map[string]any
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

func InvalidRequest(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message}
}

func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// Backend wraps an upstream failure. statusCode is the upstream's HTTP
// status when known (0 otherwise); 401/403 are hidden behind 502 by the
// HTTP adapter unless explicitly surfaced.
func Backend(message string, statusCode int, err error) *Error {
	return &Error{Kind: KindBackend, Message: message, StatusCode: statusCode, Err: err}
}

func RateLimitExceeded(message string, resetAt int64) *Error {
	return &Error{Kind: KindRateLimitExceeded, Message: message, ResetAt: resetAt}
}

func ServiceUnavailable(message string) *Error {
	return &Error{Kind: KindServiceUnavailable, Message: message}
}

func LoopDetection(message string) *Error {
	return &Error{Kind: KindLoopDetection, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// HTTPStatus maps a Kind to its default HTTP status code per spec.md §7.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthentication:
		return 401
	case KindInvalidRequest, KindConfiguration:
		return 400
	case KindBackend:
		if e.StatusCode != 0 && e.StatusCode != 401 && e.StatusCode != 403 {
			return e.StatusCode
		}
		return 502
	case KindRateLimitExceeded:
		return 429
	case KindServiceUnavailable:
		return 503
	case KindLoopDetection:
		return 400
	default:
		return 500
	}
}

// Body renders the `{"error": {...}}` envelope the HTTP layer writes.
func (e *Error) Body() map[string]any {
	inner := map[string]any{
		"message": e.Message,
		"type":    string(e.Kind),
		"code":    e.HTTPStatus(),
	}
	if len(e.Details) > 0 {
		inner["details"] = e.Details
	}
	return map[string]any{"error": inner}
}
