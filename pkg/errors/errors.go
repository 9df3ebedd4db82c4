package errors

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound              = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation            = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal              = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrAuthenticity          = NewError("AUTHENTICITY_FAILED", "webhook authenticity check failed", http.StatusUnauthorized)
	ErrThrottled             = NewError("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrPayloadTooLarge       = NewError("PAYLOAD_TOO_LARGE", "payload too large", http.StatusRequestEntityTooLarge)
	ErrTransientProcessing   = NewError("TRANSIENT_PROCESSING_ERROR", "processing temporarily failed", http.StatusServiceUnavailable)
	ErrPermanentProcessing   = NewError("PERMANENT_PROCESSING_ERROR", "event rejected by processor", http.StatusUnprocessableEntity)
	ErrServiceUnavailable    = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
	ErrStoreDegraded         = NewError("STORE_DEGRADED", "durable store unavailable, using in-memory fallback", http.StatusInternalServerError)
	ErrNotificationAbandoned = NewError("NOTIFICATION_ABANDONED", "notification abandoned", http.StatusInternalServerError)
	ErrNotificationQueueFull = NewError("NOTIFICATION_QUEUE_FULL", "notification queue is full", http.StatusServiceUnavailable)
	ErrNotificationClosed    = NewError("NOTIFIER_CLOSED", "notifier is shutting down", http.StatusServiceUnavailable)
	ErrCircuitOpen           = NewError("CIRCUIT_OPEN", "circuit breaker is open", http.StatusServiceUnavailable)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so sentinel comparisons survive WithCause/WithDetail copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return e.Code == ErrTransientProcessing.Code || e.Code == ErrServiceUnavailable.Code || e.Code == ErrCircuitOpen.Code
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) WithMessage(message string) *Error {
	err := *e
	err.Message = message
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func HasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsValidation(err error) bool {
	return HasCode(err, ErrValidation.Code)
}

func IsAuthenticity(err error) bool {
	return HasCode(err, ErrAuthenticity.Code)
}

func IsThrottled(err error) bool {
	return HasCode(err, ErrThrottled.Code)
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// NewErrorID returns an opaque id in the form ERR_XXXXXXXX used to correlate a response with its log line.
func NewErrorID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "ERR_00000000"
	}
	return "ERR_" + strings.ToUpper(hex.EncodeToString(b))
}

// ToErrorResponse renders err as the public JSON body. Internal errors never expose their details.
func ToErrorResponse(err error, errorID string) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	if errorID != "" {
		response["error_id"] = errorID
	}

	if len(appErr.Details) > 0 && appErr.Status < http.StatusInternalServerError {
		response["details"] = appErr.Details
	}

	return response
}
