package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind represents different categories of errors.
type ErrorKind string

const (
	KindUpstream   ErrorKind = "upstream"
	KindProtocol   ErrorKind = "protocol"
	KindWrite      ErrorKind = "write"
	KindValidation ErrorKind = "validation"
	KindConfig     ErrorKind = "config"
	KindInternal   ErrorKind = "internal"
)

// StreamError is a structured error type with context.
type StreamError struct {
	Kind      ErrorKind
	Code      string
	Op        string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Retryable bool
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Op != "" {
		parts = append(parts, e.Op+":")
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *StreamError) Is(target error) bool {
	var t *StreamError
	if errors.As(target, &t) {
		return e.Kind == t.Kind && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *StreamError) WithContext(key string, value interface{}) *StreamError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithOp records the operation that failed.
func (e *StreamError) WithOp(op string) *StreamError {
	e.Op = op

	return e
}

// Error creation functions

// NewUpstreamError creates an error for a failure reading from the token source.
func NewUpstreamError(code, message string, cause error) *StreamError {
	return &StreamError{
		Kind:      KindUpstream,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: true,
	}
}

// NewProtocolError creates an error for malformed upstream frames.
func NewProtocolError(code, message string, cause error) *StreamError {
	return &StreamError{
		Kind:    KindProtocol,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *StreamError {
	return &StreamError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *StreamError {
	return &StreamError{
		Kind:    KindInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRetryable checks if an error is worth retrying by the caller.
func IsRetryable(err error) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Retryable
	}

	return false
}

// HasKind reports whether any StreamError in err's chain has the given kind.
func HasKind(err error, kind ErrorKind) bool {
	for err != nil {
		var se *StreamError
		if !errors.As(err, &se) {
			return false
		}
		if se.Kind == kind {
			return true
		}
		err = se.Cause
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level matching the kinds in its chain.
// Cancellation by the client is not an error and is ignored.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil || errors.Is(err, context.Canceled) {
		return
	}

	var se *StreamError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch {
	case HasKind(err, KindWrite):
		// Downstream went away; nothing the server can do about it.
		h.logger.Warn(ctx, err, "Downstream write failed",
			"kind", se.Kind,
			"code", se.Code)
	case HasKind(err, KindValidation), HasKind(err, KindConfig):
		h.logger.Warn(ctx, err, "Rejected request",
			"kind", se.Kind,
			"code", se.Code)
	default:
		h.logger.Error(ctx, err, "Stream failed",
			"kind", se.Kind,
			"code", se.Code,
			"op", se.Op,
			"retryable", IsRetryable(err),
			"root_cause", GetRootCause(err).Error())
	}
}

// Common error codes.
const (
	ErrCodeUpstreamRead    = "ERR_UPSTREAM_READ"
	ErrCodeUpstreamStatus  = "ERR_UPSTREAM_STATUS"
	ErrCodeUpstreamRequest = "ERR_UPSTREAM_REQUEST"
	ErrCodeMalformedFrame  = "ERR_MALFORMED_FRAME"
	ErrCodeDownstreamWrite = "ERR_DOWNSTREAM_WRITE"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeUnknownCharset  = "ERR_UNKNOWN_CHARSET"
	ErrCodeInternalError   = "ERR_INTERNAL"
)

// ValidationError interface for field-specific validation errors.
type ValidationError interface {
	error
	Field() string
	Value() interface{}
	Suggestions() []string
}

// FieldValidationError implements ValidationError for specific field errors.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
	HelpText     []string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// Field returns the field name that failed validation.
func (fve *FieldValidationError) Field() string {
	return fve.FieldName
}

// Value returns the invalid value.
func (fve *FieldValidationError) Value() interface{} {
	return fve.FieldValue
}

// Suggestions returns helpful suggestions for fixing the error.
func (fve *FieldValidationError) Suggestions() []string {
	return fve.HelpText
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
		HelpText:     suggestions,
	}
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	if len(vec.Errors) == 0 {
		return "no validation errors"
	}
	if len(vec.Errors) == 1 {
		return vec.Errors[0].Error()
	}

	return fmt.Sprintf("validation failed with %d errors", len(vec.Errors))
}

// Add adds a validation error to the collection.
func (vec *ValidationErrorCollection) Add(err ValidationError) {
	vec.Errors = append(vec.Errors, err)
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) {
	vec.Add(NewFieldValidationError(field, value, message, suggestions...))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// ToStreamError converts the validation collection to a StreamError.
func (vec *ValidationErrorCollection) ToStreamError() *StreamError {
	if !vec.HasErrors() {
		return nil
	}

	var messages []string
	context := make(map[string]interface{})

	for _, err := range vec.Errors {
		messages = append(messages, err.Error())
		context[err.Field()] = map[string]interface{}{
			"value":       err.Value(),
			"suggestions": err.Suggestions(),
		}
	}

	return &StreamError{
		Kind:    KindConfig,
		Code:    ErrCodeConfigInvalid,
		Message: strings.Join(messages, "; "),
		Context: context,
	}
}
