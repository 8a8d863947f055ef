// internal/common/errors/handler.go
package errors

import (
	"time"
)

// ErrorHandler normalizes failures from sync operations and logs them with
// their category and retry budget.
type ErrorHandler struct {
	logger  Logger
	retries map[ErrorCode]int
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// WithRetries records the retry budget a caller actually applies to code,
// replacing the default from GetRetryCount in logged failures.
func (h *ErrorHandler) WithRetries(code ErrorCode, n int) *ErrorHandler {
	if h.retries == nil {
		h.retries = make(map[ErrorCode]int)
	}
	h.retries[code] = n
	return h
}

// Handle logs err under the given operation and returns its normalized form.
func (h *ErrorHandler) Handle(operation string, err error, fields map[string]interface{}) *StandardError {
	if err == nil {
		return nil
	}
	stdErr := h.normalizeError(err)
	h.logError(operation, stdErr, fields)
	return stdErr
}

func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *ErrorHandler) retryCount(code ErrorCode) int {
	if n, ok := h.retries[code]; ok {
		return n
	}
	return GetRetryCount(code)
}

func (h *ErrorHandler) logError(operation string, stdErr *StandardError, extra map[string]interface{}) {
	fields := map[string]interface{}{
		"operation":     operation,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       h.retryCount(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	h.logger.Error("sync operation failed", fields)
}
