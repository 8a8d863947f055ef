package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeNoConnection          ErrorCode = "NO_CONNECTION"
	ErrCodeConnectionCheckFailed ErrorCode = "CONNECTION_CHECK_FAILED"

	ErrCodeRootCreateFailed     ErrorCode = "ROOT_CREATE_FAILED"
	ErrCodeRootMissingID        ErrorCode = "ROOT_MISSING_ID"
	ErrCodeDependentWriteFailed ErrorCode = "DEPENDENT_WRITE_FAILED"

	ErrCodeRemoteFetchFailed ErrorCode = "REMOTE_FETCH_FAILED"
	ErrCodeCacheLoadFailed   ErrorCode = "CACHE_LOAD_FAILED"

	ErrCodeStorageWriteFailed ErrorCode = "STORAGE_WRITE_FAILED"
	ErrCodeStorageReadCorrupt ErrorCode = "STORAGE_READ_CORRUPT"

	ErrCodeAPIURLInvalid      ErrorCode = "API_URL_INVALID"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeRecordNotFound     ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key to the error and returns it for chaining.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewNoConnectionError() *StandardError {
	return newError(ErrCodeNoConnection, "Device is offline", "", true)
}

func NewConnectionCheckFailedError(err error) *StandardError {
	return newError(ErrCodeConnectionCheckFailed, "Connectivity check failed", err.Error(), true)
}

func NewRootCreateFailedError(localID string, err error) *StandardError {
	return newError(ErrCodeRootCreateFailed, "Remote client creation failed",
		fmt.Sprintf("idLocal: %s, error: %s", localID, err.Error()), true)
}

func NewRootMissingIDError(localID string) *StandardError {
	return newError(ErrCodeRootMissingID, "Remote client creation returned no identifier",
		fmt.Sprintf("idLocal: %s", localID), true)
}

func NewDependentWriteFailedError(step string, err error) *StandardError {
	return newError(ErrCodeDependentWriteFailed, "Dependent write failed",
		fmt.Sprintf("step: %s, error: %s", step, err.Error()), true)
}

func NewRemoteFetchFailedError(collection string, err error) *StandardError {
	return newError(ErrCodeRemoteFetchFailed, "Remote collection fetch failed",
		fmt.Sprintf("collection: %s, error: %s", collection, err.Error()), true)
}

func NewCacheLoadFailedError(err error) *StandardError {
	return newError(ErrCodeCacheLoadFailed, "Master data load failed", err.Error(), true)
}

func NewStorageWriteFailedError(name string, err error) *StandardError {
	return newError(ErrCodeStorageWriteFailed, "Storage write failed",
		fmt.Sprintf("name: %s, error: %s", name, err.Error()), false)
}

func NewStorageReadCorruptError(name string, err error) *StandardError {
	return newError(ErrCodeStorageReadCorrupt, "Stored document is not valid JSON",
		fmt.Sprintf("name: %s, error: %s", name, err.Error()), false)
}

func NewAPIURLInvalidError(url string, details string) *StandardError {
	return newError(ErrCodeAPIURLInvalid, "API base URL did not answer the probe",
		fmt.Sprintf("url: %s, %s", url, details), false)
}

func NewInvalidCredentialsError() *StandardError {
	return newError(ErrCodeInvalidCredentials, "Invalid username or password", "", false)
}

func NewRecordNotFoundError(id string) *StandardError {
	return newError(ErrCodeRecordNotFound, "Client record not found", fmt.Sprintf("idCliente: %s", id), false)
}

// GetRetryCount is the default number of extra attempts a remote call of this
// kind gets after the first one. Configuration defaults are derived from it.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRootCreateFailed, ErrCodeRootMissingID:
		return 2
	case ErrCodeDependentWriteFailed:
		return 1
	default:
		return 0
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONNECTION"):
		return "CONNECTIVITY"
	case strings.HasPrefix(codeStr, "ROOT") || strings.HasPrefix(codeStr, "DEPENDENT"):
		return "PUSH"
	case strings.Contains(codeStr, "FETCH") || strings.Contains(codeStr, "CACHE"):
		return "PULL"
	case strings.HasPrefix(codeStr, "STORAGE") || strings.Contains(codeStr, "RECORD"):
		return "STORAGE"
	case strings.Contains(codeStr, "URL") || strings.Contains(codeStr, "CREDENTIALS"):
		return "SETTINGS"
	default:
		return "GENERAL"
	}
}

// AsStandard unwraps err into a StandardError, if one is in the chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}
