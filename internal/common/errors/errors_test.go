package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingLogger struct {
	msgs   []string
	fields []map[string]interface{}
}

func (c *capturingLogger) Error(msg string, fields map[string]interface{}) {
	c.msgs = append(c.msgs, msg)
	c.fields = append(c.fields, fields)
}

func TestGetRetryCount(t *testing.T) {
	assert.Equal(t, 2, GetRetryCount(ErrCodeRootCreateFailed))
	assert.Equal(t, 2, GetRetryCount(ErrCodeRootMissingID))
	assert.Equal(t, 1, GetRetryCount(ErrCodeDependentWriteFailed))
	assert.Equal(t, 0, GetRetryCount(ErrCodeRemoteFetchFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeAPIURLInvalid))
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeNoConnection:          "CONNECTIVITY",
		ErrCodeConnectionCheckFailed: "CONNECTIVITY",
		ErrCodeRootCreateFailed:      "PUSH",
		ErrCodeDependentWriteFailed:  "PUSH",
		ErrCodeRemoteFetchFailed:     "PULL",
		ErrCodeStorageWriteFailed:    "STORAGE",
		ErrCodeRecordNotFound:        "STORAGE",
		ErrCodeAPIURLInvalid:         "SETTINGS",
		ErrCodeInternal:              "GENERAL",
	}
	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}

func TestAsStandard_Wrapped(t *testing.T) {
	inner := NewRootMissingIDError("3").WithMetadata("endpoint", "/clientes")
	wrapped := fmt.Errorf("push: %w", inner)

	got, ok := AsStandard(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeRootMissingID, got.Code)
	assert.Equal(t, "/clientes", got.Metadata["endpoint"])
}

func TestErrorHandler_Handle(t *testing.T) {
	log := &capturingLogger{}
	h := NewErrorHandler(log)

	assert.Nil(t, h.Handle("push", nil, nil))

	stdErr := h.Handle("pull", fmt.Errorf("plain failure"), map[string]interface{}{"collection": "estados"})
	require.NotNil(t, stdErr)
	assert.Equal(t, ErrCodeInternal, stdErr.Code)
	require.Len(t, log.fields, 1)
	assert.Equal(t, "pull", log.fields[0]["operation"])
	assert.Equal(t, "estados", log.fields[0]["collection"])

	stdErr = h.Handle("push", NewDependentWriteFailedError("categorias", fmt.Errorf("status 500")), nil)
	assert.Equal(t, ErrCodeDependentWriteFailed, stdErr.Code)
	assert.Equal(t, 1, log.fields[1]["retries"])
	assert.Equal(t, "PUSH", log.fields[1]["errorCategory"])
}

func TestErrorHandler_LogsConfiguredRetries(t *testing.T) {
	tests := []struct {
		name string
		err  *StandardError
		set  map[ErrorCode]int
		want int
	}{
		{
			name: "default budget",
			err:  NewRootCreateFailedError("1", fmt.Errorf("status 500")),
			want: 2,
		},
		{
			name: "configured budget wins",
			err:  NewRootCreateFailedError("1", fmt.Errorf("status 500")),
			set:  map[ErrorCode]int{ErrCodeRootCreateFailed: 5},
			want: 5,
		},
		{
			name: "zero retries configured",
			err:  NewDependentWriteFailedError("categorias", fmt.Errorf("status 500")),
			set:  map[ErrorCode]int{ErrCodeDependentWriteFailed: 0},
			want: 0,
		},
		{
			name: "other codes keep their default",
			err:  NewDependentWriteFailedError("categorias", fmt.Errorf("status 500")),
			set:  map[ErrorCode]int{ErrCodeRootCreateFailed: 4},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &capturingLogger{}
			h := NewErrorHandler(log)
			for code, n := range tt.set {
				h.WithRetries(code, n)
			}
			h.Handle("push", tt.err, nil)
			require.Len(t, log.fields, 1)
			assert.Equal(t, tt.want, log.fields[0]["retries"])
		})
	}
}
