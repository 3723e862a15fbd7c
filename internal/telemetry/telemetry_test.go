package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit_EmptyDSN(t *testing.T) {
	assert.NoError(t, Init("", "dev"))
	assert.False(t, Enabled())

	// Everything is a safe no-op while disabled.
	CaptureError(errors.New("boom"), map[string]string{"component": "test"})
	Breadcrumb("workflow", "transition")
	Flush()
	func() {
		defer RecoverPanic()
	}()
}

func TestInit_InvalidDSN(t *testing.T) {
	err := Init("not a dsn", "dev")
	assert.Error(t, err)
	assert.False(t, Enabled())
}

func TestCaptureError_Nil(t *testing.T) {
	enabled.Store(true)
	defer enabled.Store(false)
	CaptureError(nil, nil)
}
