package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_FieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test", LevelInfo)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.WithFields(map[string]interface{}{
		"device_hid": "dev-1",
		"account_id": "acct-1",
	}).WithError(errors.New("disk full")).Warn("upsert failed")

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "[WARN]")
	assert.Contains(t, line, "upsert failed")
	assert.Contains(t, line, `account_id=acct-1 device_hid=dev-1 error="disk full"`)
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger("test", LevelDebug)
	parent.SetOutput(&buf)

	_ = parent.WithField("transaction_hid", "tx-1")
	parent.Info("plain")

	assert.NotContains(t, buf.String(), "transaction_hid")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}
