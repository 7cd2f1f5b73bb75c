package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that credential-bearing attributes never reach the log output.
// Scope: Unit Test
// Security: Access tokens and app secrets must not leak into logs
// Expected: token/secret keys are replaced with [REDACTED]; other attributes are untouched.
// Test Case ID: LOG-01
func TestNew_RedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.Info("credentials updated",
		slog.String("access_token", "EAAG-live-token"),
		slog.String("app_secret", "shh"),
		TenantID("tenant-1"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, Redacted, rec["access_token"])
	assert.Equal(t, Redacted, rec["app_secret"])
	assert.Equal(t, "tenant-1", rec["tenant_id"])
	assert.NotContains(t, buf.String(), "EAAG-live-token")
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "text", Output: &buf})

	log.Info("dropped")
	log.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFanoutHandler_DeliversToEveryHandler(t *testing.T) {
	var a, b bytes.Buffer
	log := slog.New(NewFanoutHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)).With(Component("router"))

	log.Info("routed")

	assert.Contains(t, a.String(), "component=router")
	assert.Empty(t, b.String())
}

func TestAttrs_UseSharedKeys(t *testing.T) {
	assert.Equal(t, KeyTenantID, TenantID("tenant-1").Key)
	assert.Equal(t, KeyPhoneNumberID, PhoneNumberID("phone-123").Key)
	assert.Equal(t, int64(12), Duration(12).Value.Int64())
	assert.Equal(t, "probe", Probe("identity").Key)
	assert.Equal(t, "", Error(nil).Value.String())
	assert.Equal(t, "boom", Error(errors.New("boom")).Value.String())
}
