package audit

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaport-io/gangway/pkg/observability"
)

func TestLogLogger_EmitsStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogLogger(observability.NewLogger(observability.InfoLevel, &buf))

	userID := int64(7)
	err := logger.LogHandshake(context.Background(), EventTypeHandshakeComplete,
		&userID, "spb", "sid-1", EventStatusSuccess, "handshake completed")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "sso.handshake_complete")
	assert.Contains(t, out, "sid-1")
	assert.Contains(t, out, "handshake completed")
}

func TestLogLogger_FailureLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogLogger(observability.NewLogger(observability.WarnLevel, &buf))

	// info-level success is filtered out at warn level
	require.NoError(t, logger.LogAuthentication(context.Background(),
		EventTypeAuthLogin, nil, "budi", EventStatusSuccess, "logged in"))
	assert.Empty(t, buf.String())

	require.NoError(t, logger.LogAuthentication(context.Background(),
		EventTypeAuthLoginFailed, nil, "budi", EventStatusFailure, "bad password"))
	assert.Contains(t, buf.String(), "auth.login_failed")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	assert.NoError(t, l.Log(context.Background(), &Event{}))
	assert.NoError(t, l.Close())
}
