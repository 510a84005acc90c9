package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/YKarmar/appledger/internal/config"
)

func TestNew(t *testing.T) {
	l, err := New(config.LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = New(config.LogConfig{Level: "info", Format: "xml"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
