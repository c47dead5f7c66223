package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, dev := range []bool{true, false} {
		log, err := New(dev)
		require.NoError(t, err)
		require.NotNil(t, log)
		log.Info("test message")
	}
}

func TestNewWithLevel(t *testing.T) {
	log, err := NewWithLevel(false, "warn")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	log, err = NewWithLevel(true, "")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel), "development defaults to debug")

	_, err = NewWithLevel(false, "loud")
	assert.Error(t, err)
}

func TestMust(t *testing.T) {
	assert.NotPanics(t, func() { Must(true) })
}
