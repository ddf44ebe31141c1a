package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func TestSetLevelPropagatesToDerivedLoggers(t *testing.T) {
	log, err := New(Config{Level: "info", Format: "console"})
	require.NoError(t, err)

	child := log.WithComponent("privacy").WithRequestID("req-1")
	assert.False(t, child.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, log.SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, child.Level())
	assert.True(t, child.Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, log.SetLevel("verbose"))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrubber.log")
	log, err := New(Config{Level: "info", Format: "json", File: &FileConfig{Enabled: true, Path: path}})
	require.NoError(t, err)
	log.Info("hello")
	assert.FileExists(t, path)
}
