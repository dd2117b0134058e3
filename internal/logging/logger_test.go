package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNew_FileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ragchat.log")

	logger, err := New(Options{Level: "info", File: path, DebugMode: true})
	require.NoError(t, err)

	Named(logger, CategorySession).Info("state changed", zap.String("to", "idle"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"state changed"`)
	assert.Contains(t, string(data), `"logger":"session"`)
}

func TestNew_FileSinkDisabledWithoutDebugMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragchat.log")

	logger, err := New(Options{File: path})
	require.NoError(t, err)
	logger.Error("dropped")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNew_VerboseEnablesFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragchat.log")

	logger, err := New(Options{File: path, Verbose: true})
	require.NoError(t, err)
	logger.Debug("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
}

func TestNamed(t *testing.T) {
	assert.NotNil(t, Named(nil, CategoryGateway))

	core, logs := observer.New(zapcore.DebugLevel)
	Named(zap.New(core), CategoryGateway).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "gateway", logs.All()[0].LoggerName)
}
