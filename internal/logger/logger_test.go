package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TabarBaptiste/masseuse/internal/config"
)

func TestNewWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()

	log, err := New(config.LogConfig{Path: dir, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	require.NoError(t, err)

	log.Info("booking created")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "booking created")
}

func TestNewWithoutFile(t *testing.T) {
	log, err := New(config.LogConfig{Debug: true})
	require.NoError(t, err)
	assert.NotNil(t, log)
}
