package logging

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_LevelAndFormat(t *testing.T) {
	logger := log.New()

	closer, err := Setup(logger, Options{Level: "debug", Format: "json"})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, log.DebugLevel, logger.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, logger.Formatter)
}

func TestSetup_BadLevelFallsBackToInfo(t *testing.T) {
	logger := log.New()

	closer, err := Setup(logger, Options{Level: "loud"})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, log.InfoLevel, logger.GetLevel())
	assert.IsType(t, &log.TextFormatter{}, logger.Formatter)
}

func TestSetup_WritesRotatingFile(t *testing.T) {
	logger := log.New()
	path := filepath.Join(t.TempDir(), "logs", "fleet.log")

	closer, err := Setup(logger, Options{Level: "info", File: path})
	require.NoError(t, err)
	logger.WithField("vehicle", "MH01AB1234").Info("Vehicle added")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Vehicle added")
	assert.Contains(t, string(data), "MH01AB1234")
}
