package log

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_BuildsLoggerAndOpensLogFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	logger, logFile, err := New()
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.NotNil(t, logFile)
	defer logFile.Close()

	_, statErr := os.Stat(logFileName)
	assert.NoError(t, statErr)
}

func TestChangeLogLevel_DebugEnablesStacktrace(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	_, logFile, err := New()
	require.NoError(t, err)
	defer logFile.Close()

	logger, err := ChangeLogLevel(zap.DebugLevel)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.False(t, LogCfg.DisableStacktrace)
}
