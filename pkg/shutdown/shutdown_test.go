package shutdown

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pairdb/pkg/logger"
)

func TestWriteCrashReport(t *testing.T) {
	logger.Init()
	dbPath := t.TempDir()

	logPath, markerPath, err := WriteCrashReport(dbPath, "store open failed", errors.New("disk full"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dbPath, "state", "crash"), filepath.Dir(logPath))

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	body := string(b)
	require.Contains(t, body, "reason: store open failed")
	require.Contains(t, body, "error: disk full")
	require.Contains(t, body, "--- goroutine stacks ---")

	var m crashMarker
	b, err = os.ReadFile(markerPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, "store open failed", m.Reason)
	require.Equal(t, "disk full", m.Error)
	require.Equal(t, logPath, m.CrashLog)
	require.Equal(t, os.Getpid(), m.Pid)

	// no temp leftovers once the report is in place
	entries, err := os.ReadDir(filepath.Dir(logPath))
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}

func TestWriteCrashReportNilCause(t *testing.T) {
	logger.Init()

	_, markerPath, err := WriteCrashReport(t.TempDir(), "operator abort", nil)
	require.NoError(t, err)

	var m crashMarker
	b, err := os.ReadFile(markerPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &m))
	require.Empty(t, m.Error)
}
