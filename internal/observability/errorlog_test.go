package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorLog_LineFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_log.txt")
	log, err := OpenErrorLog(path)
	require.NoError(t, err)
	defer func() { _ = log.Close() }()

	fixed := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	log.now = func() time.Time { return fixed }

	log.Errorf("failed to load page %s: %s", "https://example.com/x", "timeout")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"2025-03-14 15:09:26 - ERROR: failed to load page https://example.com/x: timeout\n",
		string(data))
}

func TestErrorLog_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_log.txt")

	first, err := OpenErrorLog(path)
	require.NoError(t, err)
	first.Errorf("run one")
	require.NoError(t, first.Close())

	// A second run must never truncate history.
	second, err := OpenErrorLog(path)
	require.NoError(t, err)
	second.Errorf("run two")
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run one")
	assert.Contains(t, string(data), "run two")
}
