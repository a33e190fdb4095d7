package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	p := DefaultLogPath()
	assert.Equal(t, "notemesh.log", filepath.Base(p))
	assert.Contains(t, p, ".notemesh")
	assert.Equal(t, DefaultLogDir(), filepath.Dir(p))
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a log file in a nested temp dir
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")
	cfg := Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 3}

	// When: logging through the configured logger
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Debug("indexed", slog.Int("files", 3))
	cleanup()

	// Then: the line is structured JSON
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"indexed"`)
	assert.Contains(t, string(data), `"files":3`)
}

func TestSetup_LevelFiltersLowerRecords(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestSetup_StderrOnlyWhenNoFile(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info", Format: "text"})
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, logger)
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, LevelFromString(in), in)
	}
}

func TestFindLogFile_Explicit(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.log")
	_, err := FindLogFile(p)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(p, []byte("{}\n"), 0o644))
	got, err := FindLogFile(p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a writer with 1MB limit
	logPath := filepath.Join(t.TempDir(), "rotate.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: writing well past the limit
	chunk := []byte(strings.Repeat("x", 400*1024) + "\n")
	for i := 0; i < 8; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	// Then: rotated files exist and never exceed maxFiles
	assert.FileExists(t, logPath+".1")
	assert.FileExists(t, logPath+".2")
	assert.NoFileExists(t, logPath+".3")
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := NewRotatingWriter(logPath, 10, 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 500, strings.Count(string(data), "line\n"))
}

func TestRotatingWriter_CloseTwice(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "c.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
