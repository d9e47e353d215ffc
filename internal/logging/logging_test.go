package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name          string
		logsDir       string
		extensionName string
		want          string
	}{
		{
			name:          "basic path",
			logsDir:       "logs",
			extensionName: "onesync_core",
			want:          filepath.Join("logs", "onesync_core.20260212_213836.log"),
		},
		{
			name:          "relative path with dot",
			logsDir:       "./logs",
			extensionName: "onesync_core",
			want:          filepath.Join(".", "logs", "onesync_core.20260212_213836.log"),
		},
		{
			name:          "absolute path",
			logsDir:       filepath.Join("/var", "log", "onesync"),
			extensionName: "onesync_core",
			want:          filepath.Join("/var", "log", "onesync", "onesync_core.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.extensionName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenRotating_WritesLazily(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "onesync.log")

	w := OpenRotating(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	t.Cleanup(func() { w.Close() })

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file should not exist before first write")

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestNewGraylogWriter_UDP(t *testing.T) {
	// UDP dial succeeds without a listener
	w, err := NewGraylogWriter("127.0.0.1:12201")
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	assert.Equal(t, InstrumentationName, w.Facility)
}
