package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/formtrack/pkg/pose"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	fn := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func TestLoadJSON(t *testing.T) {
	fn := writeFile(t, "formtrack.json", `{
		"serverUrl": "http://localhost:8090",
		"apiKey": "k",
		"activity": "squat",
		"analysisPerSecond": 4,
		"smoothing": {"enabled": true, "minCutoff": 0.5, "beta": 10, "dCutoff": 1}
	}`)
	cfg, err := LoadConfig(fn)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.AnalysisPerSecond)
	require.Equal(t, 1000, cfg.BufferCapacity)
	require.Equal(t, 480, cfg.ResolutionWidth)
	require.True(t, cfg.BeginRecordingImmediately)
	require.True(t, cfg.Recording())

	opts := cfg.SessionOptions()
	require.Equal(t, "squat", opts.Activity)
	require.Equal(t, 4, opts.Upload.PerSecond)
	require.Equal(t, 0.5, opts.Smoothing.MinCutoff)
	require.False(t, opts.DisableSmoothing)
	require.Equal(t, pose.NormalizedBounds, opts.Bounds)
}

func TestLoadYAML(t *testing.T) {
	fn := writeFile(t, "formtrack.yaml", `
activity: deadlift
pixelCoordinates: true
resolutionWidth: 720
resolutionHeight: 1280
beginRecordingImmediately: false
smoothing:
  enabled: false
analysisServer:
  apiKeys: [a, b]
`)
	cfg, err := LoadConfig(fn)
	require.NoError(t, err)
	require.Equal(t, "deadlift", cfg.Activity)
	require.False(t, cfg.Recording())
	require.Equal(t, []string{"a", "b"}, cfg.AnalysisServer.APIKeys)
	require.Equal(t, ":8090", cfg.AnalysisServer.Listen)

	opts := cfg.SessionOptions()
	require.True(t, opts.DisableSmoothing)
	require.False(t, opts.BeginRecording)
	require.Equal(t, pose.PixelBounds(720, 1280), opts.Bounds)
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.AnalysisPerSecond = 0
	cfg.ServerURL = "http://x"
	err := cfg.Validate()
	require.ErrorContains(t, err, "analysisPerSecond")
	require.ErrorContains(t, err, "apiKey")

	_, err = LoadConfig(writeFile(t, "bad.json", `{"bufferCapacity": -1}`))
	require.ErrorContains(t, err, "bufferCapacity")

	_, err = LoadConfig(writeFile(t, "bad.json", `{`))
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
