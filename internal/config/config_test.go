package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "null", cfg.Output.Type)
	assert.Equal(t, 1.0, cfg.Display.Scale)
	assert.True(t, cfg.Display.ScaleFilter)
	assert.Equal(t, "none", cfg.Display.VideoSplit)
	assert.Equal(t, 5*time.Second, cfg.OSD.PlayStateHold)
	assert.Equal(t, -18.0, cfg.Audio.LineupLevel)
	assert.Equal(t, 2, cfg.Audio.NumLevelMonitors)
	assert.Equal(t, 500*time.Millisecond, cfg.Reload.Debounce)
	assert.Equal(t, "sqlite", cfg.Store.Type)

	require.NoError(t, Validate(cfg))
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "reelplay.yaml", `
output:
  type: raw
  device: /tmp/out.yuv
  buffer_size: 4
display:
  video_split: quad
osd:
  play_state_hold: 2s
  mark_colours:
    "1": yellow
audio:
  num_level_monitors: 4
`)
	t.Setenv("REELPLAY_AUDIO_LEVEL_MONITORS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "raw", cfg.Output.Type)
	assert.Equal(t, "/tmp/out.yuv", cfg.Output.Device)
	assert.Equal(t, 4, cfg.Output.BufferSize)
	assert.Equal(t, "quad", cfg.Display.VideoSplit)
	assert.Equal(t, 2*time.Second, cfg.OSD.PlayStateHold)
	assert.Equal(t, map[string]string{"1": "yellow"}, cfg.OSD.MarkColours)
	assert.Equal(t, 8, cfg.Audio.NumLevelMonitors, "environment wins over the file")
	assert.True(t, cfg.Store.Enabled, "defaults fill what the file leaves out")
}

func TestLoad_JSONAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "reelplay.json", `{"output": {"type": "x11", "window_id": 77}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "x11", cfg.Output.Type)
	assert.Equal(t, uint64(77), cfg.Output.WindowID)

	cfg, err = Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "null", cfg.Output.Type)

	_, err = Load(writeFile(t, dir, "reelplay.toml", "x = 1"))
	assert.Error(t, err)
}

func TestValidate_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"unknown output", func(cfg *Config) { cfg.Output.Type = "vga" }},
		{"unknown split", func(cfg *Config) { cfg.Display.VideoSplit = "hex" }},
		{"zero scale", func(cfg *Config) { cfg.Display.Scale = 0 }},
		{"bad aspect ratio", func(cfg *Config) { cfg.Display.MonitorAspectRatio = "wide" }},
		{"mark type out of range", func(cfg *Config) { cfg.OSD.MarkColours = map[string]string{"40": "red"} }},
		{"unknown colour", func(cfg *Config) { cfg.OSD.MarkColours = map[string]string{"2": "mauve"} }},
		{"positive lineup", func(cfg *Config) { cfg.Audio.LineupLevel = 3 }},
		{"postgres without dsn", func(cfg *Config) { cfg.Store.Type = "postgres" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestStructuralChanges(t *testing.T) {
	prev := DefaultConfig()

	next := prev.Clone()
	next.Output.BufferSize = 8
	next.Audio.EnableSwitch = false
	next.Display.MonitorAspectRatio = "16/9"
	assert.Empty(t, StructuralChanges(prev, next, false))
	assert.Len(t, Diff(prev, next, false), 3)

	next.Output.Type = "raw"
	next.Audio.LineupLevel = -20
	assert.Equal(t, []string{"output.type", "audio.lineup_level"}, StructuralChanges(prev, next, false))

	window := prev.Clone()
	window.Output.WindowID = 42
	assert.Equal(t, []string{"output.window_id"}, StructuralChanges(prev, window, false))
	assert.Empty(t, StructuralChanges(prev, window, true), "window ids are ignored for hardware outputs")
}

func TestClone_CopiesMarkColours(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OSD.MarkColours = map[string]string{"1": "red"}

	c := cfg.Clone()
	c.OSD.MarkColours["1"] = "blue"
	assert.Equal(t, "red", cfg.OSD.MarkColours["1"])
}

func TestManager_NextAndCurrent(t *testing.T) {
	m := NewManager(hclog.NewNullLogger())
	assert.Nil(t, m.Current())

	var mu sync.Mutex
	var seen []string
	m.AddWatcher(func(prev, next *Config) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, prev.Output.Type+"->"+next.Output.Type)
	})

	require.NoError(t, m.UpdateNext(func(cfg *Config) { cfg.Output.Type = "raw" }))
	assert.Error(t, m.UpdateNext(func(cfg *Config) { cfg.Output.Type = "vga" }))
	assert.Equal(t, "raw", m.Next().Output.Type)
	assert.Equal(t, []string{"null->raw"}, seen)

	next := m.Next()
	m.Commit(next)
	next.Output.Type = "x11"
	assert.Equal(t, "raw", m.Current().Output.Type, "current is a private copy")

	assert.Error(t, m.Save(), "no path loaded yet")
}

func TestManager_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "reelplay.yaml", "output:\n  type: \"null\"\n")

	m := NewManager(hclog.NewNullLogger())
	require.NoError(t, m.Load(path))
	require.NoError(t, m.StartWatching(context.Background(), 20*time.Millisecond))
	defer m.StopWatching()
	assert.Error(t, m.StartWatching(context.Background(), 0))

	writeFile(t, dir, "reelplay.yaml", "output:\n  type: raw\n  device: out.yuv\n")
	require.Eventually(t, func() bool { return m.Next().Output.Type == "raw" }, 2*time.Second, 10*time.Millisecond)

	// an invalid edit keeps the last good snapshot
	writeFile(t, dir, "reelplay.yaml", "output:\n  type: vga\n")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "raw", m.Next().Output.Type)

	require.NoError(t, m.Save())
	saved, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out.yuv", saved.Output.Device)
}
