// Package config holds the player configuration: the section structs with
// their file, environment and default bindings, the manager that keeps the
// current and next snapshots, and the table of fields that force a pipeline
// rebuild when they change.
package config

import (
	"time"
)

// Config represents the complete player configuration
type Config struct {
	// Pipeline
	Output  OutputConfig  `yaml:"output" json:"output"`
	Display DisplayConfig `yaml:"display" json:"display"`
	OSD     OSDConfig     `yaml:"osd" json:"osd"`
	Audio   AudioConfig   `yaml:"audio" json:"audio"`
	Source  SourceConfig  `yaml:"source" json:"source"`

	// Ambient services
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`
	Reload  ReloadConfig  `yaml:"reload" json:"reload"`
}

// OutputConfig selects the output device
type OutputConfig struct {
	Type            string `yaml:"type" json:"type" env:"REELPLAY_OUTPUT_TYPE" default:"null"`
	Device          string `yaml:"device" json:"device" env:"REELPLAY_OUTPUT_DEVICE"`
	SecondaryDevice string `yaml:"secondary_device" json:"secondary_device" env:"REELPLAY_OUTPUT_SECONDARY_DEVICE"`
	BufferSize      int    `yaml:"buffer_size" json:"buffer_size" env:"REELPLAY_OUTPUT_BUFFER_SIZE" default:"0"` // frames
	WindowID        uint64 `yaml:"window_id" json:"window_id" env:"REELPLAY_WINDOW_ID" default:"0"`
}

// DisplayConfig controls scaling and the video switch
type DisplayConfig struct {
	Scale                  float64 `yaml:"scale" json:"scale" env:"REELPLAY_DISPLAY_SCALE" default:"1.0"`
	ScaleFilter            bool    `yaml:"scale_filter" json:"scale_filter" env:"REELPLAY_DISPLAY_SCALE_FILTER" default:"true"`
	SourceAspectRatio      string  `yaml:"source_aspect_ratio" json:"source_aspect_ratio" env:"REELPLAY_SOURCE_ASPECT_RATIO"`
	PixelAspectRatio       string  `yaml:"pixel_aspect_ratio" json:"pixel_aspect_ratio" env:"REELPLAY_PIXEL_ASPECT_RATIO" default:"1/1"`
	MonitorAspectRatio     string  `yaml:"monitor_aspect_ratio" json:"monitor_aspect_ratio" env:"REELPLAY_MONITOR_ASPECT_RATIO" default:"4/3"`
	DimensionMode          string  `yaml:"dimension_mode" json:"dimension_mode" env:"REELPLAY_DISPLAY_DIMENSION_MODE" default:"auto"`
	VideoSplit             string  `yaml:"video_split" json:"video_split" env:"REELPLAY_VIDEO_SPLIT" default:"none"`
	SoftwareScaleThreshold int     `yaml:"software_scale_threshold" json:"software_scale_threshold" env:"REELPLAY_SOFTWARE_SCALE_THRESHOLD" default:"0"` // picture width, 0 disables
}

// OSDConfig controls the on-screen display
type OSDConfig struct {
	SDIEnable     bool              `yaml:"sdi_enable" json:"sdi_enable" env:"REELPLAY_SDI_OSD_ENABLE" default:"true"`
	X11Enable     bool              `yaml:"x11_enable" json:"x11_enable" env:"REELPLAY_X11_OSD_ENABLE" default:"true"`
	Screen        string            `yaml:"screen" json:"screen" env:"REELPLAY_OSD_SCREEN" default:"play_state"`
	PlayStateHold time.Duration     `yaml:"play_state_hold" json:"play_state_hold" env:"REELPLAY_OSD_PLAY_STATE_HOLD" default:"5s"`
	MarkColours   map[string]string `yaml:"mark_colours" json:"mark_colours"` // public mark type number to colour name
}

// AudioConfig controls metering and the audio switch
type AudioConfig struct {
	Device           string  `yaml:"device" json:"device" env:"REELPLAY_AUDIO_DEVICE"`
	NumLevelMonitors int     `yaml:"num_level_monitors" json:"num_level_monitors" env:"REELPLAY_AUDIO_LEVEL_MONITORS" default:"2"`
	LineupLevel      float64 `yaml:"lineup_level" json:"lineup_level" env:"REELPLAY_AUDIO_LINEUP_LEVEL" default:"-18"`
	EnableSwitch     bool    `yaml:"enable_switch" json:"enable_switch" env:"REELPLAY_AUDIO_ENABLE_SWITCH" default:"true"`
	SnapToVideo      bool    `yaml:"snap_to_video" json:"snap_to_video" env:"REELPLAY_AUDIO_SNAP_TO_VIDEO" default:"true"`
}

// SourceConfig controls source reading
type SourceConfig struct {
	ReadAheadFrames int `yaml:"read_ahead_frames" json:"read_ahead_frames" env:"REELPLAY_READ_AHEAD_FRAMES" default:"0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" json:"level" env:"REELPLAY_LOG_LEVEL" default:"info"`
	Format       string `yaml:"format" json:"format" env:"REELPLAY_LOG_FORMAT" default:"text"` // json, text
	EnableColors bool   `yaml:"enable_colors" json:"enable_colors" env:"REELPLAY_LOG_COLORS" default:"true"`
}

// StoreConfig holds the session recorder database settings
type StoreConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled" env:"REELPLAY_STORE_ENABLED" default:"true"`
	Type      string `yaml:"type" json:"type" env:"REELPLAY_STORE_TYPE" default:"sqlite"`
	Path      string `yaml:"path" json:"path" env:"REELPLAY_STORE_PATH" default:"reelplay.db"`
	DSN       string `yaml:"dsn" json:"dsn" env:"REELPLAY_STORE_DSN"`
	Workers   int    `yaml:"workers" json:"workers" env:"REELPLAY_STORE_WORKERS" default:"2"`
	QueueSize int    `yaml:"queue_size" json:"queue_size" env:"REELPLAY_STORE_QUEUE_SIZE" default:"256"`
}

// MonitorConfig holds the read-only status API settings
type MonitorConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled" env:"REELPLAY_MONITOR_ENABLED" default:"true"`
	Addr            string `yaml:"addr" json:"addr" env:"REELPLAY_MONITOR_ADDR" default:":8095"`
	FrameEventsRate int    `yaml:"frame_events_rate" json:"frame_events_rate" env:"REELPLAY_MONITOR_FRAME_EVENTS_RATE" default:"5"` // per second
}

// ReloadConfig controls watching the config file
type ReloadConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled" env:"REELPLAY_RELOAD_ENABLED" default:"true"`
	Debounce time.Duration `yaml:"debounce" json:"debounce" env:"REELPLAY_RELOAD_DEBOUNCE" default:"500ms"`
}

// DefaultConfig returns the configuration built from the default tags.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := applyDefaults(cfg); err != nil {
		// default tags are static; a failure is a programming error
		panic(err)
	}
	return cfg
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.OSD.MarkColours != nil {
		out.OSD.MarkColours = make(map[string]string, len(c.OSD.MarkColours))
		for k, v := range c.OSD.MarkColours {
			out.OSD.MarkColours[k] = v
		}
	}
	return &out
}
