package config

// Field is one compared configuration field. Structural fields force a full
// pipeline rebuild when they change; the others are compared and logged only.
type Field struct {
	Name       string
	Structural bool

	// SoftwareOnly fields are only compared for non-hardware outputs.
	SoftwareOnly bool
	Changed      func(prev, next *Config) bool
}

// Change is one field that differs between two configurations
type Change struct {
	Field      string `json:"field"`
	Structural bool   `json:"structural"`
}

// Fields is the table the reset-or-rebuild decision walks. Not every field
// is structural: buffering, the audio switch, aspect ratios, the software
// scale threshold and read-ahead are applied by the next build without
// touching the device.
var Fields = []Field{
	{Name: "output.type", Structural: true, Changed: func(a, b *Config) bool { return a.Output.Type != b.Output.Type }},
	{Name: "output.device", Structural: true, Changed: func(a, b *Config) bool { return a.Output.Device != b.Output.Device }},
	{Name: "output.secondary_device", Structural: true, Changed: func(a, b *Config) bool { return a.Output.SecondaryDevice != b.Output.SecondaryDevice }},
	{Name: "output.window_id", Structural: true, SoftwareOnly: true, Changed: func(a, b *Config) bool { return a.Output.WindowID != b.Output.WindowID }},
	{Name: "display.scale", Structural: true, Changed: func(a, b *Config) bool { return a.Display.Scale != b.Display.Scale }},
	{Name: "display.scale_filter", Structural: true, Changed: func(a, b *Config) bool { return a.Display.ScaleFilter != b.Display.ScaleFilter }},
	{Name: "display.video_split", Structural: true, Changed: func(a, b *Config) bool { return a.Display.VideoSplit != b.Display.VideoSplit }},
	{Name: "display.dimension_mode", Structural: true, Changed: func(a, b *Config) bool { return a.Display.DimensionMode != b.Display.DimensionMode }},
	{Name: "osd.sdi_enable", Structural: true, Changed: func(a, b *Config) bool { return a.OSD.SDIEnable != b.OSD.SDIEnable }},
	{Name: "osd.x11_enable", Structural: true, Changed: func(a, b *Config) bool { return a.OSD.X11Enable != b.OSD.X11Enable }},
	{Name: "audio.device", Structural: true, Changed: func(a, b *Config) bool { return a.Audio.Device != b.Audio.Device }},
	{Name: "audio.num_level_monitors", Structural: true, Changed: func(a, b *Config) bool { return a.Audio.NumLevelMonitors != b.Audio.NumLevelMonitors }},
	{Name: "audio.lineup_level", Structural: true, Changed: func(a, b *Config) bool { return a.Audio.LineupLevel != b.Audio.LineupLevel }},

	{Name: "output.buffer_size", Changed: func(a, b *Config) bool { return a.Output.BufferSize != b.Output.BufferSize }},
	{Name: "audio.enable_switch", Changed: func(a, b *Config) bool { return a.Audio.EnableSwitch != b.Audio.EnableSwitch }},
	{Name: "audio.snap_to_video", Changed: func(a, b *Config) bool { return a.Audio.SnapToVideo != b.Audio.SnapToVideo }},
	{Name: "display.source_aspect_ratio", Changed: func(a, b *Config) bool { return a.Display.SourceAspectRatio != b.Display.SourceAspectRatio }},
	{Name: "display.pixel_aspect_ratio", Changed: func(a, b *Config) bool { return a.Display.PixelAspectRatio != b.Display.PixelAspectRatio }},
	{Name: "display.monitor_aspect_ratio", Changed: func(a, b *Config) bool { return a.Display.MonitorAspectRatio != b.Display.MonitorAspectRatio }},
	{Name: "display.software_scale_threshold", Changed: func(a, b *Config) bool { return a.Display.SoftwareScaleThreshold != b.Display.SoftwareScaleThreshold }},
	{Name: "source.read_ahead_frames", Changed: func(a, b *Config) bool { return a.Source.ReadAheadFrames != b.Source.ReadAheadFrames }},
}

// Diff returns every table field that differs. hardwareOutput skips the
// fields only compared for non-hardware outputs.
func Diff(prev, next *Config, hardwareOutput bool) []Change {
	var changes []Change
	for _, f := range Fields {
		if f.SoftwareOnly && hardwareOutput {
			continue
		}
		if f.Changed(prev, next) {
			changes = append(changes, Change{Field: f.Name, Structural: f.Structural})
		}
	}
	return changes
}

// StructuralChanges returns the names of the changed structural fields.
func StructuralChanges(prev, next *Config, hardwareOutput bool) []string {
	var names []string
	for _, c := range Diff(prev, next, hardwareOutput) {
		if c.Structural {
			names = append(names, c.Field)
		}
	}
	return names
}
