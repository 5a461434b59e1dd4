package types

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// InputKind selects which source backend opens a PlayerInput
type InputKind string

const (
	InputMXF     InputKind = "mxf"
	InputRaw     InputKind = "raw"
	InputDV      InputKind = "dv"
	InputFFmpeg  InputKind = "ffmpeg"
	InputSHM     InputKind = "shm"
	InputUDP     InputKind = "udp"
	InputBalls   InputKind = "balls"
	InputBlank   InputKind = "blank"
	InputClapper InputKind = "clapper"
)

// InputKinds lists every recognised kind in declaration order.
var InputKinds = []InputKind{
	InputMXF, InputRaw, InputDV, InputFFmpeg, InputSHM, InputUDP, InputBalls, InputBlank, InputClapper,
}

// Valid reports whether the kind is one of the closed set.
func (k InputKind) Valid() bool {
	for _, known := range InputKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Recognised option names
const (
	OptStreamType       = "stream_type"
	OptStreamFormat     = "stream_format"
	OptFrameRate        = "frame_rate"
	OptWidth            = "width"
	OptHeight           = "height"
	OptAspectRatio      = "aspect_ratio"
	OptSamplingRate     = "sampling_rate"
	OptNumChannels      = "num_channels"
	OptBitsPerSample    = "bits_per_sample"
	OptFallbackBlank    = "fallback_blank"
	OptNumFFmpegThreads = "num_ffmpeg_threads"
	OptBlankLength      = "blank_length"
	OptClipID           = "clip_id"
)

// PlayerInput is one caller-requested input
type PlayerInput struct {
	Kind    InputKind         `json:"kind"`
	Name    string            `json:"name"`
	Options map[string]string `json:"options,omitempty"`
}

// NewInput creates an input with an empty option map.
func NewInput(kind InputKind, name string) PlayerInput {
	return PlayerInput{Kind: kind, Name: name, Options: make(map[string]string)}
}

// WithOption sets an option and returns the input for chaining.
func (in PlayerInput) WithOption(name, value string) PlayerInput {
	if in.Options == nil {
		in.Options = make(map[string]string)
	}
	in.Options[name] = value
	return in
}

// Option returns an option value and whether it was set.
func (in PlayerInput) Option(name string) (string, bool) {
	v, ok := in.Options[name]
	return v, ok
}

// FallbackBlank reports whether a blank source should replace this input when
// it fails to open.
func (in PlayerInput) FallbackBlank() bool {
	v, ok := in.Options[OptFallbackBlank]
	return ok && strings.EqualFold(strings.TrimSpace(v), "true")
}

// IntOption parses an integer option, returning def when absent.
func (in PlayerInput) IntOption(name string, def int) (int, error) {
	v, ok := in.Options[name]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("option %s: %w", name, err)
	}
	return n, nil
}

// RationalOption parses an "N/D" option, returning def when absent.
func (in PlayerInput) RationalOption(name string, def Rational) (Rational, error) {
	v, ok := in.Options[name]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	r, err := ParseRational(v)
	if err != nil {
		return def, fmt.Errorf("option %s: %w", name, err)
	}
	return r, nil
}

// StreamInfoFromOptions builds a stream descriptor from the generic stream
// options, starting from base for anything not specified.
func (in PlayerInput) StreamInfoFromOptions(base StreamInfo) (StreamInfo, error) {
	info := base.Clone()

	if v, ok := in.Options[OptStreamFormat]; ok {
		info.Format = StreamFormat(strings.ToLower(strings.TrimSpace(v)))
		info.Type = info.Format.StreamType()
	}
	if v, ok := in.Options[OptStreamType]; ok {
		info.Type = StreamType(strings.ToLower(strings.TrimSpace(v)))
	}

	var err error
	if info.FrameRate, err = in.RationalOption(OptFrameRate, info.FrameRate); err != nil {
		return info, err
	}
	if info.Width, err = in.IntOption(OptWidth, info.Width); err != nil {
		return info, err
	}
	if info.Height, err = in.IntOption(OptHeight, info.Height); err != nil {
		return info, err
	}
	if info.AspectRatio, err = in.RationalOption(OptAspectRatio, info.AspectRatio); err != nil {
		return info, err
	}
	if info.SamplingRate, err = in.RationalOption(OptSamplingRate, info.SamplingRate); err != nil {
		return info, err
	}
	if info.NumChannels, err = in.IntOption(OptNumChannels, info.NumChannels); err != nil {
		return info, err
	}
	if info.BitsPerSample, err = in.IntOption(OptBitsPerSample, info.BitsPerSample); err != nil {
		return info, err
	}
	if v, ok := in.Options[OptClipID]; ok {
		info.ClipID = v
	}

	return info, info.Validate()
}

func (in PlayerInput) String() string {
	return fmt.Sprintf("%s:%s", in.Kind, in.Name)
}

// ParseInput parses the command line form "kind:name?opt=value&opt=value".
// A bare name without a kind prefix is treated as an MXF file.
func ParseInput(arg string) (PlayerInput, error) {
	kind := InputMXF
	rest := arg
	if i := strings.Index(arg, ":"); i > 0 {
		candidate := InputKind(strings.ToLower(arg[:i]))
		if candidate.Valid() {
			kind = candidate
			rest = arg[i+1:]
		}
	}

	name := rest
	in := NewInput(kind, "")
	if i := strings.Index(rest, "?"); i >= 0 {
		name = rest[:i]
		values, err := url.ParseQuery(rest[i+1:])
		if err != nil {
			return PlayerInput{}, fmt.Errorf("invalid options in %q: %w", arg, err)
		}
		for k := range values {
			in.Options[k] = values.Get(k)
		}
	}
	in.Name = name

	if in.Name == "" && kind != InputBlank && kind != InputBalls && kind != InputClapper {
		return PlayerInput{}, fmt.Errorf("input %q has no name", arg)
	}
	return in, nil
}
