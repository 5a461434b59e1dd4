// Package types defines the data model shared by the player pipeline:
// stream descriptors, player inputs, per-frame metadata and output settings.
package types

import (
	"fmt"
)

// StreamType classifies an elementary stream
type StreamType string

const (
	PictureStream  StreamType = "picture"
	SoundStream    StreamType = "sound"
	TimecodeStream StreamType = "timecode"
	EventStream    StreamType = "event"
)

// StreamFormat is the sample layout of an elementary stream
type StreamFormat string

const (
	FormatUYVY     StreamFormat = "uyvy"    // 8-bit 4:2:2 packed
	FormatYUV422   StreamFormat = "yuv422"  // 8-bit 4:2:2 planar
	FormatYUV420   StreamFormat = "yuv420"  // 8-bit 4:2:0 planar
	FormatYUV444   StreamFormat = "yuv444"  // 8-bit 4:4:4 planar
	FormatPCM      StreamFormat = "pcm"     // interleaved little-endian PCM
	FormatTimecode StreamFormat = "timecode"
	FormatEvent    StreamFormat = "event"
)

// StreamType returns the stream type implied by the format.
func (f StreamFormat) StreamType() StreamType {
	switch f {
	case FormatUYVY, FormatYUV422, FormatYUV420, FormatYUV444:
		return PictureStream
	case FormatPCM:
		return SoundStream
	case FormatTimecode:
		return TimecodeStream
	case FormatEvent:
		return EventStream
	}
	return ""
}

// IsPicture reports whether the format carries pictures.
func (f StreamFormat) IsPicture() bool {
	return f.StreamType() == PictureStream
}

// MaxSourceInfo bounds the free-form annotations carried per stream.
const MaxSourceInfo = 16

// SourceInfoValue is one name/value annotation describing where a stream came from.
type SourceInfoValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// VideoFormat identifies a picture raster. A change between builds forces a
// pipeline rebuild.
type VideoFormat struct {
	Format      StreamFormat `json:"format"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	AspectRatio Rational     `json:"aspect_ratio"`
}

// IsZero reports whether no picture stream was seen.
func (v VideoFormat) IsZero() bool {
	return v.Format == "" && v.Width == 0 && v.Height == 0
}

// Equal compares format, raster and aspect ratio.
func (v VideoFormat) Equal(o VideoFormat) bool {
	return v.Format == o.Format && v.Width == o.Width && v.Height == o.Height &&
		v.AspectRatio.Equal(o.AspectRatio)
}

func (v VideoFormat) String() string {
	return fmt.Sprintf("%s %dx%d %s", v.Format, v.Width, v.Height, v.AspectRatio)
}

// StreamInfo describes one elementary stream
type StreamInfo struct {
	ID              int          `json:"id"`
	Type            StreamType   `json:"type"`
	Format          StreamFormat `json:"format"`
	FrameRate       Rational     `json:"frame_rate"`
	IsHardFrameRate bool         `json:"is_hard_frame_rate"`

	// picture
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	AspectRatio Rational `json:"aspect_ratio,omitempty"`

	// sound
	SamplingRate  Rational `json:"sampling_rate,omitempty"`
	NumChannels   int      `json:"num_channels,omitempty"`
	BitsPerSample int      `json:"bits_per_sample,omitempty"`

	SourceID   int               `json:"source_id"`
	ClipID     string            `json:"clip_id,omitempty"`
	SourceInfo []SourceInfoValue `json:"source_info,omitempty"`

	// Synthetic marks generated streams (blank fill), which never count as a
	// real picture source.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Validate checks that the format implies the declared type and that the
// stream parameters are usable.
func (s *StreamInfo) Validate() error {
	implied := s.Format.StreamType()
	if implied == "" {
		return fmt.Errorf("unknown stream format %q", s.Format)
	}
	if s.Type != implied {
		return fmt.Errorf("stream format %q implies type %q, got %q", s.Format, implied, s.Type)
	}

	switch s.Type {
	case PictureStream:
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("invalid picture dimensions %dx%d", s.Width, s.Height)
		}
		if s.Format != FormatYUV444 && s.Width%2 != 0 {
			return fmt.Errorf("picture width %d must be even for %s", s.Width, s.Format)
		}
		if s.Format == FormatYUV420 && s.Height%2 != 0 {
			return fmt.Errorf("picture height %d must be even for %s", s.Height, s.Format)
		}
	case SoundStream:
		if s.SamplingRate.IsZero() || s.NumChannels <= 0 {
			return fmt.Errorf("invalid sound parameters")
		}
		switch s.BitsPerSample {
		case 16, 24, 32:
		default:
			return fmt.Errorf("unsupported bits per sample %d", s.BitsPerSample)
		}
	}

	if s.FrameRate.IsZero() {
		return fmt.Errorf("frame rate not set")
	}
	return nil
}

// SetFrameRate changes the frame rate unless the stream has a hard rate that
// conflicts with the requested one.
func (s *StreamInfo) SetFrameRate(rate Rational) error {
	if s.IsHardFrameRate && !s.FrameRate.IsZero() && !s.FrameRate.Equal(rate) {
		return fmt.Errorf("stream %d has hard frame rate %s, cannot retime to %s", s.ID, s.FrameRate, rate)
	}
	s.FrameRate = rate
	return nil
}

// AddSourceInfo appends an annotation, dropping it once the bound is reached.
func (s *StreamInfo) AddSourceInfo(name, value string) bool {
	if len(s.SourceInfo) >= MaxSourceInfo {
		return false
	}
	s.SourceInfo = append(s.SourceInfo, SourceInfoValue{Name: name, Value: value})
	return true
}

// VideoFormat returns the raster descriptor of a picture stream.
func (s *StreamInfo) VideoFormat() VideoFormat {
	return VideoFormat{Format: s.Format, Width: s.Width, Height: s.Height, AspectRatio: s.AspectRatio}
}

// FrameSize returns the number of bytes one frame of the stream occupies.
func (s *StreamInfo) FrameSize() int {
	switch s.Format {
	case FormatUYVY, FormatYUV422:
		return s.Width * s.Height * 2
	case FormatYUV420:
		return s.Width*s.Height + 2*(s.Width/2)*(s.Height/2)
	case FormatYUV444:
		return s.Width * s.Height * 3
	case FormatPCM:
		return s.SamplesPerFrame() * s.NumChannels * s.BytesPerSample()
	case FormatTimecode:
		return 8
	}
	return 0
}

// BytesPerSample rounds the bit depth up to whole bytes.
func (s *StreamInfo) BytesPerSample() int {
	return (s.BitsPerSample + 7) / 8
}

// SamplesPerFrame is the number of audio samples per channel in one frame
// period. Fractional rates (e.g. 48000 at 30000/1001) are rounded down.
func (s *StreamInfo) SamplesPerFrame() int {
	if s.SamplingRate.IsZero() || s.FrameRate.IsZero() {
		return 0
	}
	return int(int64(s.SamplingRate.Num) * int64(s.FrameRate.Den) /
		(int64(s.SamplingRate.Den) * int64(s.FrameRate.Num)))
}

// Clone returns a deep copy.
func (s StreamInfo) Clone() StreamInfo {
	c := s
	if s.SourceInfo != nil {
		c.SourceInfo = append([]SourceInfoValue(nil), s.SourceInfo...)
	}
	return c
}
