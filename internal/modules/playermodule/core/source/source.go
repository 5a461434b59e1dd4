// Package source defines the capability interface the player uses against
// decoder and capture backends, plus the built-in sources: the fan-in
// multiplexer, blank fill, raw file reader and read-ahead buffer.
package source

import (
	"context"

	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// StreamFrame is the payload of one stream for one frame period
type StreamFrame struct {
	StreamID int
	Data     []byte
}

// Frame is everything a source produced for one position
type Frame struct {
	Position  int64
	Streams   []StreamFrame
	Timecodes []types.TimecodeInfo

	// VTR error level and mark bits reported by capture sources
	VTRErrorLevel int
	MarkType      uint32
}

// Stream returns the payload for a stream id.
func (f *Frame) Stream(id int) ([]byte, bool) {
	for _, s := range f.Streams {
		if s.StreamID == id {
			return s.Data, true
		}
	}
	return nil, false
}

// Listener receives source side notifications. Sources never notify from
// inside Read.
type Listener interface {
	SourceNameChanged(sourceID int, name string)
}

// Source is one opened input, or the fan-in of several
type Source interface {
	// Streams returns the stream descriptors. Ids are unique within the source.
	Streams() []types.StreamInfo
	DisableStream(streamID int) error

	// Read returns the frame at the current position and advances it.
	Read(ctx context.Context) (*Frame, error)
	Seek(position int64) error

	// Length is -1 when unknown or unbounded.
	Length() int64
	Position() int64
	AvailableLength() int64
	EOF() bool

	SetSourceName(sourceID int, name string)
	SetClipID(sourceID int, clipID string)
	RegisterListener(l Listener)

	Close() error
}

// PictureStream returns the first enabled picture stream, preferring real
// streams over synthetic fill.
func PictureStream(streams []types.StreamInfo) (types.StreamInfo, bool) {
	var synthetic *types.StreamInfo
	for i := range streams {
		if streams[i].Type != types.PictureStream {
			continue
		}
		if !streams[i].Synthetic {
			return streams[i], true
		}
		if synthetic == nil {
			synthetic = &streams[i]
		}
	}
	if synthetic != nil {
		return *synthetic, true
	}
	return types.StreamInfo{}, false
}

// HasRealPicture reports whether any picture stream is not synthetic.
func HasRealPicture(streams []types.StreamInfo) bool {
	for _, s := range streams {
		if s.Type == types.PictureStream && !s.Synthetic {
			return true
		}
	}
	return false
}
