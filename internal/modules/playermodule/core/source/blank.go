package source

import (
	"context"
	"fmt"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// DefaultPicture is the picture used for blank fill when nothing better is
// known: 720x576 UYVY at 25 fps, 4:3.
func DefaultPicture() types.StreamInfo {
	return types.StreamInfo{
		Type:        types.PictureStream,
		Format:      types.FormatUYVY,
		FrameRate:   types.Rate25,
		Width:       720,
		Height:      576,
		AspectRatio: types.Aspect4x3,
	}
}

// DefaultSound is the sound stream used for blank audio fill.
func DefaultSound(rate types.Rational) types.StreamInfo {
	return types.StreamInfo{
		Type:          types.SoundStream,
		Format:        types.FormatPCM,
		FrameRate:     rate,
		SamplingRate:  types.Rate48000,
		NumChannels:   1,
		BitsPerSample: 16,
	}
}

// Blank produces black pictures or silent audio for a fixed or unbounded
// length. Its streams are always marked synthetic.
type Blank struct {
	base
	length int64
	fill   map[int][]byte
}

// NewBlank creates a blank source from the input options, using template
// for any picture parameter the options leave out.
func NewBlank(input types.PlayerInput, template types.StreamInfo) (*Blank, error) {
	if template.Type == "" {
		template = DefaultPicture()
	}

	tmpl := template.Clone()
	tmpl.ID, tmpl.SourceID, tmpl.ClipID, tmpl.SourceInfo = 0, 0, "", nil
	if v, ok := input.Option(types.OptStreamType); ok && types.StreamType(v) == types.SoundStream {
		tmpl = DefaultSound(template.FrameRate)
	}
	info, err := input.StreamInfoFromOptions(tmpl)
	if err != nil {
		return nil, fmt.Errorf("blank source: %w", err)
	}
	info.ID = 0
	info.Synthetic = true

	length, err := input.IntOption(types.OptBlankLength, -1)
	if err != nil {
		return nil, fmt.Errorf("blank source: %w", err)
	}
	if length == 0 {
		length = -1
	}

	fill := make([]byte, info.FrameSize())
	if info.Type == types.PictureStream {
		pic, err := video.NewPicture(info.Format, info.Width, info.Height)
		if err != nil {
			return nil, fmt.Errorf("blank source: %w", err)
		}
		fill = pic.Data
	}

	b := &Blank{
		base:   newBase([]types.StreamInfo{info}),
		length: int64(length),
		fill:   map[int][]byte{info.ID: fill},
	}
	if input.Name != "" {
		setSourceInfo(&b.streams[0], SourceInfoName, input.Name)
	}
	return b, nil
}

func (b *Blank) Read(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if b.length >= 0 && b.position >= b.length {
		return nil, playererrors.ErrEndOfSource
	}

	frame := &Frame{Position: b.position}
	for _, s := range b.streams {
		if b.enabled(s.ID) {
			frame.Streams = append(frame.Streams, StreamFrame{StreamID: s.ID, Data: b.fill[s.ID]})
		}
	}
	b.position++
	return frame, nil
}

func (b *Blank) Seek(position int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = clampPosition(position, b.length)
	return nil
}

func (b *Blank) Length() int64 {
	return b.length
}

func (b *Blank) AvailableLength() int64 {
	return b.length
}

func (b *Blank) EOF() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length >= 0 && b.position >= b.length
}

func (b *Blank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func clampPosition(position, length int64) int64 {
	if position < 0 {
		return 0
	}
	if length >= 0 && position > length {
		return length
	}
	return position
}
