package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Raw reads fixed-size uncompressed frames of one stream from a file. The
// stream layout comes from the input options; a file that is still growing
// is picked up through AvailableLength.
type Raw struct {
	base
	file      *os.File
	frameSize int64
}

// OpenRaw opens a raw essence file.
func OpenRaw(input types.PlayerInput) (*Raw, error) {
	info, err := input.StreamInfoFromOptions(DefaultPicture())
	if err != nil {
		return nil, fmt.Errorf("raw source %s: %w", input.Name, err)
	}
	frameSize := int64(info.FrameSize())
	if frameSize <= 0 {
		return nil, fmt.Errorf("raw source %s: %w", input.Name, playererrors.ErrUnsupportedFormat)
	}

	f, err := os.Open(input.Name)
	if err != nil {
		return nil, err
	}

	setSourceInfo(&info, SourceInfoName, filepath.Base(input.Name))
	return &Raw{
		base:      newBase([]types.StreamInfo{info}),
		file:      f,
		frameSize: frameSize,
	}, nil
}

func (r *Raw) Read(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if r.position >= r.available() {
		return nil, playererrors.ErrEndOfSource
	}

	data := make([]byte, r.frameSize)
	if _, err := r.file.ReadAt(data, r.position*r.frameSize); err != nil {
		if err == io.EOF {
			return nil, playererrors.ErrEndOfSource
		}
		return nil, playererrors.RuntimeIOError("read_raw", err).WithInput(r.file.Name())
	}

	frame := &Frame{Position: r.position}
	if r.enabled(r.streams[0].ID) {
		frame.Streams = []StreamFrame{{StreamID: r.streams[0].ID, Data: data}}
	}
	r.position++
	return frame, nil
}

func (r *Raw) Seek(position int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.position = clampPosition(position, r.available())
	return nil
}

func (r *Raw) Length() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available()
}

func (r *Raw) AvailableLength() int64 {
	return r.Length()
}

func (r *Raw) EOF() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position >= r.available()
}

func (r *Raw) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

func (r *Raw) available() int64 {
	if r.closed {
		return 0
	}
	st, err := r.file.Stat()
	if err != nil {
		return 0
	}
	return st.Size() / r.frameSize
}
