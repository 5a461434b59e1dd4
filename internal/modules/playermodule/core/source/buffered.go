package source

import (
	"context"
	"errors"
	"sync"

	"github.com/hashicorp/go-hclog"

	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Buffered reads ahead of the playback position on its own goroutine so a
// slow input does not stall the render path. A seek discards everything
// read ahead.
type Buffered struct {
	src    Source
	size   int
	logger hclog.Logger

	// srcMu serialises access to src between the filler and Seek
	srcMu sync.Mutex

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*Frame
	readErr  error
	gen      uint64
	position int64
	disabled map[int]bool
	stopped  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBuffered wraps src with a read-ahead of size frames and starts filling.
func NewBuffered(src Source, size int, logger hclog.Logger) *Buffered {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Buffered{
		src:      src,
		size:     size,
		logger:   logger.Named("read-ahead"),
		position: src.Position(),
		disabled: make(map[int]bool),
		cancel:   cancel,
	}
	b.cond = sync.NewCond(&b.mu)

	b.wg.Add(1)
	go b.fillLoop(ctx)

	b.logger.Debug("read-ahead started", "frames", size)
	return b
}

// Unwrap returns the wrapped source.
func (b *Buffered) Unwrap() Source {
	return b.src
}

func (b *Buffered) fillLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		b.mu.Lock()
		for (len(b.queue) >= b.size || b.readErr != nil) && !b.stopped {
			b.cond.Wait()
		}
		if b.stopped {
			b.mu.Unlock()
			return
		}
		gen := b.gen
		b.mu.Unlock()

		b.srcMu.Lock()
		frame, err := b.src.Read(ctx)
		b.srcMu.Unlock()

		b.mu.Lock()
		if gen == b.gen && !b.stopped {
			if err != nil {
				b.readErr = err
				if !errors.Is(err, playererrors.ErrEndOfSource) && !errors.Is(err, context.Canceled) {
					b.logger.Warn("read-ahead failed", "error", err)
				}
			} else {
				b.queue = append(b.queue, frame)
			}
			b.cond.Broadcast()
		}
		b.mu.Unlock()
	}
}

func (b *Buffered) Read(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) == 0 && b.readErr == nil && !b.stopped {
		b.cond.Wait()
	}
	if b.stopped {
		return nil, playererrors.ErrClosed
	}

	if len(b.queue) == 0 {
		err := b.readErr
		if !errors.Is(err, playererrors.ErrEndOfSource) {
			// let the filler retry after a transient failure
			b.readErr = nil
			b.cond.Broadcast()
		}
		return nil, err
	}

	frame := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	b.position = frame.Position + 1
	b.cond.Broadcast()

	if len(b.disabled) > 0 {
		kept := frame.Streams[:0:0]
		for _, s := range frame.Streams {
			if !b.disabled[s.StreamID] {
				kept = append(kept, s)
			}
		}
		frame.Streams = kept
	}
	return frame, nil
}

func (b *Buffered) Seek(position int64) error {
	b.mu.Lock()
	b.gen++
	b.queue = nil
	b.mu.Unlock()

	b.srcMu.Lock()
	err := b.src.Seek(position)
	pos := b.src.Position()
	b.srcMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.queue = nil
	b.readErr = nil
	b.position = pos
	b.cond.Broadcast()
	return err
}

// Buffered returns the number of frames currently read ahead.
func (b *Buffered) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Buffered) Streams() []types.StreamInfo { return b.src.Streams() }

func (b *Buffered) DisableStream(streamID int) error {
	if err := b.src.DisableStream(streamID); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disabled[streamID] = true
	return nil
}

func (b *Buffered) Length() int64          { return b.src.Length() }
func (b *Buffered) AvailableLength() int64 { return b.src.AvailableLength() }

func (b *Buffered) Position() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

func (b *Buffered) EOF() bool {
	length := b.src.Length()
	return length >= 0 && b.Position() >= length
}

func (b *Buffered) SetSourceName(sourceID int, name string) { b.src.SetSourceName(sourceID, name) }
func (b *Buffered) SetClipID(sourceID int, clipID string)   { b.src.SetClipID(sourceID, clipID) }
func (b *Buffered) RegisterListener(l Listener)             { b.src.RegisterListener(l) }

// Close stops the filler and closes the wrapped source.
func (b *Buffered) Close() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.queue = nil
	b.cond.Broadcast()
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	b.logger.Debug("read-ahead stopped")
	return b.src.Close()
}
