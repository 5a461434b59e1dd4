package sink

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

type bufferedStream struct {
	id   int
	data []byte
}

type bufferedFrame struct {
	generation uint64
	info       *types.FrameInfo
	streams    []bufferedStream
}

// Buffer decouples the engine from the device with a bounded queue of copied
// frames that a worker goroutine delivers downstream. CompleteFrame blocks
// while the queue is full.
type Buffer struct {
	Passthrough
	logger hclog.Logger

	mu         sync.Mutex
	registered map[int]bool
	pending    *bufferedFrame
	buffers    map[int][]byte

	queue      chan *bufferedFrame
	generation atomic.Uint64

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewBuffer starts the delivery worker. size is the queue length in frames.
func NewBuffer(next Sink, size int, logger hclog.Logger) *Buffer {
	if size < 1 {
		size = 1
	}
	b := &Buffer{
		Passthrough: NewPassthrough(next),
		logger:      logger.Named("output-buffer"),
		registered:  make(map[int]bool),
		buffers:     make(map[int][]byte),
		queue:       make(chan *bufferedFrame, size),
	}
	b.ctx, b.cancelFunc = context.WithCancel(context.Background())

	b.wg.Add(1)
	go b.deliverLoop()
	return b
}

// Queued returns the number of frames waiting for delivery.
func (b *Buffer) Queued() int {
	return len(b.queue)
}

func (b *Buffer) RegisterStream(info types.StreamInfo) bool {
	if !b.next.RegisterStream(info) {
		return false
	}
	b.mu.Lock()
	b.registered[info.ID] = true
	b.mu.Unlock()
	return true
}

func (b *Buffer) AcceptStreamFrame(streamID int, info *types.FrameInfo) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registered[streamID]
}

// StreamBuffer returns a fresh buffer; queued frames keep their own copies.
func (b *Buffer) StreamBuffer(streamID, size int) ([]byte, error) {
	buf := make([]byte, size)
	b.mu.Lock()
	b.buffers[streamID] = buf
	b.mu.Unlock()
	return buf, nil
}

func (b *Buffer) ReceiveStreamFrame(streamID int, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[streamID]
	if !ok || len(data) == 0 || len(buf) == 0 || &buf[0] != &data[0] {
		buf = append([]byte(nil), data...)
	}
	delete(b.buffers, streamID)

	if b.pending == nil {
		b.pending = &bufferedFrame{}
	}
	b.pending.streams = append(b.pending.streams, bufferedStream{id: streamID, data: buf})
	return nil
}

// CompleteFrame queues the assembled frame.
func (b *Buffer) CompleteFrame(info *types.FrameInfo) error {
	b.mu.Lock()
	frame := b.pending
	b.pending = nil
	b.mu.Unlock()

	if b.ctx.Err() != nil {
		return playererrors.ErrClosed
	}
	if frame == nil {
		frame = &bufferedFrame{}
	}
	frame.info = info.Clone()
	frame.generation = b.generation.Load()

	select {
	case b.queue <- frame:
		return nil
	case <-b.ctx.Done():
		return playererrors.ErrClosed
	}
}

func (b *Buffer) CancelFrame() {
	b.mu.Lock()
	b.pending = nil
	clear(b.buffers)
	b.mu.Unlock()
}

// ResetOrClose drops queued frames and resets the device.
func (b *Buffer) ResetOrClose() bool {
	b.generation.Add(1)
	b.drain()

	b.mu.Lock()
	b.pending = nil
	clear(b.buffers)
	b.registered = make(map[int]bool)
	b.mu.Unlock()

	if b.next.ResetOrClose() {
		return true
	}
	b.stop()
	return false
}

func (b *Buffer) Close() error {
	b.stop()
	return b.next.Close()
}

func (b *Buffer) stop() {
	b.closeOnce.Do(func() {
		b.cancelFunc()
		b.wg.Wait()
	})
}

func (b *Buffer) drain() {
	for {
		select {
		case <-b.queue:
		default:
			return
		}
	}
}

func (b *Buffer) deliverLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case frame := <-b.queue:
			if frame.generation != b.generation.Load() {
				continue
			}
			b.deliver(frame)
		}
	}
}

func (b *Buffer) deliver(frame *bufferedFrame) {
	for _, s := range frame.streams {
		if !b.next.AcceptStreamFrame(s.id, frame.info) {
			continue
		}
		buf, err := b.next.StreamBuffer(s.id, len(s.data))
		if err != nil {
			b.logger.Debug("downstream buffer unavailable", "stream_id", s.id, "error", err)
			continue
		}
		copy(buf, s.data)
		if err := b.next.ReceiveStreamFrame(s.id, buf); err != nil {
			b.logger.Debug("downstream receive failed", "stream_id", s.id, "error", err)
		}
	}
	if err := b.next.CompleteFrame(frame.info); err != nil {
		b.logger.Warn("buffered frame not displayed", "position", frame.info.Position, "error", err)
	}
}
