package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/listener"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/player"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
	"github.com/mantonx/reelplay/internal/utils"
)

const writeTimeout = 5 * time.Second

// Recorder persists sessions and selected listener events. It is both a
// listener and a session hook; writes are queued on a worker pool and
// dropped when the queue is full.
type Recorder struct {
	listener.Base

	store  *Store
	pool   *utils.WorkerPool
	logger hclog.Logger

	mu       sync.Mutex
	sessions map[string]PlayerSession
	current  string

	dropped atomic.Int64
}

// NewRecorder creates a recorder writing to s.
func NewRecorder(s *Store, workers, queueSize int, logger hclog.Logger) *Recorder {
	return &Recorder{
		store:    s,
		pool:     utils.NewWorkerPool(workers, queueSize),
		logger:   logger.Named("recorder"),
		sessions: make(map[string]PlayerSession),
	}
}

func (r *Recorder) Start() {
	r.pool.Start()
}

// Stop waits for queued writes to finish.
func (r *Recorder) Stop() {
	r.pool.Stop()
}

// Dropped returns the number of writes lost to a full queue.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) submit(what string, fn func(ctx context.Context) error) {
	ok := r.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			r.logger.Warn("store write failed", "write", what, "error", err)
		}
	})
	if !ok {
		r.dropped.Add(1)
		r.logger.Debug("store write dropped", "write", what)
	}
}

// recordedInput tags a requested input with an id that is the same across
// sessions playing the same file.
type recordedInput struct {
	ID string `json:"id"`
	types.PlayerInput
}

// SessionStarted implements player.SessionHook.
func (r *Recorder) SessionStarted(info player.SessionInfo) {
	recorded := make([]recordedInput, len(info.Inputs))
	for i, in := range info.Inputs {
		recorded[i] = recordedInput{
			ID:          utils.InputUUID(string(in.Kind), in.Name),
			PlayerInput: in,
		}
	}
	inputs, _ := json.Marshal(recorded)
	opened, _ := json.Marshal(info.Opened)
	session := PlayerSession{
		ID:         info.ID,
		Inputs:     string(inputs),
		Opened:     string(opened),
		OutputType: string(info.OutputType),
		Build:      string(info.Build),
		StartedAt:  info.Started,
	}

	r.mu.Lock()
	r.sessions[info.ID] = session
	r.current = info.ID
	r.mu.Unlock()

	r.submit("session_started", func(ctx context.Context) error {
		return r.writeStarted(ctx, session)
	})
}

// SessionClosed implements player.SessionHook.
func (r *Recorder) SessionClosed(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	if r.current == id {
		r.current = ""
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	closed := time.Now()
	session.ClosedAt = &closed
	r.submit("session_closed", func(ctx context.Context) error {
		return r.writeClosed(ctx, session)
	})
}

// writeStarted inserts the session row unless the close already wrote it.
func (r *Recorder) writeStarted(ctx context.Context, session PlayerSession) error {
	return r.store.CreateSession(ctx, &session)
}

// writeClosed stamps the closing time. When the start is still queued on
// another worker the whole row is written here and the later insert keeps it.
func (r *Recorder) writeClosed(ctx context.Context, session PlayerSession) error {
	err := r.store.CloseSession(ctx, session.ID, *session.ClosedAt)
	if errors.Is(err, ErrNotFound) {
		return r.store.SaveSession(ctx, &session)
	}
	return err
}

func (r *Recorder) record(eventType string, frame *types.FrameInfo, data any) {
	r.mu.Lock()
	sessionID := r.current
	r.mu.Unlock()
	if sessionID == "" {
		return
	}

	event := SessionEvent{
		ID:        utils.GenerateUUID(),
		SessionID: sessionID,
		EventType: eventType,
		EventTime: time.Now(),
		Data:      "{}",
	}
	if frame != nil {
		event.Position = frame.Position
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			event.Data = string(b)
		}
	}
	r.submit(eventType, func(ctx context.Context) error {
		return r.store.CreateEvent(ctx, &event)
	})
}

func (r *Recorder) StateChanged(e *types.StateEvent) {
	if e == nil {
		return
	}
	if e.PlayChanged {
		if e.Play {
			r.record(EventPlay, e.Frame, nil)
		} else {
			r.record(EventPause, e.Frame, nil)
		}
	}
	if e.StopChanged && e.Stop {
		r.record(EventStop, e.Frame, nil)
	}
	if e.SpeedChanged {
		r.record(EventSpeed, e.Frame, map[string]int{"speed": e.Speed})
	}
	if e.LockedChanged {
		r.record(EventLock, e.Frame, map[string]bool{"locked": e.Locked})
	}
}

func (r *Recorder) StartOfSource(info *types.FrameInfo) {
	r.record(EventStartOfSource, info, nil)
}

func (r *Recorder) EndOfSource(info *types.FrameInfo) {
	r.record(EventEndOfSource, info, nil)
}

func (r *Recorder) FrameDropped(last *types.FrameInfo) {
	r.record(EventFrameDropped, last, nil)
}

func (r *Recorder) CloseRequested() {
	r.record(EventCloseRequested, nil, nil)
}

func (r *Recorder) ProgressBarPositionSet(percent float64) {
	r.record(EventProgressBar, nil, map[string]float64{"percent": percent})
}

func (r *Recorder) SourceNameChanged(index int, name string) {
	r.record(EventSourceName, nil, map[string]any{"index": index, "name": name})
}
