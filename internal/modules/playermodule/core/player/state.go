package player

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/config"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/engine"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/pipeline"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// playState is the one live bundle of source, sink chain, engine and play
// goroutine.
type playState struct {
	sessionID string
	started   time.Time
	inputs    []types.PlayerInput
	config    *config.Config

	build  *pipeline.SourceBuild
	chain  *pipeline.SinkChain
	engine engine.Engine

	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// start launches the play goroutine. running is set before the goroutine
// exists and cleared when it exits.
func (s *playState) start(logger hclog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)
		defer s.running.Store(false)
		if err := s.engine.Run(ctx); err != nil {
			logger.Error("playback engine stopped with error", "session", s.sessionID, "error", err)
		}
	}()
}

// stop ends the play goroutine and waits for it. It is safe to call more
// than once and before start.
func (s *playState) stop() {
	if s.engine != nil {
		s.engine.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	s.running.Store(false)
}

// teardown stops the goroutine and closes source, engine and sink chain in
// that order. The chain closes the owned windows last.
func (s *playState) teardown(logger hclog.Logger) {
	s.stop()
	s.closeSourceAndEngine(logger)
	if s.chain != nil {
		if err := s.chain.Close(); err != nil {
			logger.Warn("failed to close sink", "session", s.sessionID, "error", err)
		}
	}
}

func (s *playState) closeSourceAndEngine(logger hclog.Logger) {
	if s.build != nil {
		if err := s.build.Close(); err != nil {
			logger.Warn("failed to close source", "session", s.sessionID, "error", err)
		}
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			logger.Warn("failed to close engine", "session", s.sessionID, "error", err)
		}
	}
}

// videoIndex translates a 1-based input index into the video switch index.
// Index 0 is the split view.
func (s *playState) videoIndex(index int) (int, bool) {
	if s.chain.VideoSwitch == nil {
		return 0, false
	}
	if index == 0 {
		return 0, true
	}
	sourceID, ok := s.build.SourceIDAt(index)
	if !ok {
		return 0, false
	}
	return s.chain.VideoSwitch.IndexOfSource(sourceID)
}
