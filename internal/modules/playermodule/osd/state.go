package osd

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	"github.com/mantonx/reelplay/internal/modules/playermodule/marks"
	"github.com/mantonx/reelplay/internal/modules/playermodule/menu"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Screen selects what the OSD paints
type Screen string

const (
	ScreenSourceInfo Screen = "source_info"
	ScreenPlayState  Screen = "play_state"
	ScreenMenu       Screen = "menu"
	ScreenEmpty      Screen = "empty"
)

// screenCycle is the order NextScreen steps through. The menu screen is only
// entered explicitly.
var screenCycle = []Screen{ScreenSourceInfo, ScreenPlayState, ScreenEmpty}

// MaxLabels bounds the caller supplied labels.
const MaxLabels = 16

// DefaultPlayStateHold is how long the transport symbol stays up after a
// state change.
const DefaultPlayStateHold = 5 * time.Second

// TickInterval is the refresh period of the OSD ticker.
const TickInterval = 500 * time.Millisecond

// Label is a caller supplied text placed relative to a reference image size
type Label struct {
	Text      string    `json:"text"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	RefWidth  int       `json:"ref_width"`
	RefHeight int       `json:"ref_height"`
	Colour    video.YUV `json:"colour"`
	Box       bool      `json:"box"`
}

// Settings is a copy of the OSD state used for one render pass
type Settings struct {
	Screen            Screen
	TimecodeIndex     int
	TimecodeType      types.TimecodeType
	AudioLevels       []float64
	AudioLineup       float64
	MarkColours       map[uint32]video.YUV
	MarkDisplayMask   uint32
	ProgressHighlight bool
	Labels            []Label
	SourceInfo        []types.SourceInfoValue
	PlayStateHold     time.Duration
	LastStateChange   time.Time
	Menu              *menu.Model
	Marks             *marks.Set
}

// State holds the OSD settings shared by every renderer of one sink chain.
// It is updated out of band from rendering and owns the refresh ticker.
type State struct {
	logger hclog.Logger

	mu                sync.RWMutex
	screen            Screen
	timecodeIndex     int
	timecodeType      types.TimecodeType
	audioLevels       []float64
	audioLineup       float64
	markColours       map[uint32]video.YUV
	markDisplayMask   uint32
	progressHighlight bool
	labels            []Label
	sourceInfo        []types.SourceInfoValue
	playStateHold     time.Duration
	lastStateChange   time.Time
	menu              *menu.Model
	marks             *marks.Set

	tickerUser atomic.Bool
	refresh    atomic.Pointer[func()]

	ctx        context.Context
	cancelFunc context.CancelFunc
	running    bool
	runMutex   sync.Mutex
	wg         sync.WaitGroup
}

// DefaultMarkColours are the colours of the well known mark types.
func DefaultMarkColours() map[uint32]video.YUV {
	return map[uint32]video.YUV{
		1:                    video.Red,
		types.MarkVTRError:   video.Orange,
		types.MarkDigiBeta:   video.Cyan,
		types.MarkPSEFailure: video.Magenta,
	}
}

// NewState creates OSD settings starting on the play state screen.
func NewState(logger hclog.Logger) *State {
	return &State{
		logger:          logger.Named("osd"),
		screen:          ScreenPlayState,
		timecodeIndex:   -1,
		audioLineup:     -18,
		markColours:     DefaultMarkColours(),
		markDisplayMask: types.MarkAllTypes,
		playStateHold:   DefaultPlayStateHold,
		marks:           marks.NewSet(),
	}
}

// Snapshot copies the settings for one render pass.
func (s *State) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	colours := make(map[uint32]video.YUV, len(s.markColours))
	for k, v := range s.markColours {
		colours[k] = v
	}
	return Settings{
		Screen:            s.screen,
		TimecodeIndex:     s.timecodeIndex,
		TimecodeType:      s.timecodeType,
		AudioLevels:       append([]float64(nil), s.audioLevels...),
		AudioLineup:       s.audioLineup,
		MarkColours:       colours,
		MarkDisplayMask:   s.markDisplayMask,
		ProgressHighlight: s.progressHighlight,
		Labels:            append([]Label(nil), s.labels...),
		SourceInfo:        append([]types.SourceInfoValue(nil), s.sourceInfo...),
		PlayStateHold:     s.playStateHold,
		LastStateChange:   s.lastStateChange,
		Menu:              s.menu,
		Marks:             s.marks,
	}
}

// SetScreen selects the active screen.
func (s *State) SetScreen(screen Screen) error {
	switch screen {
	case ScreenSourceInfo, ScreenPlayState, ScreenMenu, ScreenEmpty:
	default:
		return fmt.Errorf("unknown osd screen %q", screen)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen = screen
	return nil
}

// Screen returns the active screen.
func (s *State) Screen() Screen {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screen
}

// NextScreen steps through source info, play state and empty.
func (s *State) NextScreen() Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := screenCycle[0]
	for i, sc := range screenCycle {
		if sc == s.screen {
			next = screenCycle[(i+1)%len(screenCycle)]
			break
		}
	}
	s.screen = next
	return next
}

// SetTimecode selects the timecode shown by index into the frame timecodes.
// A negative index follows the frame's active timecode.
func (s *State) SetTimecode(index int, tcType types.TimecodeType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timecodeIndex = index
	s.timecodeType = tcType
}

// NextTimecode advances the timecode selection and wraps back to following
// the active timecode after the last one.
func (s *State) NextTimecode(count int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timecodeIndex++
	if s.timecodeIndex >= count {
		s.timecodeIndex = -1
	}
	s.timecodeType = types.UnknownTimecode
	return s.timecodeIndex
}

// SetAudioLevels sets the metered levels in dBFS, one per monitored channel.
func (s *State) SetAudioLevels(levels []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioLevels = append(s.audioLevels[:0], levels...)
}

// SetAudioLineup sets the lineup reference level in dBFS.
func (s *State) SetAudioLineup(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioLineup = level
}

// SetMarkColour sets the colour of one mark type bit.
func (s *State) SetMarkColour(markType uint32, colour video.YUV) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markColours[markType] = colour
}

// SetMarkDisplayMask limits the mark types drawn on the progress bar.
func (s *State) SetMarkDisplayMask(mask uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDisplayMask = mask
}

// Marks returns the attached mark models.
func (s *State) Marks() *marks.Set {
	return s.marks
}

// HighlightProgressBar marks the progress pointer as highlighted.
func (s *State) HighlightProgressBar(on bool) {
	s.mu.Lock()
	s.progressHighlight = on
	s.mu.Unlock()
	if on {
		s.tickerUser.Store(true)
	}
}

// AddLabel appends a label while the bound allows it.
func (s *State) AddLabel(l Label) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.labels) >= MaxLabels {
		return false
	}
	s.labels = append(s.labels, l)
	return true
}

// ClearLabels removes every label.
func (s *State) ClearLabels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = nil
}

// SetSourceInfo replaces the annotations shown on the source info screen.
func (s *State) SetSourceInfo(info []types.SourceInfoValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceInfo = append([]types.SourceInfoValue(nil), info...)
}

// SetMenu attaches a menu model, or detaches it with nil.
func (s *State) SetMenu(m *menu.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menu = m
}

// SetPlayStateHold changes how long the transport symbol stays up.
func (s *State) SetPlayStateHold(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playStateHold = d
}

// NotifyStateChange restarts the transport symbol hold window.
func (s *State) NotifyStateChange(now time.Time) {
	s.mu.Lock()
	s.lastStateChange = now
	s.mu.Unlock()
	s.tickerUser.Store(true)
}

// SetTickerUser is called by renderers to keep or release the ticker.
func (s *State) SetTickerUser(on bool) {
	s.tickerUser.Store(on)
}

// TickerUser reports whether the ticker currently requests refreshes.
func (s *State) TickerUser() bool {
	return s.tickerUser.Load()
}

// SetRefreshHandler installs the callback the ticker uses to ask the host to
// redraw the current frame.
func (s *State) SetRefreshHandler(fn func()) {
	if fn == nil {
		s.refresh.Store(nil)
		return
	}
	s.refresh.Store(&fn)
}

// StartTicker begins the periodic refresh loop.
func (s *State) StartTicker(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()

	if s.running {
		return fmt.Errorf("osd ticker already running")
	}

	s.ctx, s.cancelFunc = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Debug("osd ticker started", "interval", TickInterval)
	return nil
}

// StopTicker stops the refresh loop and waits for it to exit.
func (s *State) StopTicker() {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()

	if !s.running {
		return
	}
	s.cancelFunc()
	s.wg.Wait()
	s.running = false
	s.logger.Debug("osd ticker stopped")
}

func (s *State) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *State) tick() {
	if !s.tickerUser.Load() {
		return
	}
	if fn := s.refresh.Load(); fn != nil {
		(*fn)()
	}
}
