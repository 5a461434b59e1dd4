package player

import (
	"time"

	"github.com/mantonx/reelplay/internal/config"
	"github.com/mantonx/reelplay/internal/modules/playermodule/menu"
	"github.com/mantonx/reelplay/internal/modules/playermodule/osd"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// InputStatus is one requested input of the live pipeline
type InputStatus struct {
	Input   types.PlayerInput `json:"input"`
	Opened  bool              `json:"opened"`
	Present bool              `json:"present"`

	// Index is the 1-based index used by SwitchVideo and source name
	// events, 0 when the input is not present.
	Index int `json:"index"`
}

// Status is a snapshot of the player for monitoring
type Status struct {
	Live        bool              `json:"live"`
	Running     bool              `json:"running"`
	SessionID   string            `json:"session_id,omitempty"`
	Started     time.Time         `json:"started"`
	OutputType  types.OutputType  `json:"output_type,omitempty"`
	VideoFormat types.VideoFormat `json:"video_format"`
	Inputs      []InputStatus     `json:"inputs,omitempty"`
	Screen      osd.Screen        `json:"screen,omitempty"`
	VideoIndex  int               `json:"video_index"`
	AudioGroup  int               `json:"audio_group"`
	Frame       *types.FrameInfo  `json:"frame,omitempty"`
	Generation  uint64            `json:"generation"`
}

// Status returns a snapshot of the live pipeline.
func (p *Player) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := Status{Generation: p.Generation()}
	st := p.state
	if st == nil {
		return status
	}

	status.Live = true
	status.Running = st.running.Load()
	status.SessionID = st.sessionID
	status.Started = st.started
	status.OutputType = types.OutputType(st.config.Output.Type)
	status.VideoFormat = st.build.VideoFormat()
	status.Screen = st.chain.State.Screen()
	status.Frame = st.engine.LastFrame()

	index := st.build.SourceIndexMap()
	for i, input := range st.inputs {
		in := InputStatus{Input: input, Opened: st.build.Opened[i], Present: st.build.Present[i]}
		if in.Present {
			in.Index = index[st.build.SourceIDs[i]]
		}
		status.Inputs = append(status.Inputs, in)
	}

	if sw := st.chain.VideoSwitch; sw != nil {
		status.VideoIndex = p.externalVideoIndex(st, sw.SelectedIndex())
	}
	if sw := st.chain.AudioSwitch; sw != nil {
		status.AudioGroup = sw.SelectedGroup()
	}
	return status
}

// externalVideoIndex maps a video switch index back to the input index.
func (p *Player) externalVideoIndex(st *playState, internal int) int {
	if internal == 0 {
		return 0
	}
	for index := 1; ; index++ {
		sourceID, ok := st.build.SourceIDAt(index)
		if !ok {
			return 0
		}
		if i, ok := st.chain.VideoSwitch.IndexOfSource(sourceID); ok && i == internal {
			return index
		}
	}
}

// SetMenu shows m on the menu screen, or removes it when m is nil.
func (p *Player) SetMenu(m *menu.Model) bool {
	return p.osdControl(func(s *osd.State) bool {
		s.SetMenu(m)
		return true
	})
}

// Config returns the configuration of the live pipeline, or nil before the
// first start.
func (p *Player) Config() *config.Config {
	return p.configs.Current()
}
