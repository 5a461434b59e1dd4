package player

import (
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/engine"
	"github.com/mantonx/reelplay/internal/modules/playermodule/osd"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// forward runs fn against the live state while holding the read lock. It
// returns false when there is no state or its play goroutine is not running.
func (p *Player) forward(fn func(st *playState) bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := p.state
	if st == nil || !st.running.Load() {
		return false
	}
	return fn(st)
}

func (p *Player) engineControl(fn func(e engine.Engine) bool) bool {
	return p.forward(func(st *playState) bool { return fn(st.engine) })
}

// Running reports whether a pipeline is live and playing.
func (p *Player) Running() bool {
	return p.forward(func(*playState) bool { return true })
}

func (p *Player) Play() bool {
	return p.engineControl(func(e engine.Engine) bool { return e.Play() })
}

func (p *Player) Pause() bool {
	return p.engineControl(func(e engine.Engine) bool { return e.Pause() })
}

func (p *Player) TogglePlayPause() bool {
	return p.engineControl(func(e engine.Engine) bool { return e.TogglePlayPause() })
}

// SetSpeed sets the play speed in frames per tick; negative plays backwards.
func (p *Player) SetSpeed(speed int) bool {
	return p.engineControl(func(e engine.Engine) bool { return e.SetSpeed(speed) })
}

// Seek moves relative to whence (io.SeekStart, io.SeekCurrent, io.SeekEnd).
func (p *Player) Seek(offset int64, whence int) bool {
	return p.engineControl(func(e engine.Engine) bool { return e.Seek(offset, whence) })
}

func (p *Player) SeekPercent(percent float64) bool {
	return p.engineControl(func(e engine.Engine) bool { return e.SeekPercent(percent) })
}

func (p *Player) Step(forward bool) bool {
	return p.engineControl(func(e engine.Engine) bool { return e.Step(forward) })
}

func (p *Player) Lock(on bool) bool {
	return p.engineControl(func(e engine.Engine) bool { return e.Lock(on) })
}

func (p *Player) Mute(on bool) bool {
	return p.engineControl(func(e engine.Engine) bool { return e.Mute(on) })
}

// Mark types at this boundary are the public numbers 1..32; number n is
// stored as bit n-1.

// Mark marks the current position. With toggle an existing mark of the type
// is removed instead.
func (p *Player) Mark(markType int, toggle bool) bool {
	bit := types.MarkTypeFromPublic(markType)
	if bit == 0 {
		return false
	}
	return p.engineControl(func(e engine.Engine) bool { return e.Mark(bit, toggle) })
}

func (p *Player) ClearMark(markType int) bool {
	bit := types.MarkTypeFromPublic(markType)
	if bit == 0 {
		return false
	}
	return p.engineControl(func(e engine.Engine) bool { return e.ClearMark(bit) })
}

// ClearAllMarks removes every mark of a type, or of all types when markType
// is -1.
func (p *Player) ClearAllMarks(markType int) bool {
	bit := types.MarkAllTypes
	if markType != -1 {
		bit = types.MarkTypeFromPublic(markType)
	}
	if bit == 0 {
		return false
	}
	return p.engineControl(func(e engine.Engine) bool { return e.ClearAllMarks(bit) })
}

// SeekNextMark seeks to the next mark of any type
func (p *Player) SeekNextMark() bool {
	return p.engineControl(func(e engine.Engine) bool { return e.SeekNextMark(types.MarkAllTypes) })
}

// SeekPrevMark seeks to the previous mark of any type
func (p *Player) SeekPrevMark() bool {
	return p.engineControl(func(e engine.Engine) bool { return e.SeekPrevMark(types.MarkAllTypes) })
}

// SwitchVideo selects what the video switch shows: 0 is the split view (or
// the default picture without splitting) and i is the i-th input among the
// present inputs, the same index SourceNameChanged reports.
func (p *Player) SwitchVideo(index int) bool {
	return p.forward(func(st *playState) bool {
		internal, ok := st.videoIndex(index)
		if !ok || !st.chain.VideoSwitch.SwitchVideo(internal) {
			return false
		}
		st.engine.Refresh()
		return true
	})
}

func (p *Player) NextVideo() bool {
	return p.forward(func(st *playState) bool {
		if st.chain.VideoSwitch == nil || !st.chain.VideoSwitch.NextVideo() {
			return false
		}
		st.engine.Refresh()
		return true
	})
}

func (p *Player) PrevVideo() bool {
	return p.forward(func(st *playState) bool {
		if st.chain.VideoSwitch == nil || !st.chain.VideoSwitch.PrevVideo() {
			return false
		}
		st.engine.Refresh()
		return true
	})
}

// SwitchAudio selects the sound group of the audio switch.
func (p *Player) SwitchAudio(group int) bool {
	return p.forward(func(st *playState) bool {
		return st.chain.AudioSwitch != nil && st.chain.AudioSwitch.SwitchAudio(group)
	})
}

func (p *Player) NextAudio() bool {
	return p.forward(func(st *playState) bool {
		return st.chain.AudioSwitch != nil && st.chain.AudioSwitch.NextAudio()
	})
}

func (p *Player) PrevAudio() bool {
	return p.forward(func(st *playState) bool {
		return st.chain.AudioSwitch != nil && st.chain.AudioSwitch.PrevAudio()
	})
}

// SnapAudioToVideo makes the audio switch follow the video switch. It
// cannot be enabled without a real picture source.
func (p *Player) SnapAudioToVideo(enable bool) bool {
	return p.forward(func(st *playState) bool {
		if st.chain.AudioSwitch == nil || (enable && !st.build.HasRealPicture) {
			return false
		}
		st.chain.AudioSwitch.SetSnapToVideo(enable)
		return true
	})
}

// osdControl runs fn against the OSD settings and asks for a redisplay.
func (p *Player) osdControl(fn func(s *osd.State) bool) bool {
	return p.forward(func(st *playState) bool {
		if !fn(st.chain.State) {
			return false
		}
		st.engine.Refresh()
		return true
	})
}

func (p *Player) SetOSDScreen(screen osd.Screen) bool {
	return p.osdControl(func(s *osd.State) bool { return s.SetScreen(screen) == nil })
}

func (p *Player) NextOSDScreen() bool {
	return p.osdControl(func(s *osd.State) bool {
		s.NextScreen()
		return true
	})
}

// SetOSDTimecode selects the timecode shown by index and type.
func (p *Player) SetOSDTimecode(index int, tcType types.TimecodeType) bool {
	return p.osdControl(func(s *osd.State) bool {
		s.SetTimecode(index, tcType)
		return true
	})
}

func (p *Player) NextOSDTimecode() bool {
	return p.forward(func(st *playState) bool {
		last := st.engine.LastFrame()
		if last == nil || len(last.Timecodes) == 0 {
			return false
		}
		st.chain.State.NextTimecode(len(last.Timecodes))
		st.engine.Refresh()
		return true
	})
}

func (p *Player) AddLabel(label osd.Label) bool {
	return p.osdControl(func(s *osd.State) bool { return s.AddLabel(label) })
}

func (p *Player) ClearLabels() bool {
	return p.osdControl(func(s *osd.State) bool {
		s.ClearLabels()
		return true
	})
}

func (p *Player) HighlightProgressBar(on bool) bool {
	return p.osdControl(func(s *osd.State) bool {
		s.HighlightProgressBar(on)
		return true
	})
}

// SetActiveMarks selects which marks model the progress bar highlights:
// 0 primary, 1 secondary.
func (p *Player) SetActiveMarks(index int) bool {
	return p.osdControl(func(s *osd.State) bool {
		s.Marks().SetActive(index)
		return true
	})
}

// SetMarkDisplayMask selects the public mark types shown on the progress
// bar; nil shows every type.
func (p *Player) SetMarkDisplayMask(markTypes []int) bool {
	mask := types.MarkAllTypes
	if markTypes != nil {
		mask = 0
		for _, t := range markTypes {
			mask |= types.MarkTypeFromPublic(t)
		}
	}
	return p.osdControl(func(s *osd.State) bool {
		s.SetMarkDisplayMask(mask)
		return true
	})
}
