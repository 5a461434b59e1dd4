// Package store records player sessions and their events in a database.
package store

import (
	"time"
)

// PlayerSession is one started pipeline
type PlayerSession struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Inputs     string     `gorm:"type:json" json:"inputs"` // requested inputs as JSON
	Opened     string     `gorm:"type:json" json:"opened"` // per-input open result as JSON
	OutputType string     `gorm:"size:32;index" json:"output_type"`
	Build      string     `gorm:"size:16" json:"build"` // reset, rebuild
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionEvent is a listener event worth keeping
type SessionEvent struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID string    `gorm:"size:36;index" json:"session_id"`
	EventType string    `gorm:"size:50;index" json:"event_type"`
	EventTime time.Time `gorm:"index" json:"event_time"`
	Position  int64     `json:"position"`              // frame position when the event occurred
	Data      string    `gorm:"type:json" json:"data"` // event detail as JSON
	CreatedAt time.Time `json:"created_at"`
}

// Event types
const (
	EventPlay           = "play"
	EventPause          = "pause"
	EventStop           = "stop"
	EventSpeed          = "speed"
	EventLock           = "lock"
	EventStartOfSource  = "start_of_source"
	EventEndOfSource    = "end_of_source"
	EventFrameDropped   = "frame_dropped"
	EventCloseRequested = "close_requested"
	EventProgressBar    = "progress_bar_position"
	EventSourceName     = "source_name"
)
