// Package match implements the match lifecycle engine: the record
// model, validation, the status state machine, the persisted store and
// the remaining-time calculator.
package match

import "time"

// Status is a match lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// Valid reports whether s is a recognized status value.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusPaused, StatusFinished:
		return true
	}
	return false
}

// Match is one tracked contest between two players on one table.
// TableCode and TableName are snapshots of the registry entry taken at
// creation; later registry edits never alter existing matches.
type Match struct {
	ID                 int64      `json:"id"`
	Player1            string     `json:"player1"`
	Player2            string     `json:"player2"`
	Table              int64      `json:"table"`
	TableCode          string     `json:"tableCode"`
	TableName          string     `json:"tableName"`
	Status             Status     `json:"status"`
	StartTime          time.Time  `json:"startTime"`
	ActualStartTime    *time.Time `json:"actualStartTime"`
	MaxDurationMinutes int        `json:"maxDurationMinutes"`
	TotalPausedTime    int64      `json:"totalPausedTime"` // milliseconds
	PausedAt           *time.Time `json:"pausedAt,omitempty"`
	FinishedAt         *time.Time `json:"finishedAt,omitempty"`
	AutoFinished       bool       `json:"autoFinished"`
	ScoreA             int        `json:"scoreA"`
	ScoreB             int        `json:"scoreB"`
	LastScoreUpdate    *time.Time `json:"lastScoreUpdate,omitempty"`
}

// transition applies the status state machine. It reports whether the
// edge is modeled; unmodeled edges (waiting→paused, waiting→finished,
// anything out of finished) leave the match untouched.
func (m *Match) transition(to Status, now time.Time) bool {
	switch {
	case m.Status == StatusWaiting && to == StatusActive:
		m.Status = StatusActive
		if m.ActualStartTime == nil {
			t := now
			m.ActualStartTime = &t
		}

	case m.Status == StatusActive && to == StatusPaused:
		m.Status = StatusPaused
		t := now
		m.PausedAt = &t

	case m.Status == StatusPaused && to == StatusActive:
		m.foldPause(now)
		m.Status = StatusActive

	case (m.Status == StatusActive || m.Status == StatusPaused) && to == StatusFinished:
		if m.Status == StatusPaused {
			m.foldPause(now)
		}
		m.Status = StatusFinished
		t := now
		m.FinishedAt = &t

	default:
		return false
	}
	return true
}

// foldPause adds the in-progress pause interval to TotalPausedTime and
// clears PausedAt. TotalPausedTime only ever grows through here.
func (m *Match) foldPause(now time.Time) {
	if m.PausedAt != nil {
		if d := now.Sub(*m.PausedAt).Milliseconds(); d > 0 {
			m.TotalPausedTime += d
		}
		m.PausedAt = nil
	}
}
