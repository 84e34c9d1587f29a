package journal

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the run journal.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord describes one task activation.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID       string        `json:"id"` // uuid, assigned on append if empty
	Task     string        `json:"task"`
	TaskID   int64         `json:"task_id"`
	Kind     string        `json:"kind,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}
