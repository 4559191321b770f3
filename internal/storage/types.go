package storage

import (
	"errors"
	"time"

	"hivemind/internal/task"
)

var ErrDisabled = errors.New("storage disabled")

// FormatVersion is written into every file snapshot header.
const FormatVersion = 1

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Snapshot is the persisted state: the tick it was taken at and the live
// task set in admission order.
type Snapshot struct {
	Tick  uint64        `json:"tick"`
	Tasks []task.Record `json:"tasks"`
}

// Header is the first line of a file snapshot. It is readable without
// decoding the task list.
type Header struct {
	Version int       `json:"version"`
	Tick    uint64    `json:"tick"`
	Tasks   int       `json:"tasks"`
	SavedAt time.Time `json:"saved_at"`
}
