package models

import "time"

// EventKind classifies session events recorded in history and streamed to clients.
type EventKind string

const (
	EventConnected        EventKind = "connected"
	EventDisconnected     EventKind = "disconnected"
	EventWindowStarted    EventKind = "window_started"
	EventWindowFailed     EventKind = "window_failed"
	EventWindowReady      EventKind = "window_ready"
	EventWindowNotStarted EventKind = "window_not_started"
	EventWindowStopped    EventKind = "window_stopped"
	EventCommand          EventKind = "command"
	EventShutdown         EventKind = "shutdown"
)

type Event struct {
	ID      int64     `json:"id,omitempty"`
	At      time.Time `json:"at"`
	Kind    EventKind `json:"kind"`
	Alias   string    `json:"alias,omitempty"`
	Address string    `json:"address,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}
