package models

// SessionStatus is a snapshot of the session for the control API.
type SessionStatus struct {
	Running   bool           `json:"running"`
	Connected bool           `json:"connected"`
	Serial    string         `json:"serial,omitempty"`
	Address   string         `json:"address,omitempty"`
	Options   []string       `json:"options"`
	Windows   []WindowStatus `json:"windows"`
}

// CommandRequest carries one interactive command line submitted over the API.
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// CommandResult is the outcome reported back to an API caller.
type CommandResult struct {
	Command string `json:"command"`
	Message string `json:"message"`
}
