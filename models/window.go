package models

// MainAlias is the reserved alias of the primary full-device mirror.
const MainAlias = "Main"

// Readiness is the outcome of the best-effort window readiness check.
type Readiness int

const (
	ReadinessUnknown    Readiness = iota
	ReadinessNotStarted           // handle missing or process already exited
	ReadinessVisible              // still running past half the readiness timeout
)

func (r Readiness) String() string {
	switch r {
	case ReadinessNotStarted:
		return "not_started"
	case ReadinessVisible:
		return "likely_visible"
	default:
		return "unknown"
	}
}

// WindowStatus is a read-only snapshot of one supervised window.
type WindowStatus struct {
	Alias    string `json:"alias"`
	Target   string `json:"target,omitempty"`
	PID      int    `json:"pid,omitempty"`
	Running  bool   `json:"running"`
	Exited   bool   `json:"exited"`
	ExitCode int    `json:"exit_code,omitempty"`
}
