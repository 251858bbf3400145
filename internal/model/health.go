package model

import "fmt"

// HealthState is the lifecycle position of a server's health.
type HealthState int

const (
	HealthUnknown HealthState = iota
	HealthChecking
	HealthHealthy
	HealthTimedOut
	HealthFailed
)

func (s HealthState) String() string {
	switch s {
	case HealthChecking:
		return "checking"
	case HealthHealthy:
		return "healthy"
	case HealthTimedOut:
		return "timeout"
	case HealthFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HealthStatus is the current health of one server. ServerName and
// ServerVersion are set for Healthy, Reason for Failed.
type HealthStatus struct {
	State         HealthState
	ServerName    string
	ServerVersion string
	Reason        string
}

func Checking() HealthStatus { return HealthStatus{State: HealthChecking} }

func TimedOut() HealthStatus { return HealthStatus{State: HealthTimedOut} }

func Healthy(name, version string) HealthStatus {
	return HealthStatus{State: HealthHealthy, ServerName: name, ServerVersion: version}
}

func Failed(reason string) HealthStatus {
	return HealthStatus{State: HealthFailed, Reason: reason}
}

// Terminal reports whether the status is a probe outcome.
func (h HealthStatus) Terminal() bool {
	return h.State == HealthHealthy || h.State == HealthTimedOut || h.State == HealthFailed
}

// Glyph is the single-character marker used in listings.
func (h HealthStatus) Glyph() string {
	switch h.State {
	case HealthChecking:
		return "…"
	case HealthHealthy:
		return "●"
	case HealthTimedOut:
		return "◌"
	case HealthFailed:
		return "✗"
	default:
		return "○"
	}
}

func (h HealthStatus) String() string {
	switch h.State {
	case HealthHealthy:
		return fmt.Sprintf("healthy (%s %s)", h.ServerName, h.ServerVersion)
	case HealthFailed:
		return "failed: " + h.Reason
	case HealthTimedOut:
		return "timed out"
	default:
		return h.State.String()
	}
}

// ParseHealthState is the inverse of HealthState.String.
func ParseHealthState(s string) (HealthState, error) {
	for _, st := range []HealthState{HealthUnknown, HealthChecking, HealthHealthy, HealthTimedOut, HealthFailed} {
		if st.String() == s {
			return st, nil
		}
	}
	return HealthUnknown, fmt.Errorf("unknown health state %q", s)
}
