package models

import "time"

// ClassifierState is the bark classifier state machine position
type ClassifierState int

const (
	StateIdle ClassifierState = iota
	StateCandidate
	StateConfirmed
	StateCoolingDown
)

// String returns the state name used in logs and metrics
func (s ClassifierState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCandidate:
		return "candidate"
	case StateConfirmed:
		return "confirmed"
	case StateCoolingDown:
		return "cooling_down"
	default:
		return "unknown"
	}
}

// ClassifierSnapshot is a read-only copy of the classifier's state
type ClassifierSnapshot struct {
	State          ClassifierState `json:"state"`
	Envelope       float64         `json:"envelope"`
	Armed          bool            `json:"armed"`           // Idle has seen quiet since the last sound
	CandidateStart time.Time       `json:"candidate_start"` // Zero unless in candidate
	InBandEnergy   float64         `json:"in_band_energy"`  // Accumulated over the candidate
	Gaps           int             `json:"gaps"`            // Consecutive quiet windows inside the candidate
	CooldownUntil  time.Time       `json:"cooldown_until"`
	Confirmed      int             `json:"confirmed"` // Barks confirmed since start
}
