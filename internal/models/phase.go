package models

import (
	"fmt"
	"strings"
)

// Phase represents a checkpoint in the pre-race decision timeline.
type Phase string

const (
	PhaseH30    Phase = "H30"
	PhaseH5     Phase = "H5"
	PhaseResult Phase = "RESULT"
)

// ParsePhase converts a string into a Phase, rejecting unknown values.
// Matching is case-insensitive so CLI input round-trips cleanly.
func ParsePhase(s string) (Phase, error) {
	switch Phase(strings.ToUpper(s)) {
	case PhaseH30, PhaseH5, PhaseResult:
		return Phase(strings.ToUpper(s)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
}

// Valid reports whether the phase is one of the known checkpoints.
func (p Phase) Valid() bool {
	switch p {
	case PhaseH30, PhaseH5, PhaseResult:
		return true
	default:
		return false
	}
}

// ProducesTickets reports whether the phase may emit tickets.
// Only H5 commits stakes; H30 annotates and RESULT reconciles.
func (p Phase) ProducesTickets() bool {
	return p == PhaseH5
}

func (p Phase) String() string {
	return string(p)
}
