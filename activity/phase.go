package activity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPhase is returned when a phase name cannot be parsed.
var ErrUnknownPhase = errors.New("unknown phase")

// Phase is one stage of the provisioning lifecycle. Phases are strictly ordered.
type Phase int

const (
	// Provisioning indicates the resource is being requested from the cloud.
	Provisioning Phase = iota
	// Launching indicates the resource exists and is being connected.
	Launching
	// Operating indicates the resource is online and doing work.
	Operating
	// Completed indicates the attempt is over, successfully or not. It is terminal.
	Completed
)

const phaseCount = int(Completed) + 1

// Phases returns all phases in lifecycle order.
func Phases() []Phase {
	return []Phase{Provisioning, Launching, Operating, Completed}
}

// IsValid reports whether p is one of the defined phases.
func (p Phase) IsValid() bool {
	return p >= Provisioning && p <= Completed
}

// String returns the upper case name of the phase.
func (p Phase) String() string {
	switch p {
	case Provisioning:
		return "PROVISIONING"
	case Launching:
		return "LAUNCHING"
	case Operating:
		return "OPERATING"
	case Completed:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// ParsePhase converts a phase name, in any case, to a Phase.
func ParsePhase(s string) (Phase, error) {
	for _, p := range Phases() {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Status is the outcome recorded by an attachment. Higher values are more severe.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
)

// String returns the upper case name of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Worse returns the more severe of s and other.
func (s Status) Worse(other Status) Status {
	if other > s {
		return other
	}
	return s
}

// ParseStatus converts a status name, in any case, to a Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(s) {
	case "OK":
		return StatusOK, nil
	case "WARN", "WARNING":
		return StatusWarn, nil
	case "FAIL", "FAILURE":
		return StatusFail, nil
	default:
		return StatusOK, fmt.Errorf("unknown status %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
