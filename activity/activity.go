package activity

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidState is returned when an operation does not fit the activity's phase history,
// such as attaching to a phase that was never entered.
var ErrInvalidState = errors.New("invalid activity state")

// Activity is one tracked provisioning attempt.
//
// The phase history only grows: phases are entered in lifecycle order and none is entered
// twice. All methods are safe for concurrent use.
type Activity struct {
	id ID

	mu         sync.RWMutex
	name       string
	executions [phaseCount]*PhaseExecution
	current    Phase
}

// New creates an activity for id in the PROVISIONING phase.
func New(id ID) *Activity {
	return newAt(id, time.Now())
}

func newAt(id ID, startedAt time.Time) *Activity {
	name := id.Name
	if name == "" {
		name = id.Cloud
	}
	a := &Activity{
		id:      id,
		name:    name,
		current: Provisioning,
	}
	a.executions[Provisioning] = &PhaseExecution{phase: Provisioning, startedAt: startedAt}
	return a
}

// ID returns the identity of the activity.
func (a *Activity) ID() ID {
	return a.id
}

// IsFor reports whether the activity tracks the attempt identified by id.
func (a *Activity) IsFor(id ID) bool {
	return a.id == id
}

// Name returns the display name of the activity.
func (a *Activity) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

// Rename changes the display name, typically once the provisioned resource has its final
// name. It reports whether the name changed.
func (a *Activity) Rename(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.name == name {
		return false
	}
	a.name = name
	return true
}

// StartedAt returns when the activity entered PROVISIONING.
func (a *Activity) StartedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.executions[Provisioning].startedAt
}

// CurrentPhase returns the most recently entered phase.
func (a *Activity) CurrentPhase() Phase {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Status returns the worst status across all phases.
func (a *Activity) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	status := StatusOK
	for _, e := range a.executions {
		if e != nil {
			status = status.Worse(e.Status())
		}
	}
	return status
}

// PhaseExecution returns a copy of the execution of phase, or nil if it was not entered.
func (a *Activity) PhaseExecution(phase Phase) *PhaseExecution {
	if !phase.IsValid() {
		return nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	e := a.executions[phase]
	if e == nil {
		return nil
	}
	return e.clone()
}

// PhaseExecutions returns copies of all entered phases in the order they were entered.
func (a *Activity) PhaseExecutions() []*PhaseExecution {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]*PhaseExecution, 0, phaseCount)
	for _, e := range a.executions {
		if e != nil {
			result = append(result, e.clone())
		}
	}
	return result
}

// Enter moves the activity into phase.
//
// Phases must be entered in lifecycle order. Entering a phase that was already entered,
// or one that precedes the current phase, returns ErrInvalidState and changes nothing.
func (a *Activity) Enter(phase Phase) error {
	if !phase.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownPhase, int(phase))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.executions[phase] != nil {
		return fmt.Errorf("%w: %s already entered by %s", ErrInvalidState, phase, a.id)
	}
	if phase < a.current {
		return fmt.Errorf("%w: cannot enter %s after %s for %s", ErrInvalidState, phase, a.current, a.id)
	}
	a.enterLocked(phase)
	return nil
}

// EnterIfNotAlready moves the activity into phase unless it was entered before.
//
// It reports whether a transition happened. Notifications that are delivered more than
// once, such as a relaunch of the same resource, are absorbed here. A phase that precedes
// the current one is never entered, so nothing leaves COMPLETED.
func (a *Activity) EnterIfNotAlready(phase Phase) bool {
	if !phase.IsValid() {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.executions[phase] != nil || phase < a.current {
		return false
	}
	a.enterLocked(phase)
	return true
}

func (a *Activity) enterLocked(phase Phase) {
	a.executions[phase] = &PhaseExecution{phase: phase, startedAt: time.Now()}
	a.current = phase
}

// Attach records attachment against phase. The phase must have been entered.
func (a *Activity) Attach(phase Phase, attachment Attachment) error {
	if !phase.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownPhase, int(phase))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.executions[phase]
	if e == nil {
		return fmt.Errorf("%w: %s not entered by %s", ErrInvalidState, phase, a.id)
	}
	e.attachments = append(e.attachments, attachment)
	return nil
}

// String returns a short description for logs.
func (a *Activity) String() string {
	return fmt.Sprintf("%s (%s)", a.Name(), a.CurrentPhase())
}
