package activity

import (
	"fmt"
	"time"
)

// Record is the serializable form of an Activity.
type Record struct {
	ID     ID                `json:"id"`
	Name   string            `json:"name"`
	Phases []ExecutionRecord `json:"phases"`
}

// ExecutionRecord is the serializable form of a PhaseExecution.
type ExecutionRecord struct {
	Phase       Phase        `json:"phase"`
	StartedAt   time.Time    `json:"started_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Record returns a point-in-time copy of the activity.
func (a *Activity) Record() Record {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec := Record{
		ID:     a.id,
		Name:   a.name,
		Phases: make([]ExecutionRecord, 0, phaseCount),
	}
	for _, e := range a.executions {
		if e == nil {
			continue
		}
		rec.Phases = append(rec.Phases, ExecutionRecord{
			Phase:       e.phase,
			StartedAt:   e.startedAt,
			Attachments: e.Attachments(),
		})
	}
	return rec
}

// FromRecord rebuilds an activity from its record.
//
// The record must start with PROVISIONING and list phases in strictly increasing order.
func FromRecord(rec Record) (*Activity, error) {
	if !rec.ID.IsValid() {
		return nil, fmt.Errorf("record has invalid id %s", rec.ID)
	}
	if len(rec.Phases) == 0 || rec.Phases[0].Phase != Provisioning {
		return nil, fmt.Errorf("record %s does not start with %s", rec.ID, Provisioning)
	}

	a := newAt(rec.ID, rec.Phases[0].StartedAt)
	if rec.Name != "" {
		a.name = rec.Name
	}

	for i, er := range rec.Phases {
		if !er.Phase.IsValid() {
			return nil, fmt.Errorf("record %s: %w: %d", rec.ID, ErrUnknownPhase, int(er.Phase))
		}
		if i > 0 && er.Phase <= rec.Phases[i-1].Phase {
			return nil, fmt.Errorf("record %s: phase %s out of order", rec.ID, er.Phase)
		}

		attachments := make([]Attachment, len(er.Attachments))
		copy(attachments, er.Attachments)
		a.executions[er.Phase] = &PhaseExecution{
			phase:       er.Phase,
			startedAt:   er.StartedAt,
			attachments: attachments,
		}
		a.current = er.Phase
	}
	return a, nil
}
