package activity

import (
	"fmt"
	"strings"
	"time"
)

// Attachment is diagnostic information recorded against a phase.
type Attachment struct {
	// Status is the outcome this attachment reports.
	Status Status `json:"status"`
	// Title is a one line summary.
	Title string `json:"title"`
	// Detail holds longer diagnostics, such as the full error text.
	Detail string `json:"detail,omitempty"`
	// Timestamp is when the attachment was created.
	Timestamp time.Time `json:"timestamp"`
}

// NewAttachment creates an attachment with the given status and title.
func NewAttachment(status Status, title string) Attachment {
	return Attachment{
		Status:    status,
		Title:     title,
		Timestamp: time.Now(),
	}
}

// NewErrorAttachment creates an attachment describing err.
// The title is the first line of the error message and Detail holds all of it.
func NewErrorAttachment(status Status, err error) Attachment {
	if err == nil {
		return NewAttachment(status, "unknown error")
	}

	msg := fmt.Sprintf("%+v", err)
	title, _, _ := strings.Cut(err.Error(), "\n")
	return Attachment{
		Status:    status,
		Title:     title,
		Detail:    msg,
		Timestamp: time.Now(),
	}
}

// PhaseExecution records one activity having entered one phase.
type PhaseExecution struct {
	phase       Phase
	startedAt   time.Time
	attachments []Attachment
}

// Phase returns the phase that was entered.
func (e *PhaseExecution) Phase() Phase {
	return e.phase
}

// StartedAt returns when the phase was entered.
func (e *PhaseExecution) StartedAt() time.Time {
	return e.startedAt
}

// Attachments returns the attachments in the order they were recorded.
func (e *PhaseExecution) Attachments() []Attachment {
	result := make([]Attachment, len(e.attachments))
	copy(result, e.attachments)
	return result
}

// Attachment returns the i-th attachment, or false if there is none.
func (e *PhaseExecution) Attachment(i int) (Attachment, bool) {
	if i < 0 || i >= len(e.attachments) {
		return Attachment{}, false
	}
	return e.attachments[i], true
}

// Status returns the worst status among the attachments, or StatusOK if there are none.
func (e *PhaseExecution) Status() Status {
	status := StatusOK
	for _, a := range e.attachments {
		status = status.Worse(a.Status)
	}
	return status
}

func (e *PhaseExecution) clone() *PhaseExecution {
	return &PhaseExecution{
		phase:       e.phase,
		startedAt:   e.startedAt,
		attachments: e.Attachments(),
	}
}
