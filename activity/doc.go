// Package activity models a single provisioning attempt and the phases it moves through.
//
// An Activity is created when provisioning of a resource begins and records every phase
// it enters, in order:
//
//	PROVISIONING -> LAUNCHING -> OPERATING -> COMPLETED
//
// COMPLETED is terminal and may be entered from any other phase (for example when
// provisioning fails outright). Each entered phase is captured as a PhaseExecution that
// carries the time it was entered and any attachments recorded against it. Attachments
// carry a Status; the status of a phase, and of the whole activity, is the worst status
// among its attachments.
//
// # Usage
//
//	id := activity.NewID("hetzner", "worker-cx22", "worker-1")
//	a := activity.New(id)
//
//	a.EnterIfNotAlready(activity.Launching) // true
//	a.EnterIfNotAlready(activity.Launching) // false, already entered
//
//	err := a.Attach(activity.Launching, activity.NewErrorAttachment(activity.StatusFail, launchErr))
//
// Activities are safe for concurrent use. Moving activities between the active set and
// the bounded history is the job of the stats package, not of this one.
package activity
