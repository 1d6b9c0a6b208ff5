// Package handlers provides HTTP handlers for the cloudstats server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"
	"time"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/config"
	"github.com/nomis52/cloudstats/stats"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// ActivitySource provides snapshots of the tracked activities.
type ActivitySource interface {
	Activities() []*activity.Activity
	NotCompleted() []*activity.Activity
	ByFingerprint(fp uint64) *activity.Activity
	FindAny(id activity.ID) *activity.Activity
	Index() *stats.Index
}

// ProvisioningNotifier receives provisioning notifications.
type ProvisioningNotifier interface {
	OnStarted(planned ...any) []*activity.Activity
	OnComplete(planned any, name string)
	OnFailure(planned any, cause error)
}

// OperationNotifier receives launch and online notifications.
type OperationNotifier interface {
	PreLaunch(resource any) *activity.Activity
	LaunchFailure(resource any, cause error) *activity.Activity
	Online(resource any) *activity.Activity
}

// NodeNotifier receives node rename and delete notifications.
type NodeNotifier interface {
	OnUpdated(before, after stats.Named) *activity.Activity
	OnDeleted(node any) *activity.Activity
}

// LiveSetter accepts the pushed inventory of live resources.
type LiveSetter interface {
	Set(ids []activity.ID)
}

// Sweeper runs the reconciliation sweep on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Counter reports the size of the registry.
type Counter interface {
	Counts() (active, archived, capacity int)
}

// SweepSchedule reports when the periodic sweep runs.
type SweepSchedule interface {
	NextRun() time.Time
	LastRun() (time.Time, error)
}

// SaveChecker reports the outcome of the last save of the statistics.
type SaveChecker interface {
	LastSave() (time.Time, error)
}
