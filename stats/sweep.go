package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/nomis52/cloudstats/activity"
)

// Lister enumerates the resources that are currently alive.
type Lister interface {
	List(ctx context.Context) ([]activity.ID, error)
}

// ListerFunc adapts a function to a Lister.
type ListerFunc func(ctx context.Context) ([]activity.ID, error)

// List calls f.
func (f ListerFunc) List(ctx context.Context) ([]activity.ID, error) {
	return f(ctx)
}

// SnapshotLister is a Lister whose results may have been taken before the call, such as
// an inventory pushed by an orchestrator. ListSnapshot returns the resources together
// with the time they were taken.
type SnapshotLister interface {
	Lister
	ListSnapshot(ctx context.Context) ([]activity.ID, time.Time, error)
}

// listLive returns the live resources and the time they are known to be current.
func listLive(ctx context.Context, lister Lister) ([]activity.ID, time.Time, error) {
	if sl, ok := lister.(SnapshotLister); ok {
		return sl.ListSnapshot(ctx)
	}
	taken := time.Now()
	ids, err := lister.List(ctx)
	return ids, taken, err
}

// Sweep completes activities whose completion notification was missed and returns how
// many it archived.
//
// An active activity is completed when it reached LAUNCHING and its resource is no
// longer listed by lister. Activities still in PROVISIONING are left alone. An activity
// that reached LAUNCHING and vanished before it came online is completed too, even if
// it was only slow; this is an accepted limitation of the sweep. Activities already
// COMPLETED or FAILED are archived as well.
//
// An activity that entered LAUNCHING after the listing was taken cannot be in it, so it
// is left for a later sweep. If lister fails nothing is changed.
func (r *Registry) Sweep(ctx context.Context, lister Lister) (int, error) {
	ids, taken, err := listLive(ctx, lister)
	if err != nil {
		return 0, fmt.Errorf("listing live resources: %w", err)
	}
	live := make(map[activity.ID]struct{}, len(ids))
	for _, id := range ids {
		live[id] = struct{}{}
	}

	var (
		done  []*activity.Activity
		swept int
	)
	for _, a := range r.Retained() {
		if a.PhaseExecution(activity.Completed) != nil {
			done = append(done, a)
			continue
		}
		if a.Status() == activity.StatusFail {
			// failures complete on attach, so this is left over from an older write path
			r.logger.Warn("failed activity was still active", "id", a.ID())
			a.EnterIfNotAlready(activity.Completed)
			done = append(done, a)
			continue
		}
		launched := a.PhaseExecution(activity.Launching)
		if launched == nil {
			continue
		}
		if launched.StartedAt().After(taken) {
			r.logger.Debug("activity launched after the inventory was taken",
				"id", a.ID(), "launched_at", launched.StartedAt(), "inventory_at", taken)
			continue
		}
		if _, ok := live[a.ID()]; ok {
			continue
		}
		if a.EnterIfNotAlready(activity.Completed) {
			swept++
			r.logger.Info("completing dangling activity", "id", a.ID(), "name", a.Name())
		}
		done = append(done, a)
	}

	if len(done) == 0 {
		return 0, nil
	}
	archived := r.archive(done...)
	r.recorder.swept(swept)
	r.persist()
	return archived, nil
}
