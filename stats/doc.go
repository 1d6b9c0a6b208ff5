// Package stats is the registry of provisioning activities.
//
// The Registry owns two collections:
//   - the active set: activities that have not reached COMPLETED
//   - the history: a bounded ring of the most recently completed activities
//
// Every change of membership between the two happens under a single lock, so a reader
// of Activities always sees each activity in exactly one of them. Every externally
// visible mutation is followed by a best-effort save of the whole state to the
// configured Store. Save and load failures are logged and never returned.
//
// Notifications from the outside world arrive through the listeners in this package,
// which translate caller types to activity IDs and drive the Registry.
//
// # Example
//
//	reg := stats.New(ctx,
//	    stats.WithLogger(logger),
//	    stats.WithStore(store.NewMemoryStore()),
//	    stats.WithCapacity(50),
//	)
//	stats.SetGlobal(reg)
//
//	a := reg.Start(activity.NewID("hetzner", "cx22", ""))
//	reg.Enter(a, activity.Launching)
//	reg.Attach(a, activity.Launching, activity.NewAttachment(activity.StatusFail, "boot timeout"))
//	// a is now COMPLETED and in history
package stats
