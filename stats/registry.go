package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/history"
	"github.com/nomis52/cloudstats/metrics"
	"github.com/nomis52/cloudstats/store"
)

// DefaultPersistTimeout bounds a single save of the registry state.
const DefaultPersistTimeout = 10 * time.Second

// Store is where the registry state is kept between restarts.
type Store interface {
	// Load returns the stored document, or nil if nothing was stored yet.
	Load(ctx context.Context) (*store.Document, error)
	// Save replaces the stored document.
	Save(ctx context.Context, doc *store.Document) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithStore sets the persistence sink. Without one the registry is memory only.
func WithStore(s Store) Option {
	return func(r *Registry) {
		r.store = s
	}
}

// WithCapacity sets the number of completed activities kept in history.
func WithCapacity(capacity int) Option {
	return func(r *Registry) {
		r.capacity = capacity
	}
}

// WithMetrics publishes registry gauges and counters to reg.
func WithMetrics(reg metrics.Registry) Option {
	return func(r *Registry) {
		r.metrics = reg
	}
}

// WithStrict makes contract violations, such as attaching to a phase that was never
// entered, panic instead of being logged.
func WithStrict(strict bool) Option {
	return func(r *Registry) {
		r.strict = strict
	}
}

// WithPersistTimeout bounds each save. Defaults to DefaultPersistTimeout.
func WithPersistTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.persistTimeout = d
	}
}

// Registry tracks active and recently completed activities.
type Registry struct {
	logger         *slog.Logger
	store          Store
	metrics        metrics.Registry
	recorder       *recorder
	capacity       int
	strict         bool
	persistTimeout time.Duration

	// mu guards membership of active and history jointly. Lock order is mu, then the
	// activity's own lock.
	mu      sync.Mutex
	active  []*activity.Activity
	history *history.Ring[*activity.Activity]

	// saveMu serializes saves so an older snapshot never overwrites a newer one.
	saveMu   sync.Mutex
	lastSave atomic.Pointer[saveResult]
}

type saveResult struct {
	at  time.Time
	err error
}

// New creates a Registry and loads any state kept in its Store.
// A state that cannot be loaded is logged and the registry starts empty.
func New(ctx context.Context, opts ...Option) *Registry {
	r := &Registry{
		logger:         slog.Default(),
		capacity:       history.DefaultCapacity,
		persistTimeout: DefaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.capacity < 1 {
		r.capacity = history.DefaultCapacity
	}
	r.history = history.New[*activity.Activity](r.capacity)

	if r.metrics != nil {
		rec, err := newRecorder(r.metrics)
		if err != nil {
			r.logger.Warn("unable to register metrics", "error", err)
		} else {
			r.recorder = rec
		}
	}

	r.load(ctx)
	r.observe()
	return r
}

// Start begins tracking id in the PROVISIONING phase.
//
// IDs are trusted to be unique. A strict registry logs a duplicate but still starts it.
func (r *Registry) Start(id activity.ID) *activity.Activity {
	a := r.add(id)
	r.observe()
	r.persist()
	return a
}

// StartAll begins tracking every id and saves once.
func (r *Registry) StartAll(ids ...activity.ID) []*activity.Activity {
	if len(ids) == 0 {
		return nil
	}
	started := make([]*activity.Activity, 0, len(ids))
	for _, id := range ids {
		started = append(started, r.add(id))
	}
	r.observe()
	r.persist()
	return started
}

func (r *Registry) add(id activity.ID) *activity.Activity {
	if r.strict && r.FindAny(id) != nil {
		r.logger.Warn("activity started twice", "id", id)
	}

	a := activity.New(id)
	r.mu.Lock()
	r.active = append(r.active, a)
	r.mu.Unlock()

	r.recorder.started()
	r.logger.Debug("activity started", "id", id)
	return a
}

// FindActive returns the activity tracking id. An activity that cannot be found is
// logged as a warning since it points at a caller bug or an activity that already
// rotated out of history.
func (r *Registry) FindActive(id activity.ID) *activity.Activity {
	if a := r.FindAny(id); a != nil {
		return a
	}
	r.logger.Warn("no activity tracked", "id", id)
	return nil
}

// FindAny returns the activity tracking id, or nil if there is none.
func (r *Registry) FindAny(id activity.ID) *activity.Activity {
	for _, a := range r.Activities() {
		if a.IsFor(id) {
			return a
		}
	}
	return nil
}

// ByFingerprint returns the first activity whose ID has the given fingerprint.
func (r *Registry) ByFingerprint(fp uint64) *activity.Activity {
	for _, a := range r.Activities() {
		if a.ID().Fingerprint() == fp {
			return a
		}
	}
	return nil
}

// Attach records attachment against phase of a.
//
// A FAIL attachment completes and archives the activity. Attaching to a phase that was
// never entered changes nothing and returns an error wrapping activity.ErrInvalidState.
func (r *Registry) Attach(a *activity.Activity, phase activity.Phase, attachment activity.Attachment) error {
	if a == nil {
		return nil
	}
	if err := a.Attach(phase, attachment); err != nil {
		r.contractViolation(err)
		return err
	}

	if attachment.Status == activity.StatusFail && a.EnterIfNotAlready(activity.Completed) {
		r.archive(a)
	}
	r.persist()
	return nil
}

// Enter moves a into phase unless it was entered before, and reports whether it moved.
// Entering COMPLETED archives the activity.
func (r *Registry) Enter(a *activity.Activity, phase activity.Phase) bool {
	if a == nil || !a.EnterIfNotAlready(phase) {
		return false
	}
	if phase == activity.Completed {
		r.archive(a)
	} else {
		r.observe()
	}
	r.persist()
	return true
}

// Complete moves a into COMPLETED and archives it.
func (r *Registry) Complete(a *activity.Activity) bool {
	return r.Enter(a, activity.Completed)
}

// Rename changes the display name of a and reports whether it changed.
func (r *Registry) Rename(a *activity.Activity, name string) bool {
	if a == nil || !a.Rename(name) {
		return false
	}
	r.persist()
	return true
}

// Archive moves a completed activity from the active set to history and saves. It
// reports false, and leaves history alone, if a was not active. Archiving an activity
// that has not entered COMPLETED is a contract violation and changes nothing.
func (r *Registry) Archive(a *activity.Activity) bool {
	if a == nil {
		return false
	}
	if a.PhaseExecution(activity.Completed) == nil {
		r.contractViolation(fmt.Errorf("%w: %s archived before it completed", activity.ErrInvalidState, a.ID()))
		return false
	}
	if r.archive(a) == 0 {
		return false
	}
	r.persist()
	return true
}

// archive moves the completed activities among activities into history. History only
// ever holds completed activities.
func (r *Registry) archive(activities ...*activity.Activity) int {
	moved := make([]*activity.Activity, 0, len(activities))

	r.mu.Lock()
	for _, a := range activities {
		if a.PhaseExecution(activity.Completed) == nil {
			continue
		}
		i := slices.Index(r.active, a)
		if i < 0 {
			continue
		}
		r.active = slices.Delete(r.active, i, i+1)
		moved = append(moved, a)
	}
	r.history.AddAll(moved...)
	r.mu.Unlock()

	for _, a := range moved {
		r.recorder.archived(a.Status())
		r.logger.Debug("activity archived", "id", a.ID(), "status", a.Status())
	}
	r.observe()
	return len(moved)
}

// Activities returns history, oldest first, followed by the active set.
func (r *Registry) Activities() []*activity.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.history.Items()
	return append(out, r.active...)
}

// NotCompleted returns active activities that have not reached COMPLETED.
func (r *Registry) NotCompleted() []*activity.Activity {
	retained := r.Retained()
	out := make([]*activity.Activity, 0, len(retained))
	for _, a := range retained {
		if a.CurrentPhase() != activity.Completed {
			out = append(out, a)
		}
	}
	return out
}

// Retained returns a copy of the active set without filtering.
func (r *Registry) Retained() []*activity.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.active)
}

// IsEmpty reports whether nothing is tracked at all.
func (r *Registry) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active) == 0 && r.history.Len() == 0
}

// Counts returns the sizes of the active set and history, and the history capacity.
func (r *Registry) Counts() (active, archived, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active), r.history.Len(), r.history.Cap()
}

// Index builds an Index over a snapshot of all activities.
func (r *Registry) Index() *Index {
	return NewIndex(r.Activities())
}

// Resize changes the history capacity, keeping the most recently completed activities.
func (r *Registry) Resize(capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("history capacity must be positive, got %d", capacity)
	}

	r.mu.Lock()
	if r.history.Cap() == capacity {
		r.mu.Unlock()
		return nil
	}
	old := r.history.Cap()
	r.history.Resize(capacity)
	r.mu.Unlock()

	r.logger.Info("resized history", "from", old, "to", capacity)
	r.observe()
	r.persist()
	return nil
}

// Document returns a snapshot of the registry state in its stored form.
func (r *Registry) Document() *store.Document {
	r.mu.Lock()
	archived := r.history.Items()
	active := slices.Clone(r.active)
	capacity := r.history.Cap()
	r.mu.Unlock()

	doc := &store.Document{
		Version:  store.CurrentVersion,
		Capacity: capacity,
		Active:   make([]activity.Record, 0, len(active)),
		History:  make([]activity.Record, 0, len(archived)),
	}
	for _, a := range active {
		doc.Active = append(doc.Active, a.Record())
	}
	for _, a := range archived {
		doc.History = append(doc.History, a.Record())
	}
	return doc
}

// Save writes the current state to the Store and returns any error.
func (r *Registry) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	err := r.store.Save(ctx, r.Document())
	if err != nil {
		err = fmt.Errorf("saving statistics: %w", err)
	}
	r.lastSave.Store(&saveResult{at: time.Now(), err: err})
	return err
}

// LastSave returns when the state was last written and the error of that write. The time
// is zero if nothing was saved yet.
func (r *Registry) LastSave() (time.Time, error) {
	res := r.lastSave.Load()
	if res == nil {
		return time.Time{}, nil
	}
	return res.at, res.err
}

// persist saves the state and logs a failure. The in-memory state stays authoritative.
func (r *Registry) persist() {
	if err := r.Save(context.Background()); err != nil {
		r.recorder.persistFailed()
		r.logger.Error("unable to store statistics", "error", err)
	}
}

func (r *Registry) contractViolation(err error) {
	if r.strict {
		panic(err)
	}
	r.logger.Error("activity contract violated", "error", err)
}

// observe publishes the current sizes. It must be called without holding mu.
func (r *Registry) observe() {
	if r.recorder == nil {
		return
	}
	byPhase := make(map[activity.Phase]int)
	for _, a := range r.Retained() {
		byPhase[a.CurrentPhase()]++
	}
	active, archived, capacity := r.Counts()
	r.recorder.observe(active, archived, capacity, byPhase)
}

// load restores the stored state and migrates documents written by older versions:
//   - a document without an active set kept everything in history; entries that never
//     completed belong to the active set
//   - COMPLETED activities found in the active set belong to history
//   - history is trimmed or grown to the configured capacity
//
// Any migration is saved straight away.
func (r *Registry) load(ctx context.Context) {
	if r.store == nil {
		return
	}

	doc, err := r.store.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			r.logger.Error("stored statistics are corrupt, starting empty", "error", err)
		} else {
			r.logger.Warn("unable to load stored statistics", "error", err)
		}
		return
	}
	if doc == nil {
		return
	}

	changed := doc.Version < store.CurrentVersion
	if doc.Capacity != 0 && doc.Capacity != r.capacity {
		r.logger.Info("history capacity changed", "stored", doc.Capacity, "configured", r.capacity)
		changed = true
	}

	active, ok := r.restore(doc.Active)
	changed = changed || !ok
	archived, ok := r.restore(doc.History)
	changed = changed || !ok

	if len(active) == 0 {
		var completed []*activity.Activity
		for _, a := range archived {
			if a.PhaseExecution(activity.Completed) == nil {
				active = append(active, a)
				changed = true
			} else {
				completed = append(completed, a)
			}
		}
		archived = completed
	}

	stillActive := active[:0:0]
	for _, a := range active {
		if a.CurrentPhase() == activity.Completed {
			archived = append(archived, a)
			changed = true
		} else {
			stillActive = append(stillActive, a)
		}
	}

	r.mu.Lock()
	r.active = stillActive
	r.history.Clear()
	r.history.AddAll(archived...)
	r.mu.Unlock()

	r.logger.Info("loaded stored statistics",
		"active", len(stillActive),
		"history", r.history.Len(),
		"migrated", changed)

	if changed {
		r.persist()
	}
}

func (r *Registry) restore(records []activity.Record) ([]*activity.Activity, bool) {
	ok := true
	out := make([]*activity.Activity, 0, len(records))
	for _, rec := range records {
		a, err := activity.FromRecord(rec)
		if err != nil {
			r.logger.Warn("dropping unreadable activity", "error", err)
			ok = false
			continue
		}
		out = append(out, a)
	}
	return out, ok
}
