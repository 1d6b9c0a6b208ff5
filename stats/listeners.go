package stats

import (
	"fmt"
	"log/slog"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/logging"
)

// Tracked is implemented by resources that know which activity provisioned them.
type Tracked interface {
	ActivityID() activity.ID
}

// Named is implemented by resources that have a node name.
type Named interface {
	NodeName() string
}

// resolver turns notification subjects into activity IDs and logs unsupported types once.
type resolver struct {
	logger *slog.Logger
	seen   *logging.Dedup
}

func newResolver(logger *slog.Logger) resolver {
	return resolver{logger: logger, seen: logging.NewDedup(0)}
}

// idFor accepts an activity.ID or a Tracked value.
func (r resolver) idFor(subject any) (activity.ID, bool) {
	var id activity.ID
	switch v := subject.(type) {
	case activity.ID:
		id = v
	case Tracked:
		id = v.ActivityID()
	default:
		kind := fmt.Sprintf("%T", subject)
		if r.seen.First(kind) {
			r.logger.Info("ignoring notification for untracked type", "type", kind)
		}
		return activity.ID{}, false
	}
	return id, id.IsValid()
}

// ListenerOption configures the listeners.
type ListenerOption func(*listenerConfig)

type listenerConfig struct {
	logger   *slog.Logger
	executor Executor
}

// WithListenerLogger sets the logger for unsupported notifications.
func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(c *listenerConfig) {
		c.logger = logger
	}
}

// WithExecutor sets where deferred notifications run. Defaults to Inline.
func WithExecutor(e Executor) ListenerOption {
	return func(c *listenerConfig) {
		c.executor = e
	}
}

func newListenerConfig(opts []ListenerOption) listenerConfig {
	cfg := listenerConfig{
		logger:   slog.Default(),
		executor: Inline{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ProvisioningListener receives provisioning notifications from the orchestrator.
//
// Completion and failure are delivered while the orchestrator holds its own locks, so
// OnComplete and OnFailure hand the work to an Executor and return immediately.
type ProvisioningListener struct {
	registry *Registry
	executor Executor
	resolver resolver
}

// NewProvisioningListener creates a ProvisioningListener for registry.
func NewProvisioningListener(registry *Registry, opts ...ListenerOption) *ProvisioningListener {
	cfg := newListenerConfig(opts)
	return &ProvisioningListener{
		registry: registry,
		executor: cfg.executor,
		resolver: newResolver(cfg.logger),
	}
}

// OnStarted starts an activity for every planned resource and saves once.
func (l *ProvisioningListener) OnStarted(planned ...any) []*activity.Activity {
	ids := make([]activity.ID, 0, len(planned))
	for _, p := range planned {
		if id, ok := l.resolver.idFor(p); ok {
			ids = append(ids, id)
		}
	}
	return l.registry.StartAll(ids...)
}

// Started starts the activity for id. Use it for resources provisioned outside the
// orchestrator's normal path.
func (l *ProvisioningListener) Started(id activity.ID) *activity.Activity {
	return l.registry.Start(id)
}

// OnComplete records, asynchronously, that provisioning of planned finished and the
// resource is called name.
func (l *ProvisioningListener) OnComplete(planned any, name string) {
	id, ok := l.resolver.idFor(planned)
	if !ok {
		return
	}
	l.executor.Submit(func() {
		l.Completed(id, name)
	})
}

// Completed records that provisioning of id finished and the resource is called name.
func (l *ProvisioningListener) Completed(id activity.ID, name string) *activity.Activity {
	a := l.registry.FindActive(id)
	if a != nil && name != "" {
		l.registry.Rename(a, name)
	}
	return a
}

// OnFailure records, asynchronously, that provisioning of planned failed.
func (l *ProvisioningListener) OnFailure(planned any, cause error) {
	id, ok := l.resolver.idFor(planned)
	if !ok {
		return
	}
	l.executor.Submit(func() {
		l.Failed(id, cause)
	})
}

// Failed records that provisioning of id failed. The activity is completed and archived.
func (l *ProvisioningListener) Failed(id activity.ID, cause error) *activity.Activity {
	a := l.registry.FindActive(id)
	if a != nil {
		_ = l.registry.Attach(a, activity.Provisioning, activity.NewErrorAttachment(activity.StatusFail, cause))
	}
	return a
}

// OperationListener follows a provisioned resource while it launches and comes online.
// Launches may be retried, so every transition is idempotent.
type OperationListener struct {
	registry *Registry
	resolver resolver
}

// NewOperationListener creates an OperationListener for registry.
func NewOperationListener(registry *Registry, opts ...ListenerOption) *OperationListener {
	cfg := newListenerConfig(opts)
	return &OperationListener{
		registry: registry,
		resolver: newResolver(cfg.logger),
	}
}

func (l *OperationListener) find(resource any) *activity.Activity {
	id, ok := l.resolver.idFor(resource)
	if !ok {
		return nil
	}
	return l.registry.FindActive(id)
}

// PreLaunch records that resource is about to be launched.
func (l *OperationListener) PreLaunch(resource any) *activity.Activity {
	a := l.find(resource)
	l.registry.Enter(a, activity.Launching)
	return a
}

// LaunchFailure records a failed launch attempt as a warning. The launch may still be
// retried, so the activity stays active.
func (l *OperationListener) LaunchFailure(resource any, cause error) *activity.Activity {
	a := l.find(resource)
	if a == nil {
		return nil
	}
	if !l.registry.Enter(a, activity.Launching) && a.PhaseExecution(activity.Launching) == nil {
		// completed before it ever launched
		return a
	}
	_ = l.registry.Attach(a, activity.Launching, activity.NewErrorAttachment(activity.StatusWarn, cause))
	return a
}

// Online records that resource is operating.
func (l *OperationListener) Online(resource any) *activity.Activity {
	a := l.find(resource)
	l.registry.Enter(a, activity.Operating)
	return a
}

// NodeListener follows node renames and deletions.
type NodeListener struct {
	registry *Registry
	resolver resolver
}

// NewNodeListener creates a NodeListener for registry.
func NewNodeListener(registry *Registry, opts ...ListenerOption) *NodeListener {
	cfg := newListenerConfig(opts)
	return &NodeListener{
		registry: registry,
		resolver: newResolver(cfg.logger),
	}
}

// OnUpdated renames the activity of before when the node name changed.
func (l *NodeListener) OnUpdated(before, after Named) *activity.Activity {
	if before == nil || after == nil || before.NodeName() == after.NodeName() {
		return nil
	}
	id, ok := l.resolver.idFor(before)
	if !ok {
		return nil
	}
	a := l.registry.FindActive(id)
	l.registry.Rename(a, after.NodeName())
	return a
}

// OnDeleted completes and archives the activity of node. A phase that cloud
// integrations already entered themselves is left as it is.
func (l *NodeListener) OnDeleted(node any) *activity.Activity {
	id, ok := l.resolver.idFor(node)
	if !ok {
		return nil
	}
	a := l.registry.FindActive(id)
	l.registry.Complete(a)
	return a
}
