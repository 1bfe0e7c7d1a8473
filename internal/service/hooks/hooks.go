package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/botforge/botforge/internal/domain"
)

// Hook receives side-effect notifications from the pipeline and the runtime.
// Implementations must tolerate being called after the triggering record has
// already moved on; delivery is at-most-once and never retried.
type Hook interface {
	DeploymentActivated(ctx context.Context, deployment *domain.Deployment) error
	ExecutionFinished(ctx context.Context, execution *domain.Execution) error
}

// NopHook ignores all notifications.
type NopHook struct{}

func (NopHook) DeploymentActivated(context.Context, *domain.Deployment) error { return nil }
func (NopHook) ExecutionFinished(context.Context, *domain.Execution) error    { return nil }

// AsyncNotifier dispatches hook calls on their own goroutine with a bounded
// deadline. Failures are logged and dropped; they never affect the state
// machine that emitted them.
type AsyncNotifier struct {
	hook    Hook
	timeout time.Duration
	logger  *slog.Logger
}

// NewAsyncNotifier wraps hook for fire-and-forget delivery.
func NewAsyncNotifier(hook Hook, timeout time.Duration, logger *slog.Logger) *AsyncNotifier {
	if hook == nil {
		hook = NopHook{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncNotifier{hook: hook, timeout: timeout, logger: logger.With("component", "hooks")}
}

// DeploymentActivated notifies asynchronously that a deployment became active.
func (n *AsyncNotifier) DeploymentActivated(deployment *domain.Deployment) {
	d := *deployment
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.hook.DeploymentActivated(ctx, &d); err != nil {
			n.logger.Warn("deployment hook failed", "deployment_id", d.ID, "error", err)
		}
	}()
}

// ExecutionFinished notifies asynchronously that an execution reached a
// terminal status.
func (n *AsyncNotifier) ExecutionFinished(execution *domain.Execution) {
	e := *execution
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.hook.ExecutionFinished(ctx, &e); err != nil {
			n.logger.Warn("execution hook failed", "execution_id", e.ID, "error", err)
		}
	}()
}
