package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
	"github.com/project-ncl/sbomer-sub004/internal/generation"
	"github.com/project-ncl/sbomer-sub004/internal/generator"
)

const reasonPrefixFailed = "Generation failed: "

var errNotLeader = errors.New("not leader")

// Reconcile advances the generation by at most one status.
//
// Failures of the generation are persisted as a FAILED status and are not
// returned. The returned error means the generation couldn't be loaded or
// its new status couldn't be persisted, and the reconcile should be retried.
func (c *Controller) Reconcile(ctx context.Context, id uuid.UUID) (err error) {
	startedAt := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.ReconcileCompleted(time.Since(startedAt), err)
		}
	}()

	log := c.log.With("generation_id", id)

	g, err := c.db.GetGeneration(ctx, &generation.DatabaseGetGenerationParams{ID: id})
	if errors.Is(err, generation.ErrNotFound) {
		log.Debug("skipped missing generation")
		c.cache.Delete(id)
		return nil
	} else if err != nil {
		return fmt.Errorf("controller.Reconcile: %w", err)
	}

	if g.Status.IsTerminal() {
		c.cache.Delete(id)
		return nil
	}

	if !c.leader.IsLeader() {
		log.Debug("skipped reconcile on non-leader", "status", g.Status)
		return nil
	}

	u, err := c.reconcileSafely(ctx, g, log)
	if errors.Is(err, errNotLeader) {
		log.Info("lost leadership during reconcile")
		return nil
	} else if err != nil {
		log.Error("failed generation", "status", g.Status, "error", err)
		u = generation.FailureUpdate(err)
		u.Reason = reasonPrefixFailed + u.Reason
	}
	if u == nil || u.Status == generation.StatusNoOp {
		return nil
	}

	if err = c.apply(ctx, g, u, log); err != nil {
		return fmt.Errorf("controller.Reconcile: %w", err)
	}
	return nil
}

// reconcileSafely turns a panic into a system error.
func (c *Controller) reconcileSafely(ctx context.Context, g *generation.Generation, log *slog.Logger) (u *generation.Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered panic", "panic", r)
			u, err = nil, generation.Errorf(generation.ResultErrSystem, "unexpected error: %v", r)
		}
	}()
	return c.reconcile(ctx, g, log)
}

// reconcile returns the update of g, or nil if there is none yet.
func (c *Controller) reconcile(ctx context.Context, g *generation.Generation, log *slog.Logger) (*generation.Update, error) {
	gen, err := c.registry.For(g.Target.Type)
	if err != nil {
		return nil, generation.Errorf(generation.ResultErrSystem, "%w", err)
	}

	resources, err := c.store.ListFor(ctx, g.ID)
	if err != nil {
		return nil, generation.Errorf(generation.ResultErrSystem, "list execution resources: %w", err)
	}

	switch g.Status {
	case generation.StatusNew:
		return c.start(ctx, g, gen, gen.FirstPhase(), resources, log)
	case generation.StatusInitialized:
		return c.start(ctx, g, gen, execution.PhaseGenerate, resources, log)
	case generation.StatusInitializing:
		return c.observe(ctx, g, gen, execution.PhaseInit, resources, log)
	case generation.StatusGenerating:
		return c.observe(ctx, g, gen, execution.PhaseGenerate, resources, log)
	default:
		return nil, nil
	}
}

// start creates the first resource of phase unless it already exists,
// and moves g to the status of the phase.
func (c *Controller) start(ctx context.Context, g *generation.Generation, gen generator.Generator, phase execution.Phase, resources []*execution.Resource, log *slog.Logger) (*generation.Update, error) {
	if r := execution.MostRelevant(resources, phase); r != nil {
		log.Info("adopted existing execution resource", "name", r.Spec.Name)
	} else {
		spec, err := gen.Desired(g, phase, 0)
		if err != nil {
			return nil, generation.Errorf(generation.ResultErrSystem, "build execution resource: %w", err)
		}
		if err = c.create(ctx, spec, log); err != nil {
			return nil, err
		}
	}

	return &generation.Update{
		Status: phase.Status(),
		Reason: fmt.Sprintf("Execution resource for the %s phase was scheduled", phase),
	}, nil
}

// observe acts on the condition of the resource of phase.
func (c *Controller) observe(ctx context.Context, g *generation.Generation, gen generator.Generator, phase execution.Phase, resources []*execution.Resource, log *slog.Logger) (*generation.Update, error) {
	r := execution.MostRelevant(resources, phase)
	if r == nil {
		return nil, generation.Errorf(generation.ResultErrSystem, "execution resource for the %s phase disappeared", phase)
	}

	cond := r.Condition()
	switch cond.Status {
	case execution.ConditionTrue:
		log.Info("execution resource succeeded", "name", r.Spec.Name)
		if phase == execution.PhaseInit {
			return c.finishInit(ctx, g, gen)
		}
		return gen.ReconcileGenerating(ctx, g, r)
	case execution.ConditionFalse:
		log.Warn("execution resource failed", "name", r.Spec.Name, "reason", cond.Reason)
		return c.handleFailure(ctx, g, gen, phase, r, log)
	default:
		log.Debug("execution resource is running", "name", r.Spec.Name)
		return nil, nil
	}
}

func (c *Controller) finishInit(ctx context.Context, g *generation.Generation, gen generator.Generator) (*generation.Update, error) {
	initializer, ok := gen.(generator.Initializer)
	if !ok {
		return nil, generation.Errorf(generation.ResultErrSystem, "generator %s: %w", gen.Name(), generator.ErrNoInitPhase)
	}

	config, err := initializer.ParseInitResult(g)
	if err != nil {
		return nil, err
	}

	_, err = c.db.UpdateGenerationConfig(ctx, &generation.DatabaseUpdateGenerationConfigParams{ID: g.ID, Config: config})
	if err != nil {
		return nil, generation.Errorf(generation.ResultErrSystem, "store generator config: %w", err)
	}

	return &generation.Update{
		Status: generation.StatusInitialized,
		Reason: "Initialization finished successfully",
	}, nil
}

// handleFailure either fails g or replaces r with the next attempt.
// The retry count is stored first. The old resource is deleted before the
// new one is created so that two attempts never run at once.
func (c *Controller) handleFailure(ctx context.Context, g *generation.Generation, gen generator.Generator, phase execution.Phase, r *execution.Resource, log *slog.Logger) (*generation.Update, error) {
	d := c.retry.Decide(r)

	if g.RetryCount < d.RetryCount {
		if !c.leader.IsLeader() {
			return nil, errNotLeader
		}
		updated, err := c.db.UpdateGenerationRetryCount(ctx, &generation.DatabaseUpdateGenerationRetryCountParams{ID: g.ID, RetryCount: d.RetryCount})
		if err != nil {
			return nil, generation.Errorf(generation.ResultErrSystem, "store retry count: %w", err)
		}
		g = updated
	}

	if !d.Retry {
		return d.Update, nil
	}

	if err := c.delete(ctx, r.Ref(), log); err != nil {
		return nil, err
	}

	spec, err := gen.Desired(g, phase, d.Attempt)
	if err != nil {
		return nil, generation.Errorf(generation.ResultErrSystem, "build execution resource: %w", err)
	}
	if err = c.create(ctx, spec, log); err != nil {
		return nil, err
	}

	log.Info("retrying out of memory execution resource", "phase", phase, "attempt", d.Attempt, "retry_count", d.RetryCount, "max_retries", c.retry.MaxRetries, "memory_limit", spec.Resources.Limits.Memory.String())
	if c.metrics != nil {
		c.metrics.RetryScheduled(d.RetryCount)
	}
	return nil, nil
}

func (c *Controller) create(ctx context.Context, spec *execution.Spec, log *slog.Logger) error {
	if !c.leader.IsLeader() {
		return errNotLeader
	}
	if _, err := c.store.Create(ctx, spec); err != nil {
		return generation.Errorf(generation.ResultErrSystem, "create execution resource %s: %w", spec.Name, err)
	}
	log.Info("created execution resource", "name", spec.Name)
	return nil
}

func (c *Controller) delete(ctx context.Context, ref *execution.Reference, log *slog.Logger) error {
	if !c.leader.IsLeader() {
		return errNotLeader
	}
	if err := c.store.Delete(ctx, ref); err != nil {
		return generation.Errorf(generation.ResultErrSystem, "delete execution resource %s: %w", ref.Name, err)
	}
	log.Info("deleted execution resource", "name", ref.Name)
	return nil
}

// apply persists u if it moves g forward and wasn't already persisted.
func (c *Controller) apply(ctx context.Context, g *generation.Generation, u *generation.Update, log *slog.Logger) error {
	if !generation.CanTransition(g.Status, u.Status) {
		log.Debug("dropped stale update", "status", g.Status, "update_status", u.Status)
		return nil
	}
	if cached, ok := c.cache.Get(g.ID); ok && cached == u.Status {
		log.Debug("dropped duplicate update", "update_status", u.Status)
		return nil
	}
	if !c.leader.IsLeader() {
		log.Debug("dropped update on non-leader", "update_status", u.Status)
		return nil
	}

	updated, err := c.db.UpdateGenerationStatus(ctx, &generation.DatabaseUpdateGenerationStatusParams{
		ID:     g.ID,
		Status: u.Status,
		Result: u.Result,
		Reason: u.Reason,
	})
	if errors.Is(err, generation.ErrStaleStatus) {
		log.Debug("dropped update older than the persisted status", "update_status", u.Status)
		return nil
	} else if err != nil {
		return err
	}

	c.cache.Put(g.ID, updated.Status)
	log.Info("updated generation status", "from", g.Status, "to", updated.Status, "result", updated.Result, "reason", updated.Reason)
	if c.metrics != nil {
		c.metrics.StatusApplied(updated.Status.String())
	}

	if updated.Status.IsTerminal() {
		if c.metrics != nil {
			c.metrics.GenerationTerminated(updated.Result.String())
		}
		c.notify(ctx, updated, log)
		return nil
	}

	// The next phase starts without waiting for an event.
	c.Enqueue(g.ID)
	return nil
}

// notify is fire-and-forget: failures are logged only.
func (c *Controller) notify(ctx context.Context, g *generation.Generation, log *slog.Logger) {
	if c.notifier == nil {
		return
	}

	manifests, err := c.db.ListManifests(ctx, &generation.DatabaseListManifestsParams{GenerationID: g.ID})
	if err != nil {
		log.Error("didn't list manifests for notification", "error", err)
		return
	}
	if err = c.notifier.Notify(ctx, g, manifests); err != nil {
		log.Error("didn't notify", "error", err)
	}
}
