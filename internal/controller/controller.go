// Package controller drives generations to a terminal status.
//
// Changes to generations and to their execution resources enqueue the
// generation id. Workers take ids off the queue and reconcile them. The
// queue never hands the same id to two workers at once, so reconciles of
// one generation are serialized while different generations proceed in
// parallel. A periodic resync enqueues every non-terminal generation to
// make up for missed events.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/client-go/util/workqueue"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
	"github.com/project-ncl/sbomer-sub004/internal/generation"
	"github.com/project-ncl/sbomer-sub004/internal/generator"
	"github.com/project-ncl/sbomer-sub004/internal/retry"
)

type Config struct {
	Workers      int           `env:"WORKERS" envDefault:"4" validate:"gte=1"`
	ResyncPeriod time.Duration `env:"RESYNC_PERIOD" envDefault:"20s" validate:"gt=0"`
}

// Database is the part of generation.Database the controller uses.
type Database interface {
	GetGeneration(ctx context.Context, params *generation.DatabaseGetGenerationParams) (*generation.Generation, error)
	ListGenerations(ctx context.Context, params *generation.DatabaseListGenerationsParams) ([]*generation.Generation, error)
	UpdateGenerationStatus(ctx context.Context, params *generation.DatabaseUpdateGenerationStatusParams) (*generation.Generation, error)
	UpdateGenerationRetryCount(ctx context.Context, params *generation.DatabaseUpdateGenerationRetryCountParams) (*generation.Generation, error)
	UpdateGenerationConfig(ctx context.Context, params *generation.DatabaseUpdateGenerationConfigParams) (*generation.Generation, error)
	ListManifests(ctx context.Context, params *generation.DatabaseListManifestsParams) ([]*generation.Manifest, error)
}

type Leader interface {
	IsLeader() bool
}

// Notifier is told about every generation that reached a terminal status.
type Notifier interface {
	Notify(ctx context.Context, g *generation.Generation, manifests []*generation.Manifest) error
}

// Watcher calls f with the id of every generation it sees change.
// It returns when ctx is done or the underlying stream breaks.
type Watcher interface {
	Watch(ctx context.Context, f func(id uuid.UUID)) error
}

type MetricsSink interface {
	ReconcileCompleted(duration time.Duration, err error)
	StatusApplied(status string)
	RetryScheduled(retryCount int)
	GenerationTerminated(result string)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Database Database            // required
	Store    execution.Store     // required
	Registry *generator.Registry // required
	Retry    *retry.Policy       // required
	Leader   Leader              // required
	Notifier Notifier            // optional
	Metrics  MetricsSink         // optional
	Cache    StatusCache         // optional
	Watchers []Watcher           // optional, Store is always watched
	Log      *slog.Logger        // optional
}

type Controller struct {
	config   Config
	db       Database
	store    execution.Store
	registry *generator.Registry
	retry    *retry.Policy
	leader   Leader
	notifier Notifier
	metrics  MetricsSink
	cache    StatusCache
	watchers []Watcher
	queue    workqueue.RateLimitingInterface
	log      *slog.Logger
}

func New(cfg *Config, deps *Deps) *Controller {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	cache := deps.Cache
	if cache == nil {
		cache = NewStatusCache()
	}

	return &Controller{
		config:   *cfg,
		db:       deps.Database,
		store:    deps.Store,
		registry: deps.Registry,
		retry:    deps.Retry,
		leader:   deps.Leader,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		cache:    cache,
		watchers: append([]Watcher{deps.Store}, deps.Watchers...),
		queue: workqueue.NewRateLimitingQueueWithConfig(
			workqueue.DefaultControllerRateLimiter(),
			workqueue.RateLimitingQueueConfig{Name: "generations"},
		),
		log: log.With("component", "controller.Controller"),
	}
}

// Enqueue schedules a reconcile of the generation.
func (c *Controller) Enqueue(id uuid.UUID) {
	c.queue.Add(id)
}

// Run blocks until ctx is done and every worker has returned.
func (c *Controller) Run(ctx context.Context) {
	c.log.Info("starting controller", "workers", c.config.Workers, "resync_period", c.config.ResyncPeriod)

	var wg sync.WaitGroup
	for _, w := range c.watchers {
		wg.Add(1)
		go func(w Watcher) {
			defer wg.Done()
			c.watch(ctx, w)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.resyncLoop(ctx)
	}()

	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c.processNextItem(ctx) {
			}
		}()
	}

	<-ctx.Done()
	c.log.Info("stopping controller")
	c.queue.ShutDown()
	wg.Wait()
	c.log.Info("stopped controller")
}

// watch restarts w with a growing wait whenever it breaks.
func (c *Controller) watch(ctx context.Context, w Watcher) {
	for retryNum := 0; ; retryNum++ {
		startedAt := time.Now()
		err := w.Watch(ctx, c.Enqueue)
		if ctx.Err() != nil {
			return
		}
		if time.Since(startedAt) > time.Minute {
			retryNum = 0
		}

		wait := retry.WaitDuration(retryNum)
		c.log.Warn("watch broke", "watcher", fmt.Sprintf("%T", w), "error", err, "wait", wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (c *Controller) resyncLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.ResyncPeriod)
	defer ticker.Stop()

	for {
		if err := c.Resync(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("didn't resync", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Resync enqueues every non-terminal generation.
func (c *Controller) Resync(ctx context.Context) error {
	generations, err := c.db.ListGenerations(ctx, &generation.DatabaseListGenerationsParams{
		Statuses: generation.NonTerminalStatuses(),
	})
	if err != nil {
		return fmt.Errorf("controller.Resync: %w", err)
	}
	for _, g := range generations {
		c.Enqueue(g.ID)
	}
	c.log.Debug("resynced", "count", len(generations))
	return nil
}

func (c *Controller) processNextItem(ctx context.Context) bool {
	item, shutdown := c.queue.Get()
	if shutdown {
		return false
	}
	defer c.queue.Done(item)

	id := item.(uuid.UUID)
	log := c.log.With("generation_id", id)

	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered panic outside reconcile", "panic", r)
			c.queue.AddRateLimited(item)
		}
	}()

	if err := c.Reconcile(ctx, id); err != nil {
		log.Error("didn't reconcile, requeueing", "error", err, "requeues", c.queue.NumRequeues(item))
		c.queue.AddRateLimited(item)
		return true
	}
	c.queue.Forget(item)
	return true
}
