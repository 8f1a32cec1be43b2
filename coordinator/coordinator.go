// Package coordinator is the planning front door: it owns the plan map,
// serializes optimization per plan, and shields the oracle path behind a
// circuit breaker.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/collection-planner/internal/clock"
	"github.com/signalsfoundry/collection-planner/internal/logging"
	"github.com/signalsfoundry/collection-planner/internal/observability"
	"github.com/signalsfoundry/collection-planner/model"
)

const (
	// DefaultPlanTTL is how long an untouched plan stays in the map.
	DefaultPlanTTL = time.Hour
	// DefaultMaxConcurrentCreates bounds concurrent plan creations.
	DefaultMaxConcurrentCreates = 10
)

// NotFoundError reports a plan id the coordinator does not hold.
type NotFoundError struct {
	PlanID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plan %s not found", e.PlanID)
}

// Optimizer is the slice of the orchestrator the coordinator drives.
type Optimizer interface {
	OptimizeWithRetry(ctx context.Context, plan *model.CollectionPlan, params map[string]any) (*model.CollectionPlan, error)
	Cancel(ctx context.Context, planID string) (bool, error)
}

// StatusSummary is the caller-facing snapshot of a plan's state.
type StatusSummary struct {
	PlanID          string           `json:"plan_id"`
	SearchID        string           `json:"search_id"`
	Status          model.PlanStatus `json:"status"`
	WindowCount     int              `json:"window_count"`
	ConfidenceScore float64          `json:"confidence_score"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type planEntry struct {
	plan    *model.CollectionPlan
	touched time.Time
}

// Coordinator holds the in-memory plan map keyed by fingerprint and
// exposes the planning operations. Safe for concurrent use; optimization
// is additionally serialized per plan id.
type Coordinator struct {
	opt     Optimizer
	breaker *Breaker
	clk     clock.Clock
	log     logging.Logger
	metrics *observability.PlannerCollector

	ttl       time.Duration
	createSem chan struct{}

	mu        sync.Mutex
	plans     map[string]*planEntry
	planLocks map[string]*sync.Mutex
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock substitutes the clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clk = clk }
}

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithMetrics attaches a planner metrics collector.
func WithMetrics(m *observability.PlannerCollector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithPlanTTL overrides the plan map TTL.
func WithPlanTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxConcurrentCreates overrides the creation limiter size.
func WithMaxConcurrentCreates(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.createSem = make(chan struct{}, n)
		}
	}
}

// WithBreaker substitutes the circuit breaker.
func WithBreaker(b *Breaker) Option {
	return func(c *Coordinator) { c.breaker = b }
}

// New constructs a Coordinator over an optimizer.
func New(opt Optimizer, opts ...Option) *Coordinator {
	c := &Coordinator{
		opt:       opt,
		clk:       clock.NewReal(),
		log:       logging.Noop(),
		ttl:       DefaultPlanTTL,
		createSem: make(chan struct{}, DefaultMaxConcurrentCreates),
		plans:     make(map[string]*planEntry),
		planLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker(BreakerThreshold, BreakerRecovery, c.clk)
	}
	if c.metrics != nil {
		c.breaker.onStateChange = c.metrics.SetBreakerOpen
	}
	return c
}

// planKey mirrors the map key convention: search id, asset id, and plan
// start time.
func planKey(searchID, assetID string, start time.Time) string {
	return fmt.Sprintf("%s:%s:%s", searchID, assetID, start.UTC().Format(time.RFC3339Nano))
}

// CreateCollectionPlan builds and validates a new plan and inserts it
// into the plan map under the creation limiter.
func (c *Coordinator) CreateCollectionPlan(ctx context.Context, searchID string, asset *model.Asset, requirements []*model.Requirement, start, end time.Time, params map[string]any) (*model.CollectionPlan, error) {
	select {
	case c.createSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.createSem }()

	started := c.clk.Now()
	plan, err := model.NewCollectionPlan(searchID, asset, requirements, start, end, params)
	if err != nil {
		c.metrics.ObserveOperation("create_plan", "failure", c.clk.Now().Sub(started))
		return nil, err
	}

	key := planKey(searchID, asset.ID, start)
	c.mu.Lock()
	c.plans[key] = &planEntry{plan: plan, touched: c.clk.Now()}
	size := len(c.plans)
	c.mu.Unlock()

	c.metrics.ObserveOperation("create_plan", "success", c.clk.Now().Sub(started))
	c.metrics.SetPlanCacheSize(size)
	c.log.Info(ctx, "collection plan created",
		logging.String("plan_id", plan.ID),
		logging.String("search_id", searchID),
	)
	return plan, nil
}

// OptimizePlan locates a plan by id and runs optimization behind the
// circuit breaker, serialized per plan id. The id lookup is a linear
// scan, acceptable at the coordinator's target scale.
func (c *Coordinator) OptimizePlan(ctx context.Context, planID string) (*model.CollectionPlan, error) {
	c.sweepExpired(ctx)

	key, plan, ok := c.lookup(planID)
	if !ok {
		return nil, &NotFoundError{PlanID: planID}
	}

	lock := c.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.breaker.Allow(); err != nil {
		c.metrics.ObserveOperation("optimize_plan", "rejected", 0)
		c.log.Warn(ctx, "optimization rejected", logging.String("plan_id", planID), logging.Err(err))
		return nil, err
	}

	started := c.clk.Now()
	optimized, err := c.opt.OptimizeWithRetry(ctx, plan, plan.OptimizationParameters)
	if err != nil {
		c.breaker.RecordFailure()
		c.touch(key, plan)
		return nil, err
	}
	c.breaker.RecordSuccess()
	c.touch(key, optimized)

	c.log.Info(ctx, "plan optimized",
		logging.String("plan_id", planID),
		logging.Int("windows", len(optimized.Windows)),
		logging.Float("confidence", optimized.ConfidenceScore),
		logging.Any("duration", c.clk.Now().Sub(started)),
	)
	return optimized, nil
}

// GetPlanStatus returns a status summary for a plan. Because
// optimization runs detached from creation, this is the authoritative
// way to observe the outcome.
func (c *Coordinator) GetPlanStatus(planID string) (StatusSummary, error) {
	_, plan, ok := c.lookup(planID)
	if !ok {
		return StatusSummary{}, &NotFoundError{PlanID: planID}
	}
	return StatusSummary{
		PlanID:          plan.ID,
		SearchID:        plan.SearchID,
		Status:          plan.Status,
		WindowCount:     len(plan.Windows),
		ConfidenceScore: plan.ConfidenceScore,
		UpdatedAt:       plan.UpdatedAt,
	}, nil
}

// CancelOptimization asks the optimizer to abandon a plan's in-flight
// run. Returns false when nothing is in flight.
func (c *Coordinator) CancelOptimization(ctx context.Context, planID string) (bool, error) {
	if _, _, ok := c.lookup(planID); !ok {
		return false, &NotFoundError{PlanID: planID}
	}
	return c.opt.Cancel(ctx, planID)
}

// Len returns the number of plans currently held.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.plans)
}

// Close sweeps the plan map a final time.
func (c *Coordinator) Close(ctx context.Context) error {
	removed := c.sweepExpired(ctx)
	c.log.Info(ctx, "coordinator closed", logging.Int("swept", removed))
	return nil
}

// sweepExpired drops entries untouched for longer than the TTL, along
// with their per-plan locks.
func (c *Coordinator) sweepExpired(ctx context.Context) int {
	now := c.clk.Now()
	c.mu.Lock()
	removed := 0
	for key, entry := range c.plans {
		if now.Sub(entry.touched) > c.ttl {
			delete(c.plans, key)
			delete(c.planLocks, entry.plan.ID)
			removed++
		}
	}
	size := len(c.plans)
	c.mu.Unlock()

	if removed > 0 {
		c.metrics.SetPlanCacheSize(size)
		c.log.Debug(ctx, "expired plans swept", logging.Int("removed", removed))
	}
	return removed
}

func (c *Coordinator) lookup(planID string) (string, *model.CollectionPlan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.plans {
		if entry.plan.ID == planID {
			return key, entry.plan, true
		}
	}
	return "", nil, false
}

func (c *Coordinator) touch(key string, plan *model.CollectionPlan) {
	c.mu.Lock()
	if entry, ok := c.plans[key]; ok {
		entry.plan = plan
		entry.touched = c.clk.Now()
	}
	c.mu.Unlock()
}

func (c *Coordinator) planLock(planID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.planLocks[planID]
	if !ok {
		lock = &sync.Mutex{}
		c.planLocks[planID] = lock
	}
	return lock
}
