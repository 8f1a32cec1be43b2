// Package orchestrator drives a collection plan through one optimization
// run against the oracle: cache check, concurrency admission, submit,
// poll, result filtering and merging, and the final state transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/signalsfoundry/collection-planner/internal/clock"
	"github.com/signalsfoundry/collection-planner/internal/logging"
	"github.com/signalsfoundry/collection-planner/internal/observability"
	"github.com/signalsfoundry/collection-planner/internal/store"
	"github.com/signalsfoundry/collection-planner/model"
	"github.com/signalsfoundry/collection-planner/oracle"
	"github.com/signalsfoundry/collection-planner/planner"
)

const (
	// PollInterval is the fixed delay between status polls.
	PollInterval = 2 * time.Second
	// OptimizationDeadline is the wall-clock budget for one optimization
	// run, measured from submission.
	OptimizationDeadline = 300 * time.Second
	// MinAcceptableScore is the confidence floor for oracle windows.
	MinAcceptableScore = 0.6
	// MaxAttempts bounds the caller-boundary retry of a whole run.
	MaxAttempts = 3
	// DefaultMaxConcurrent is the optimization slot count.
	DefaultMaxConcurrent = 10

	slotRetryDelay = time.Second
)

// TimeoutError reports an optimization run that exceeded its deadline.
// The plan ends FAILED; callers should stop rather than retry blindly.
type TimeoutError struct{}

func (*TimeoutError) Error() string { return "optimization timed out" }

// OptimizationError carries a failure reported by the oracle itself.
type OptimizationError struct {
	Reason string
}

func (e *OptimizationError) Error() string {
	return "optimization failed: " + e.Reason
}

// Oracle is the slice of the oracle client the orchestrator needs.
type Oracle interface {
	Submit(ctx context.Context, asset *model.Asset, requirements []*model.Requirement, params map[string]any) (*oracle.Submission, error)
	Poll(ctx context.Context, requestID string) (*oracle.PollResult, error)
	Cancel(ctx context.Context, requestID string) (bool, error)
}

// Performance is a snapshot of the orchestrator's run counters.
type Performance struct {
	TotalOptimizations int64
	CacheHits          int64
	FailedAttempts     int64
	AverageDuration    time.Duration
}

// Orchestrator runs plan optimizations with a result cache and a bounded
// concurrency limiter. It is safe for concurrent use.
type Orchestrator struct {
	oracle  Oracle
	cache   store.PlanStore
	clk     clock.Clock
	log     logging.Logger
	metrics *observability.PlannerCollector

	sem       chan struct{}
	retryBase time.Duration

	mu       sync.Mutex
	perf     Performance
	inflight map[string]string // plan id -> oracle request id
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock substitutes the clock, for deterministic tests.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) { o.clk = clk }
}

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithMetrics attaches a planner metrics collector.
func WithMetrics(m *observability.PlannerCollector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithMaxConcurrent overrides the optimization slot count.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = make(chan struct{}, n)
		}
	}
}

// WithRetryBase overrides the initial caller-boundary retry interval.
func WithRetryBase(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retryBase = d
		}
	}
}

// New constructs an Orchestrator over an oracle and a plan result cache.
func New(oc Oracle, cache store.PlanStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		oracle:    oc,
		cache:     cache,
		clk:       clock.NewReal(),
		log:       logging.Noop(),
		sem:       make(chan struct{}, DefaultMaxConcurrent),
		retryBase: time.Second,
		inflight:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Fingerprint identifies an optimization run by plan, asset, and plan
// start time. Cached results are keyed by it.
func Fingerprint(plan *model.CollectionPlan) string {
	return fmt.Sprintf("%s:%s:%s", plan.ID, plan.Asset.ID, plan.StartTime.UTC().Format(time.RFC3339Nano))
}

// Optimize runs a single optimization attempt for plan. On a cache hit
// the cached snapshot is returned with no further work. Any failure
// transitions the plan to FAILED, bumps the failure counter, and
// re-raises the original error unchanged. The concurrency slot is
// released on every exit path.
func (o *Orchestrator) Optimize(ctx context.Context, plan *model.CollectionPlan, params map[string]any) (*model.CollectionPlan, error) {
	ctx, span := startSpan(ctx, "Orchestrator/Optimize", plan.ID)
	result, err := o.optimize(ctx, plan, params)
	endSpan(span, err)
	return result, err
}

func (o *Orchestrator) optimize(ctx context.Context, plan *model.CollectionPlan, params map[string]any) (*model.CollectionPlan, error) {
	key := Fingerprint(plan)
	cached, hit, err := o.cache.Get(ctx, key)
	if err != nil {
		return nil, o.fail(ctx, plan, err)
	}
	if hit {
		o.mu.Lock()
		o.perf.CacheHits++
		o.mu.Unlock()
		o.metrics.ObserveOperation("optimize_plan", "cache_hit", 0)
		o.log.Debug(ctx, "optimization cache hit", logging.String("plan_id", plan.ID))
		return cached, nil
	}

	if err := o.acquireSlot(ctx); err != nil {
		return nil, o.fail(ctx, plan, err)
	}
	defer o.releaseSlot()

	started := o.clk.Now()
	if err := o.run(ctx, plan, params); err != nil {
		o.metrics.ObserveOperation("optimize_plan", "failure", o.clk.Now().Sub(started))
		return nil, o.fail(ctx, plan, err)
	}

	duration := o.clk.Now().Sub(started)
	o.recordSuccess(duration)
	o.metrics.ObserveOperation("optimize_plan", "success", duration)

	if err := o.cache.Set(ctx, key, plan); err != nil {
		o.log.Warn(ctx, "plan cache write failed", logging.Err(err))
	} else if n, err := o.cache.Len(ctx); err == nil {
		o.metrics.SetPlanCacheSize(n)
	}
	return plan, nil
}

// OptimizeWithRetry wraps Optimize in the caller-boundary retry: up to
// MaxAttempts tries with exponential backoff, each re-entering from the
// cache check. A FAILED plan is re-armed through FAILED -> DRAFT before
// re-entry. Validation, not-found, and state-machine errors are never
// retried.
func (o *Orchestrator) OptimizeWithRetry(ctx context.Context, plan *model.CollectionPlan, params map[string]any) (*model.CollectionPlan, error) {
	operation := func() (*model.CollectionPlan, error) {
		if plan.Status == model.PlanFailed {
			if err := plan.Transition(model.PlanDraft); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		result, err := o.Optimize(ctx, plan, params)
		if err != nil {
			if isPermanent(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return result, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.retryBase

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(MaxAttempts),
	)
}

// Cancel asks the oracle to abandon the in-flight optimization for a
// plan, dropping the locally tracked request. Returns false when the
// plan has no optimization in flight.
func (o *Orchestrator) Cancel(ctx context.Context, planID string) (bool, error) {
	o.mu.Lock()
	requestID, ok := o.inflight[planID]
	o.mu.Unlock()
	if !ok {
		return false, nil
	}

	cancelled, err := o.oracle.Cancel(ctx, requestID)
	if err != nil {
		return false, err
	}
	o.mu.Lock()
	delete(o.inflight, planID)
	o.mu.Unlock()
	return cancelled, nil
}

// Performance returns a snapshot of the run counters.
func (o *Orchestrator) Performance() Performance {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.perf
}

// run executes the submit/poll/apply sequence for one attempt.
func (o *Orchestrator) run(ctx context.Context, plan *model.CollectionPlan, params map[string]any) error {
	if err := plan.Transition(model.PlanProcessing); err != nil {
		return err
	}
	o.mu.Lock()
	o.perf.TotalOptimizations++
	o.mu.Unlock()

	merged := mergeParams(plan.OptimizationParameters, params)
	subCtx, subSpan := startSpan(ctx, "Orchestrator/Submit", plan.ID)
	sub, err := o.oracle.Submit(subCtx, plan.Asset, plan.Requirements, merged)
	endSpan(subSpan, err)
	if err != nil {
		return err
	}
	submittedAt := o.clk.Now()
	o.log.Info(ctx, "optimization submitted",
		logging.String("plan_id", plan.ID),
		logging.String("request_id", sub.RequestID),
	)

	o.mu.Lock()
	o.inflight[plan.ID] = sub.RequestID
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.inflight, plan.ID)
		o.mu.Unlock()
	}()

	pollCtx, pollSpan := startSpan(ctx, "Orchestrator/Poll", plan.ID)
	result, err := o.pollUntilDone(pollCtx, sub.RequestID, submittedAt)
	endSpan(pollSpan, err)
	if err != nil {
		return err
	}
	return o.applyResult(plan, result, merged)
}

// pollUntilDone polls the oracle at the fixed interval until COMPLETED,
// FAILED, or the wall-clock deadline. Leaving the loop without a
// COMPLETED result is always a timeout.
func (o *Orchestrator) pollUntilDone(ctx context.Context, requestID string, submittedAt time.Time) (*oracle.PollResult, error) {
	deadline := submittedAt.Add(OptimizationDeadline)
	for o.clk.Now().Before(deadline) {
		status, err := o.oracle.Poll(ctx, requestID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case oracle.StatusCompleted:
			return status, nil
		case oracle.StatusFailed:
			return nil, &OptimizationError{Reason: status.Error}
		}
		if err := o.clk.Sleep(ctx, PollInterval); err != nil {
			return nil, err
		}
	}
	return nil, &TimeoutError{}
}

// applyResult filters, merges, and installs the oracle's windows, then
// recomputes the plan confidence and transitions to OPTIMIZED. A single
// rejected window aborts the whole step.
func (o *Orchestrator) applyResult(plan *model.CollectionPlan, result *oracle.PollResult, params map[string]any) error {
	if len(result.Windows) == 0 {
		return model.Validationf("no valid collection windows")
	}

	accepted := make([]planner.Window, 0, len(result.Windows))
	for _, w := range result.Windows {
		if w.ConfidenceScore < MinAcceptableScore {
			continue
		}
		accepted = append(accepted, planner.Window{
			StartTime:  w.StartTime,
			EndTime:    w.EndTime,
			Confidence: w.ConfidenceScore,
			Scores:     w.Scores(),
		})
	}
	if len(accepted) == 0 {
		return model.Validationf("no valid collection windows")
	}

	merged := planner.MergeWindows(accepted, 0)
	for _, w := range merged {
		window, err := model.NewCollectionWindow(w.StartTime, w.EndTime, w.Confidence, nil)
		if err != nil {
			return err
		}
		if err := plan.AddWindow(window); err != nil {
			return err
		}
	}

	confidence, err := planConfidence(merged, weightsFromParams(params))
	if err != nil {
		return err
	}
	plan.SetConfidence(confidence)
	return plan.Transition(model.PlanOptimized)
}

// planConfidence recomputes each window's confidence with the given
// weights (nil uses the defaults) and returns the mean, 0.0 when empty.
func planConfidence(windows []planner.Window, weights planner.Weights) (float64, error) {
	if len(windows) == 0 {
		return 0.0, nil
	}
	sum := 0.0
	for _, w := range windows {
		score, err := planner.ComputeConfidence(w.Scores, weights)
		if err != nil {
			return 0, err
		}
		sum += score
	}
	return sum / float64(len(windows)), nil
}

// fail performs the FAILED-state side effect and failure count, then
// returns the original error unchanged. A failure before the plan
// reached PROCESSING cannot legally transition to FAILED; that secondary
// error is logged and swallowed.
func (o *Orchestrator) fail(ctx context.Context, plan *model.CollectionPlan, cause error) error {
	o.mu.Lock()
	o.perf.FailedAttempts++
	o.mu.Unlock()

	if err := plan.Transition(model.PlanFailed); err != nil {
		o.log.Warn(ctx, "plan could not be marked FAILED",
			logging.String("plan_id", plan.ID),
			logging.String("status", string(plan.Status)),
			logging.Err(err),
		)
	}
	o.log.Error(ctx, "optimization failed",
		logging.String("plan_id", plan.ID),
		logging.Err(cause),
	)
	return cause
}

// acquireSlot takes a concurrency slot, backing off briefly when
// saturated rather than rejecting outright.
func (o *Orchestrator) acquireSlot(ctx context.Context) error {
	for {
		select {
		case o.sem <- struct{}{}:
			o.metrics.SetInflight(len(o.sem))
			return nil
		default:
		}
		o.log.Debug(ctx, "optimization slots saturated; backing off")
		if err := o.clk.Sleep(ctx, slotRetryDelay); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) releaseSlot() {
	<-o.sem
	o.metrics.SetInflight(len(o.sem))
}

// recordSuccess folds one run duration into the moving average.
func (o *Orchestrator) recordSuccess(duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := o.perf.TotalOptimizations
	if total <= 1 {
		o.perf.AverageDuration = duration
		return
	}
	o.perf.AverageDuration = time.Duration(
		(int64(o.perf.AverageDuration)*(total-1) + int64(duration)) / total,
	)
}

func mergeParams(base, override map[string]any) map[string]any {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// weightsFromParams extracts a "weights" override from optimization
// parameters, tolerating both typed and JSON-decoded maps.
func weightsFromParams(params map[string]any) planner.Weights {
	raw, ok := params["weights"]
	if !ok {
		return nil
	}
	switch m := raw.(type) {
	case planner.Weights:
		return m
	case map[string]float64:
		return planner.Weights(m)
	case map[string]any:
		weights := make(planner.Weights, len(m))
		for k, v := range m {
			f, ok := v.(float64)
			if !ok {
				return nil
			}
			weights[k] = f
		}
		return weights
	default:
		return nil
	}
}

func isPermanent(err error) bool {
	var (
		ve  *model.ValidationError
		nfe *oracle.NotFoundError
		ite *model.InvalidTransitionError
		ise *model.InvalidStateError
	)
	return errors.As(err, &ve) || errors.As(err, &nfe) || errors.As(err, &ite) || errors.As(err, &ise)
}
