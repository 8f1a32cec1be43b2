package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/collection-planner/internal/clock"
	"github.com/signalsfoundry/collection-planner/model"
)

var coordStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeOptimizer struct {
	mu           sync.Mutex
	optimizeErrs []error
	calls        int
	cancelOK     bool
	cancelled    []string
}

func (f *fakeOptimizer) OptimizeWithRetry(ctx context.Context, plan *model.CollectionPlan, params map[string]any) (*model.CollectionPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if call < len(f.optimizeErrs) && f.optimizeErrs[call] != nil {
		return nil, f.optimizeErrs[call]
	}
	return plan, nil
}

func (f *fakeOptimizer) Cancel(ctx context.Context, planID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, planID)
	return f.cancelOK, nil
}

func (f *fakeOptimizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func coordAsset(t *testing.T) *model.Asset {
	t.Helper()
	asset, err := model.NewAsset("sensor-a", model.AssetEnvironmentalMonitoring, 2, 10, model.AssetProperties{
		Resolution:    1.0,
		SpectralBands: []string{"GREEN", "SWIR"},
		RevisitTime:   24,
	})
	require.NoError(t, err)
	return asset
}

func newTestCoordinator(t *testing.T, opt Optimizer) (*Coordinator, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(coordStart)
	c := New(opt, WithClock(fake))
	return c, fake
}

func createPlan(t *testing.T, c *Coordinator) *model.CollectionPlan {
	t.Helper()
	plan, err := c.CreateCollectionPlan(context.Background(), "search-1", coordAsset(t), nil,
		coordStart, coordStart.Add(24*time.Hour), nil)
	require.NoError(t, err)
	return plan
}

func TestCreateAndStatus(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeOptimizer{})
	plan := createPlan(t, c)

	assert.Equal(t, 1, c.Len())

	summary, err := c.GetPlanStatus(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, summary.PlanID)
	assert.Equal(t, "search-1", summary.SearchID)
	assert.Equal(t, model.PlanDraft, summary.Status)
	assert.Zero(t, summary.WindowCount)
}

func TestCreateValidatesPlan(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeOptimizer{})
	_, err := c.CreateCollectionPlan(context.Background(), "", coordAsset(t), nil,
		coordStart, coordStart.Add(time.Hour), nil)
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, 0, c.Len())
}

func TestOptimizePlanNotFound(t *testing.T) {
	opt := &fakeOptimizer{}
	c, _ := newTestCoordinator(t, opt)

	_, err := c.OptimizePlan(context.Background(), "no-such-plan")
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "no-such-plan", nfe.PlanID)
	assert.Zero(t, opt.callCount())
}

func TestOptimizePlanDelegates(t *testing.T) {
	opt := &fakeOptimizer{}
	c, _ := newTestCoordinator(t, opt)
	plan := createPlan(t, c)

	got, err := c.OptimizePlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)
	assert.Equal(t, 1, opt.callCount())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("oracle unreachable")
	opt := &fakeOptimizer{optimizeErrs: []error{boom, boom, boom, boom, boom}}
	c, fake := newTestCoordinator(t, opt)
	plan := createPlan(t, c)

	for i := 0; i < BreakerThreshold; i++ {
		_, err := c.OptimizePlan(context.Background(), plan.ID)
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, CircuitOpen, c.breaker.State())

	// While open the optimizer is not touched.
	_, err := c.OptimizePlan(context.Background(), plan.ID)
	var sue *ServiceUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, BreakerThreshold, opt.callCount())

	// After the recovery timeout a single probe is admitted; its success
	// closes the circuit again.
	fake.Advance(BreakerRecovery)
	got, err := c.OptimizePlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)
	assert.Equal(t, CircuitClosed, c.breaker.State())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	boom := errors.New("oracle unreachable")
	errs := make([]error, BreakerThreshold+1)
	for i := range errs {
		errs[i] = boom
	}
	opt := &fakeOptimizer{optimizeErrs: errs}
	c, fake := newTestCoordinator(t, opt)
	plan := createPlan(t, c)

	for i := 0; i < BreakerThreshold; i++ {
		_, _ = c.OptimizePlan(context.Background(), plan.ID)
	}
	require.Equal(t, CircuitOpen, c.breaker.State())

	fake.Advance(BreakerRecovery)
	_, err := c.OptimizePlan(context.Background(), plan.ID)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, CircuitOpen, c.breaker.State())
}

func TestPlanTTLSweep(t *testing.T) {
	opt := &fakeOptimizer{}
	c, fake := newTestCoordinator(t, opt)
	plan := createPlan(t, c)

	fake.Advance(30 * time.Minute)
	_, err := c.OptimizePlan(context.Background(), plan.ID)
	require.NoError(t, err, "plan within TTL must still be reachable")

	// A successful optimization refreshes the entry; only after a full
	// idle TTL does the sweep drop it.
	fake.Advance(2 * time.Hour)
	_, err = c.OptimizePlan(context.Background(), plan.ID)
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, 0, c.Len())
}

func TestCloseSweeps(t *testing.T) {
	c, fake := newTestCoordinator(t, &fakeOptimizer{})
	createPlan(t, c)
	fake.Advance(2 * time.Hour)

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, 0, c.Len())
}

func TestCancelOptimization(t *testing.T) {
	opt := &fakeOptimizer{cancelOK: true}
	c, _ := newTestCoordinator(t, opt)
	plan := createPlan(t, c)

	ok, err := c.CancelOptimization(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{plan.ID}, opt.cancelled)

	_, err = c.CancelOptimization(context.Background(), "missing")
	var nfe *NotFoundError
	assert.ErrorAs(t, err, &nfe)
}

func TestBreakerStateMachine(t *testing.T) {
	fake := clock.NewFake(coordStart)
	b := NewBreaker(3, time.Minute, fake)

	require.NoError(t, b.Allow())
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, CircuitClosed, b.State())

	// A success resets the consecutive count.
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, CircuitClosed, b.State())
	b.RecordFailure()
	require.Equal(t, CircuitOpen, b.State())

	var sue *ServiceUnavailableError
	require.ErrorAs(t, b.Allow(), &sue)

	fake.Advance(time.Minute)
	require.NoError(t, b.Allow())
	require.Equal(t, CircuitHalfOpen, b.State())

	// Only one probe at a time in half-open.
	require.ErrorAs(t, b.Allow(), &sue)

	b.RecordSuccess()
	require.Equal(t, CircuitClosed, b.State())
	require.NoError(t, b.Allow())
}
