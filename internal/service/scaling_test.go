package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkhuang/riskcast/internal/config"
	"github.com/tkhuang/riskcast/internal/domain"
)

func testScalingConfig() config.ScalingConfig {
	return config.ScalingConfig{
		Enabled:                        true,
		MinWorkers:                     2,
		MaxWorkers:                     12,
		ScaleUpThreshold:               25,
		ScaleDownThreshold:             5,
		EmergencyThreshold:             100,
		EmergencyHighPriorityThreshold: 20,
		EmergencyStep:                  3,
		ScaleUpCooldown:                3 * time.Minute,
		ScaleDownCooldown:              10 * time.Minute,
		DecisionInterval:               30 * time.Second,
		PerWorkerRate:                  2.0,
		RowsPerWorkerIncrement:         10,
		TargetSLAMinutes:               15.0,
	}
}

func pendingMetrics(high, medium, low int64) map[domain.Priority]domain.QueueMetric {
	return map[domain.Priority]domain.QueueMetric{
		domain.PriorityHigh:   {Priority: domain.PriorityHigh, PendingCount: high},
		domain.PriorityMedium: {Priority: domain.PriorityMedium, PendingCount: medium},
		domain.PriorityLow:    {Priority: domain.PriorityLow, PendingCount: low},
	}
}

func TestDecide_ScaleUpWhenBacklogExceedsSLA(t *testing.T) {
	// 30 pending / (2 workers x 2 jobs/min) = 7.5 min eta, within the 15 min
	// target, so push the backlog high enough to blow the SLA.
	cfg := testScalingConfig()
	now := time.Now()

	rec := Decide(pendingMetrics(0, 70, 0), 2, cfg, "", time.Time{}, now)
	assert.Equal(t, domain.ScaleUp, rec.Action)
	assert.Greater(t, rec.TargetWorkers, 2)
	assert.LessOrEqual(t, rec.TargetWorkers, cfg.MaxWorkers)
	assert.Positive(t, rec.CostImpact)
}

func TestDecide_ScaleUpStepSize(t *testing.T) {
	// 70 pending / 10 rows per worker increment = 7 additional workers.
	cfg := testScalingConfig()
	rec := Decide(pendingMetrics(0, 70, 0), 2, cfg, "", time.Time{}, time.Now())
	require.Equal(t, domain.ScaleUp, rec.Action)
	assert.Equal(t, 9, rec.TargetWorkers)
}

func TestDecide_ZeroRowIncrementDoesNotPanic(t *testing.T) {
	// A config file can legitimately zero this out; the step floor is one
	// worker per pending row, clamped at max.
	cfg := testScalingConfig()
	cfg.RowsPerWorkerIncrement = 0

	rec := Decide(pendingMetrics(0, 70, 0), 2, cfg, "", time.Time{}, time.Now())
	require.Equal(t, domain.ScaleUp, rec.Action)
	assert.Equal(t, cfg.MaxWorkers, rec.TargetWorkers)
}

func TestDecide_MaintainWhenETAWithinTarget(t *testing.T) {
	// 30 pending at 2 workers x 2/min = 7.5 min, inside the 15 min target.
	cfg := testScalingConfig()
	rec := Decide(pendingMetrics(0, 30, 0), 2, cfg, "", time.Time{}, time.Now())
	assert.Equal(t, domain.Maintain, rec.Action)
}

func TestDecide_ScaleDownSingleStep(t *testing.T) {
	cfg := testScalingConfig()
	rec := Decide(pendingMetrics(0, 3, 0), 4, cfg, "", time.Time{}, time.Now())
	assert.Equal(t, domain.ScaleDown, rec.Action)
	assert.Equal(t, 3, rec.TargetWorkers)
	assert.Negative(t, rec.CostImpact)
}

func TestDecide_ScaleDownRespectsMinWorkers(t *testing.T) {
	cfg := testScalingConfig()
	rec := Decide(pendingMetrics(0, 0, 0), 2, cfg, "", time.Time{}, time.Now())
	assert.Equal(t, domain.Maintain, rec.Action)
	assert.Equal(t, 2, rec.TargetWorkers)
}

func TestDecide_CooldownEnforcement(t *testing.T) {
	cfg := testScalingConfig()
	t0 := time.Now()

	// One second before the cooldown expires: maintain.
	rec := Decide(pendingMetrics(0, 70, 0), 2, cfg, domain.ScaleUp, t0, t0.Add(cfg.ScaleUpCooldown-time.Second))
	assert.Equal(t, domain.Maintain, rec.Action)
	assert.Contains(t, rec.Reason, "cooldown")

	// One second after: normal evaluation resumes.
	rec = Decide(pendingMetrics(0, 70, 0), 2, cfg, domain.ScaleUp, t0, t0.Add(cfg.ScaleUpCooldown+time.Second))
	assert.Equal(t, domain.ScaleUp, rec.Action)
}

func TestDecide_ScaleDownCooldownBlocksScaleDown(t *testing.T) {
	cfg := testScalingConfig()
	t0 := time.Now()

	rec := Decide(pendingMetrics(0, 3, 0), 4, cfg, domain.ScaleDown, t0, t0.Add(time.Minute))
	assert.Equal(t, domain.Maintain, rec.Action)
}

func TestDecide_EmergencyOverridesCooldown(t *testing.T) {
	// Emergency pressure must punch through an active scale-down cooldown.
	cfg := testScalingConfig()
	t0 := time.Now()

	rec := Decide(pendingMetrics(0, cfg.EmergencyThreshold, 0), 4, cfg, domain.ScaleDown, t0, t0.Add(time.Minute))
	require.Equal(t, domain.ScaleUp, rec.Action)
	assert.Equal(t, 7, rec.TargetWorkers)
	assert.Equal(t, 1, rec.Priority)

	// And through a scale-up cooldown as well.
	rec = Decide(pendingMetrics(0, cfg.EmergencyThreshold, 0), 4, cfg, domain.ScaleUp, t0, t0.Add(time.Minute))
	assert.Equal(t, domain.ScaleUp, rec.Action)
}

func TestDecide_EmergencyHighPriorityThreshold(t *testing.T) {
	cfg := testScalingConfig()

	rec := Decide(pendingMetrics(cfg.EmergencyHighPriorityThreshold, 0, 0), 4, cfg, "", time.Time{}, time.Now())
	require.Equal(t, domain.ScaleUp, rec.Action)
	assert.Equal(t, 1, rec.Priority)
}

func TestDecide_EmergencyClampedAtMaxWorkers(t *testing.T) {
	cfg := testScalingConfig()

	rec := Decide(pendingMetrics(0, cfg.EmergencyThreshold, 0), 11, cfg, "", time.Time{}, time.Now())
	require.Equal(t, domain.ScaleUp, rec.Action)
	assert.Equal(t, cfg.MaxWorkers, rec.TargetWorkers)

	rec = Decide(pendingMetrics(0, cfg.EmergencyThreshold, 0), cfg.MaxWorkers, cfg, "", time.Time{}, time.Now())
	assert.Equal(t, domain.Maintain, rec.Action)
}

func TestDecide_IsDeterministic(t *testing.T) {
	cfg := testScalingConfig()
	now := time.Now()
	metrics := pendingMetrics(5, 40, 25)

	first := Decide(metrics, 3, cfg, domain.ScaleUp, now.Add(-time.Hour), now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Decide(metrics, 3, cfg, domain.ScaleUp, now.Add(-time.Hour), now))
	}
}

// fakeController records resize calls and can be told to fail.
type fakeController struct {
	workers int
	calls   []int
	err     error
}

func (c *fakeController) Resize(_ context.Context, target int) error {
	c.calls = append(c.calls, target)
	if c.err != nil {
		return c.err
	}
	c.workers = target
	return nil
}

func (c *fakeController) WorkerCount() int { return c.workers }

// fakeHistory collects appended events in memory.
type fakeHistory struct {
	events []domain.ScalingEvent
}

func (h *fakeHistory) Append(_ context.Context, event *domain.ScalingEvent) error {
	h.events = append(h.events, *event)
	return nil
}

func (h *fakeHistory) List(_ context.Context, limit int) ([]domain.ScalingEvent, error) {
	out := make([]domain.ScalingEvent, 0, limit)
	for i := len(h.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.events[i])
	}
	return out, nil
}

func TestScalingEngine_ManualOverride(t *testing.T) {
	controller := &fakeController{workers: 4}
	history := &fakeHistory{}
	engine := NewScalingEngine(nil, controller, history, testScalingConfig(), nil)

	// nil collector is never touched when validation fails first
	err := engine.ManualOverride(context.Background(), 99, "load test")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, controller.calls)
}

func TestScalingEngine_ExecuteRecordsCooldownOnFailure(t *testing.T) {
	controller := &fakeController{workers: 4, err: errors.New("controller offline")}
	history := &fakeHistory{}
	engine := NewScalingEngine(nil, controller, history, testScalingConfig(), nil)

	rec := domain.ScalingRecommendation{
		Action:         domain.ScaleUp,
		CurrentWorkers: 4,
		TargetWorkers:  6,
		Reason:         "backlog",
		Priority:       2,
	}
	engine.mu.Lock()
	err := engine.executeLocked(context.Background(), rec, 50)
	engine.mu.Unlock()
	require.Error(t, err)

	// The attempt still lands in cooldown memory and the history log, so a
	// broken controller cannot trigger a retry storm.
	assert.Equal(t, domain.ScaleUp, engine.lastAction)
	assert.False(t, engine.lastActionTime.IsZero())
	require.Len(t, history.events, 1)
	assert.False(t, history.events[0].Succeeded)
	assert.Equal(t, int64(50), history.events[0].QueueLength)
}

func TestScalingEngine_ExecuteAppendsHistory(t *testing.T) {
	controller := &fakeController{workers: 4}
	history := &fakeHistory{}
	engine := NewScalingEngine(nil, controller, history, testScalingConfig(), nil)

	rec := domain.ScalingRecommendation{
		Action:         domain.ScaleDown,
		CurrentWorkers: 4,
		TargetWorkers:  3,
		Reason:         "idle",
		Priority:       3,
	}
	engine.mu.Lock()
	err := engine.executeLocked(context.Background(), rec, 2)
	engine.mu.Unlock()
	require.NoError(t, err)

	assert.Equal(t, 3, controller.workers)
	require.Len(t, history.events, 1)
	event := history.events[0]
	assert.True(t, event.Succeeded)
	assert.Equal(t, "scale_down", event.Action)
	assert.Equal(t, 4, event.FromWorkers)
	assert.Equal(t, 3, event.ToWorkers)
	assert.NotEmpty(t, event.EventID)
}
