package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tkhuang/riskcast/internal/config"
	"github.com/tkhuang/riskcast/internal/domain"
	"github.com/tkhuang/riskcast/internal/logger"
	"github.com/tkhuang/riskcast/internal/queue"
)

// costPerWorkerHour is the rough hourly cost of one worker, used only to
// annotate recommendations for operators.
const costPerWorkerHour = 0.35

// CapacityController adjusts the size of the worker fleet.
type CapacityController interface {
	Resize(ctx context.Context, target int) error
	WorkerCount() int
}

// PoolController adapts the in-process batch worker pool to the
// CapacityController contract.
type PoolController struct {
	pool *BatchProcessor
}

// NewPoolController wraps the batch processor's worker pool.
func NewPoolController(pool *BatchProcessor) *PoolController {
	return &PoolController{pool: pool}
}

func (c *PoolController) Resize(_ context.Context, target int) error {
	c.pool.Resize(target)
	return nil
}

func (c *PoolController) WorkerCount() int {
	return c.pool.WorkerCount()
}

// ScalingHistoryStore is the bounded append-only log of scaling actions.
type ScalingHistoryStore interface {
	Append(ctx context.Context, event *domain.ScalingEvent) error
	List(ctx context.Context, limit int) ([]domain.ScalingEvent, error)
}

// Decide maps one queue observation to a scaling recommendation. Pure:
// deterministic given its inputs, with the cooldown memory passed in
// explicitly as lastAction/lastActionTime.
//
// Emergency pressure is evaluated before cooldowns. An emergency must be
// able to override a recent scale-down, and urgency also trumps the scale-up
// cooldown; the asymmetry is deliberate.
func Decide(
	metrics map[domain.Priority]domain.QueueMetric,
	currentWorkers int,
	cfg config.ScalingConfig,
	lastAction domain.ScalingAction,
	lastActionTime time.Time,
	now time.Time,
) domain.ScalingRecommendation {
	var totalPending, highPending, weightedPressure int64
	for p, m := range metrics {
		totalPending += m.PendingCount
		weightedPressure += m.PendingCount * p.Weight()
		if p == domain.PriorityHigh {
			highPending = m.PendingCount
		}
	}

	maintain := func(reason string) domain.ScalingRecommendation {
		return domain.ScalingRecommendation{
			Action:         domain.Maintain,
			CurrentWorkers: currentWorkers,
			TargetWorkers:  currentWorkers,
			Reason:         reason,
			Priority:       5,
		}
	}

	if totalPending >= cfg.EmergencyThreshold || highPending >= cfg.EmergencyHighPriorityThreshold {
		target := currentWorkers + cfg.EmergencyStep
		if target > cfg.MaxWorkers {
			target = cfg.MaxWorkers
		}
		if target <= currentWorkers {
			return maintain(fmt.Sprintf("emergency pressure (%d pending) but already at max workers", totalPending))
		}
		return domain.ScalingRecommendation{
			Action:         domain.ScaleUp,
			CurrentWorkers: currentWorkers,
			TargetWorkers:  target,
			Reason:         fmt.Sprintf("emergency: %d pending (high=%d, weighted=%d)", totalPending, highPending, weightedPressure),
			Priority:       1,
			CostImpact:     float64(target-currentWorkers) * costPerWorkerHour,
		}
	}

	if lastAction == domain.ScaleUp {
		if remaining := cfg.ScaleUpCooldown - now.Sub(lastActionTime); remaining > 0 {
			return maintain(fmt.Sprintf("scale-up cooldown, %s remaining", remaining.Round(time.Second)))
		}
	}
	if lastAction == domain.ScaleDown {
		if remaining := cfg.ScaleDownCooldown - now.Sub(lastActionTime); remaining > 0 {
			return maintain(fmt.Sprintf("scale-down cooldown, %s remaining", remaining.Round(time.Second)))
		}
	}

	if totalPending >= cfg.ScaleUpThreshold && currentWorkers < cfg.MaxWorkers {
		etaMinutes := float64(totalPending) / (float64(currentWorkers) * cfg.PerWorkerRate)
		if etaMinutes > cfg.TargetSLAMinutes {
			increment := cfg.RowsPerWorkerIncrement
			if increment < 1 {
				increment = 1
			}
			additional := totalPending / increment
			if additional < 1 {
				additional = 1
			}
			if room := int64(cfg.MaxWorkers - currentWorkers); additional > room {
				additional = room
			}
			target := currentWorkers + int(additional)
			return domain.ScalingRecommendation{
				Action:         domain.ScaleUp,
				CurrentWorkers: currentWorkers,
				TargetWorkers:  target,
				Reason:         fmt.Sprintf("%d pending, eta %.1f min exceeds %.0f min target", totalPending, etaMinutes, cfg.TargetSLAMinutes),
				Priority:       2,
				CostImpact:     float64(target-currentWorkers) * costPerWorkerHour,
			}
		}
		return maintain(fmt.Sprintf("%d pending but eta %.1f min within target", totalPending, etaMinutes))
	}

	if totalPending <= cfg.ScaleDownThreshold && currentWorkers > cfg.MinWorkers {
		// Single-step, conservative.
		target := currentWorkers - 1
		return domain.ScalingRecommendation{
			Action:         domain.ScaleDown,
			CurrentWorkers: currentWorkers,
			TargetWorkers:  target,
			Reason:         fmt.Sprintf("%d pending at or below %d threshold", totalPending, cfg.ScaleDownThreshold),
			Priority:       3,
			CostImpact:     -costPerWorkerHour,
		}
	}

	return maintain(fmt.Sprintf("%d pending, %d workers, no action needed", totalPending, currentWorkers))
}

// ScalingEngine owns the cooldown memory and runs the decide/execute cycle.
// One mutex covers the whole read-then-write cycle so concurrent cycles and
// manual overrides never interleave.
type ScalingEngine struct {
	collector  *queue.Collector
	controller CapacityController
	history    ScalingHistoryStore
	cfg        config.ScalingConfig
	logger     *logger.Logger

	mu             sync.Mutex
	lastAction     domain.ScalingAction
	lastActionTime time.Time
}

// NewScalingEngine creates a new ScalingEngine.
func NewScalingEngine(
	collector *queue.Collector,
	controller CapacityController,
	history ScalingHistoryStore,
	cfg config.ScalingConfig,
	log *logger.Logger,
) *ScalingEngine {
	return &ScalingEngine{
		collector:  collector,
		controller: controller,
		history:    history,
		cfg:        cfg,
		logger:     log,
	}
}

func (e *ScalingEngine) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// RunLoop evaluates and executes on the configured interval until ctx ends.
func (e *ScalingEngine) RunLoop(ctx context.Context) {
	if e.logger != nil {
		ctx = e.logger.WithContext(ctx)
	}
	ctx = logger.SetComponent(ctx, "scaling")

	interval := e.cfg.DecisionInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log(ctx).WithField("interval", interval.String()).Info("Scaling loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil {
				e.log(ctx).WithError(err).Error("Scaling cycle failed")
			}
		}
	}
}

// RunOnce performs one full decide/execute cycle under the engine lock.
func (e *ScalingEngine) RunOnce(ctx context.Context) error {
	metrics, err := e.collector.Sample(ctx)
	if err != nil {
		return fmt.Errorf("failed to sample queue metrics: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := Decide(metrics, e.controller.WorkerCount(), e.cfg, e.lastAction, e.lastActionTime, time.Now())
	if rec.Action == domain.Maintain {
		e.log(ctx).WithField("reason", rec.Reason).Debug("Maintaining worker count")
		return nil
	}
	return e.executeLocked(ctx, rec, totalPending(metrics))
}

// executeLocked applies a recommendation. The caller holds e.mu. Cooldown
// memory is recorded even when the controller fails, so a broken controller
// cannot cause a retry storm.
func (e *ScalingEngine) executeLocked(ctx context.Context, rec domain.ScalingRecommendation, queueLength int64) error {
	err := e.controller.Resize(ctx, rec.TargetWorkers)
	succeeded := err == nil

	e.lastAction = rec.Action
	e.lastActionTime = time.Now()

	event := &domain.ScalingEvent{
		EventID:     uuid.New().String(),
		Timestamp:   e.lastActionTime,
		Action:      string(rec.Action),
		FromWorkers: rec.CurrentWorkers,
		ToWorkers:   rec.TargetWorkers,
		Reason:      rec.Reason,
		QueueLength: queueLength,
		Priority:    rec.Priority,
		Succeeded:   succeeded,
	}
	if histErr := e.history.Append(ctx, event); histErr != nil {
		e.log(ctx).WithError(histErr).Error("Failed to append scaling event")
	}

	if err != nil {
		return fmt.Errorf("capacity controller failed: %w", err)
	}

	e.log(ctx).WithFields(logger.Fields{
		"action": rec.Action,
		"from":   rec.CurrentWorkers,
		"to":     rec.TargetWorkers,
		"reason": rec.Reason,
	}).Info("Scaling action executed")
	return nil
}

// ManualOverride forces the fleet to target workers, bypassing the decision
// algorithm but not the bounds check.
func (e *ScalingEngine) ManualOverride(ctx context.Context, target int, reason string) error {
	if target < e.cfg.MinWorkers || target > e.cfg.MaxWorkers {
		return fmt.Errorf("%w: target_workers %d outside [%d, %d]",
			domain.ErrValidation, target, e.cfg.MinWorkers, e.cfg.MaxWorkers)
	}

	metrics, err := e.collector.Sample(ctx)
	if err != nil {
		return fmt.Errorf("failed to sample queue metrics: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.controller.WorkerCount()
	if target == current {
		return nil
	}
	action := domain.ScaleUp
	if target < current {
		action = domain.ScaleDown
	}
	rec := domain.ScalingRecommendation{
		Action:         action,
		CurrentWorkers: current,
		TargetWorkers:  target,
		Reason:         "manual override: " + reason,
		Priority:       1,
		CostImpact:     float64(target-current) * costPerWorkerHour,
	}
	return e.executeLocked(ctx, rec, totalPending(metrics))
}

// ScalingStatus is the observability snapshot served by the API.
type ScalingStatus struct {
	Enabled        bool                                   `json:"enabled"`
	CurrentWorkers int                                    `json:"current_workers"`
	Metrics        map[domain.Priority]domain.QueueMetric `json:"metrics"`
	Recommendation domain.ScalingRecommendation           `json:"recommendation"`
	LastAction     domain.ScalingAction                   `json:"last_action,omitempty"`
	LastActionTime *time.Time                             `json:"last_action_time,omitempty"`
	Config         config.ScalingConfig                   `json:"config"`
}

// Status samples the queues and reports what the engine would do next,
// without executing anything.
func (e *ScalingEngine) Status(ctx context.Context) (*ScalingStatus, error) {
	metrics, err := e.collector.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sample queue metrics: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	status := &ScalingStatus{
		Enabled:        e.cfg.Enabled,
		CurrentWorkers: e.controller.WorkerCount(),
		Metrics:        metrics,
		Recommendation: Decide(metrics, e.controller.WorkerCount(), e.cfg, e.lastAction, e.lastActionTime, time.Now()),
		LastAction:     e.lastAction,
		Config:         e.cfg,
	}
	if !e.lastActionTime.IsZero() {
		t := e.lastActionTime
		status.LastActionTime = &t
	}
	return status, nil
}

// History returns the most recent scaling events, newest first.
func (e *ScalingEngine) History(ctx context.Context, limit int) ([]domain.ScalingEvent, error) {
	return e.history.List(ctx, limit)
}

func totalPending(metrics map[domain.Priority]domain.QueueMetric) int64 {
	var total int64
	for _, m := range metrics {
		total += m.PendingCount
	}
	return total
}
