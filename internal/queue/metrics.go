package queue

import (
	"context"
	"sync"
	"time"

	"github.com/tkhuang/riskcast/internal/domain"
)

// defaultRates are the static per-class baselines (jobs per minute per
// worker) used until enough completions have been observed.
var defaultRates = map[domain.Priority]float64{
	domain.PriorityHigh:   2.0,
	domain.PriorityMedium: 1.5,
	domain.PriorityLow:    1.0,
}

// Collector samples queue depth per priority class and maintains an
// exponentially weighted processing-rate estimate per class. Sampling is
// O(1) per class: two counter reads plus the cached rate.
type Collector struct {
	broker Broker
	alpha  float64 // EWMA smoothing factor in (0,1]

	mu    sync.Mutex
	rates map[domain.Priority]float64
}

// NewCollector creates a Collector over the broker. alpha outside (0,1]
// falls back to 0.3.
func NewCollector(broker Broker, alpha float64) *Collector {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	rates := make(map[domain.Priority]float64, len(defaultRates))
	for p, r := range defaultRates {
		rates[p] = r
	}
	return &Collector{
		broker: broker,
		alpha:  alpha,
		rates:  rates,
	}
}

// Sample reads pending and active counts for every priority class and
// returns one QueueMetric per class, stamped with the sample time.
func (c *Collector) Sample(ctx context.Context) (map[domain.Priority]domain.QueueMetric, error) {
	now := time.Now()
	metrics := make(map[domain.Priority]domain.QueueMetric, len(domain.Priorities))

	for _, p := range domain.Priorities {
		pending, err := c.broker.PendingCount(ctx, p)
		if err != nil {
			return nil, err
		}
		active, err := c.broker.ActiveCount(ctx, p)
		if err != nil {
			return nil, err
		}
		metrics[p] = domain.QueueMetric{
			Priority:       p,
			PendingCount:   pending,
			ActiveCount:    active,
			ProcessingRate: c.rate(p),
			SampleTime:     now,
		}
	}
	return metrics, nil
}

// ObserveCompletion folds one finished job's duration into the class's EWMA
// processing rate.
func (c *Collector) ObserveCompletion(priority domain.Priority, duration time.Duration) {
	if duration <= 0 {
		return
	}
	instantRate := 1 / duration.Minutes() // jobs per minute

	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.rates[priority]
	if !ok {
		old = defaultRates[domain.PriorityLow]
	}
	c.rates[priority] = c.alpha*instantRate + (1-c.alpha)*old
}

func (c *Collector) rate(priority domain.Priority) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rates[priority]
}
