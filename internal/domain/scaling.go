package domain

import "time"

// Priority is a queue lane used to weight urgency in scaling decisions.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists all queue lanes in descending urgency.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Valid reports whether the priority is a known value.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Weight returns the urgency weight used for weighted queue pressure.
func (p Priority) Weight() int64 {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// QueueMetric is one sampled observation of a priority class. Samples are
// recomputed on each poll and kept only in a short rolling window.
type QueueMetric struct {
	Priority       Priority  `json:"priority"`
	PendingCount   int64     `json:"pending_count"`
	ActiveCount    int64     `json:"active_count"`
	ProcessingRate float64   `json:"estimated_processing_rate"`
	SampleTime     time.Time `json:"sample_time"`
}

// ScalingAction is the decision engine's output direction.
type ScalingAction string

const (
	ScaleUp   ScalingAction = "scale_up"
	ScaleDown ScalingAction = "scale_down"
	Maintain  ScalingAction = "maintain"
)

// ScalingRecommendation is produced fresh on each decision cycle; it is
// derived state, never persisted as primary truth.
type ScalingRecommendation struct {
	Action         ScalingAction `json:"action"`
	CurrentWorkers int           `json:"current_workers"`
	TargetWorkers  int           `json:"target_workers"`
	Reason         string        `json:"reason"`
	Priority       int           `json:"priority"` // 1 = urgent, larger is calmer
	CostImpact     float64       `json:"cost_impact"`
}

// ScalingEvent is one append-only log entry for an executed (or attempted)
// recommendation. The table is kept as a bounded ring of the last 100 rows.
type ScalingEvent struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string    `gorm:"type:text;not null;uniqueIndex:idx_scaling_events_event_id" json:"event_id"`
	Timestamp   time.Time `gorm:"not null;index:idx_scaling_events_timestamp" json:"timestamp"`
	Action      string    `gorm:"type:text;not null" json:"action"`
	FromWorkers int       `gorm:"not null" json:"from_workers"`
	ToWorkers   int       `gorm:"not null" json:"to_workers"`
	Reason      string    `gorm:"type:text;not null" json:"reason"`
	QueueLength int64     `gorm:"not null;default:0" json:"queue_length"`
	Priority    int       `gorm:"not null;default:3" json:"priority"`
	Succeeded   bool      `gorm:"not null;default:true" json:"succeeded"`
}

// TableName returns the database table name for ScalingEvent.
func (ScalingEvent) TableName() string {
	return "scaling_events"
}
