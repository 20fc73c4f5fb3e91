package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkhuang/riskcast/internal/config"
	"github.com/tkhuang/riskcast/internal/domain"
	"github.com/tkhuang/riskcast/internal/queue"
	"github.com/tkhuang/riskcast/internal/service"
)

// staticBroker reports fixed queue depths.
type staticBroker struct {
	pending map[domain.Priority]int64
}

func (b *staticBroker) Enqueue(context.Context, string, domain.Priority) error { return nil }
func (b *staticBroker) Dequeue(context.Context, time.Duration) (string, domain.Priority, error) {
	return "", "", queue.ErrEmpty
}
func (b *staticBroker) MarkDone(context.Context, string, domain.Priority) error { return nil }
func (b *staticBroker) PendingCount(_ context.Context, p domain.Priority) (int64, error) {
	return b.pending[p], nil
}
func (b *staticBroker) ActiveCount(context.Context, domain.Priority) (int64, error) { return 0, nil }
func (b *staticBroker) Ping(context.Context) error                                  { return nil }

type staticController struct {
	workers int
}

func (c *staticController) Resize(_ context.Context, target int) error {
	c.workers = target
	return nil
}
func (c *staticController) WorkerCount() int { return c.workers }

type memHistory struct {
	events []domain.ScalingEvent
}

func (h *memHistory) Append(_ context.Context, event *domain.ScalingEvent) error {
	h.events = append(h.events, *event)
	return nil
}

func (h *memHistory) List(_ context.Context, limit int) ([]domain.ScalingEvent, error) {
	out := make([]domain.ScalingEvent, 0, limit)
	for i := len(h.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.events[i])
	}
	return out, nil
}

func newScalingTestRouter(pending map[domain.Priority]int64) (*gin.Engine, *staticController, *memHistory) {
	gin.SetMode(gin.TestMode)

	collector := queue.NewCollector(&staticBroker{pending: pending}, 0.3)
	controller := &staticController{workers: 4}
	history := &memHistory{}
	engine := service.NewScalingEngine(collector, controller, history, config.ScalingConfig{
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
		PerWorkerRate:                  2.0,
		RowsPerWorkerIncrement:         10,
		TargetSLAMinutes:               15.0,
	}, nil)

	h := NewScalingHandler(engine)
	r := gin.New()
	r.GET("/api/v1/scaling/status", h.Status)
	r.GET("/api/v1/scaling/history", h.History)
	r.POST("/api/v1/scaling/manual", h.Manual)
	return r, controller, history
}

func TestScalingStatus(t *testing.T) {
	// 11 pending sits between the scale-down and scale-up thresholds.
	r, _, _ := newScalingTestRouter(map[domain.Priority]int64{
		domain.PriorityHigh:   1,
		domain.PriorityMedium: 10,
		domain.PriorityLow:    0,
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scaling/status", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var status service.ScalingStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 4, status.CurrentWorkers)
	assert.Equal(t, domain.Maintain, status.Recommendation.Action)
	assert.Len(t, status.Metrics, 3)
	assert.Equal(t, int64(10), status.Metrics[domain.PriorityMedium].PendingCount)
}

func TestScalingManual_OutOfBoundsReturns400(t *testing.T) {
	r, controller, _ := newScalingTestRouter(nil)

	body, _ := json.Marshal(map[string]interface{}{"target_workers": 99, "reason": "load test"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scaling/manual", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 4, controller.workers)
}

func TestScalingManual_AppliesOverride(t *testing.T) {
	r, controller, history := newScalingTestRouter(nil)

	body, _ := json.Marshal(map[string]interface{}{"target_workers": 8, "reason": "expected surge"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scaling/manual", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 8, controller.workers)
	require.Len(t, history.events, 1)
	assert.Contains(t, history.events[0].Reason, "manual override")
}

func TestScalingHistory(t *testing.T) {
	r, _, history := newScalingTestRouter(nil)
	history.events = []domain.ScalingEvent{
		{EventID: "a", Action: "scale_up"},
		{EventID: "b", Action: "scale_down"},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scaling/history?limit=1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events []domain.ScalingEvent `json:"events"`
		Total  int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "b", resp.Events[0].EventID)
}
