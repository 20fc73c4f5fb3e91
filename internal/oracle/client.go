package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tkhuang/riskcast/internal/domain"
)

// Client calls an external scoring service over HTTP.
type Client struct {
	client   *resty.Client
	model    string
	endpoint string
}

// Config holds configuration for the oracle client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient creates a new scoring oracle client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	return &Client{
		client:   client,
		model:    cfg.Model,
		endpoint: cfg.BaseURL + "/v1/score/batch",
	}
}

// ModelVersion returns the model identifier being used.
func (c *Client) ModelVersion() string {
	return c.model
}

type scoreBatchRequest struct {
	Model     string         `json:"model"`
	Instances []ScoreRequest `json:"instances"`
}

type scoreBatchResponse struct {
	Results []struct {
		RiskScore float64 `json:"risk_score"`
		RiskLabel string  `json:"risk_label"`
		Error     string  `json:"error,omitempty"`
	} `json:"results"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ScoreBatch scores all rows in one HTTP call. Per-row failures come back as
// ScoreResult.Err at the matching index; transport and service errors are
// returned as domain.ErrOracleUnavailable so the worker can classify them
// as job-fatal.
func (c *Client) ScoreBatch(ctx context.Context, reqs []ScoreRequest) ([]ScoreResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	var respBody scoreBatchResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&scoreBatchRequest{Model: c.model, Instances: reqs}).
		SetResult(&respBody).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", domain.ErrOracleUnavailable, resp.StatusCode())
	}
	if respBody.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOracleUnavailable, respBody.Error.Message)
	}
	if len(respBody.Results) != len(reqs) {
		return nil, fmt.Errorf("%w: got %d results for %d rows",
			domain.ErrOracleUnavailable, len(respBody.Results), len(reqs))
	}

	results := make([]ScoreResult, len(respBody.Results))
	for i, r := range respBody.Results {
		results[i] = ScoreResult{RiskScore: r.RiskScore, RiskLabel: r.RiskLabel}
		if r.Error != "" {
			results[i].Err = fmt.Errorf("%w: %s", ErrRowScoringFailed, r.Error)
		}
	}
	return results, nil
}
