package oracle

import (
	"context"
	"errors"
)

// ScoreRequest is one row's input to the scoring oracle: the entity symbol
// and its ratio features in canonical order.
type ScoreRequest struct {
	Symbol   string    `json:"symbol"`
	Features []float64 `json:"features"`
}

// ScoreResult is one row's scoring outcome. Err carries a row-level scoring
// failure; the batch as a whole only fails when the oracle is unreachable.
type ScoreResult struct {
	RiskScore float64 `json:"risk_score"`
	RiskLabel string  `json:"risk_label"`
	Err       error   `json:"-"`
}

// ErrRowScoringFailed marks a per-row scoring failure (degenerate input,
// model fallback). Recorded against the row, never fatal to the batch.
var ErrRowScoringFailed = errors.New("row scoring failed")

// ScoringOracle turns validated ratio inputs into risk scores. The trained
// model behind it is opaque to this service.
//
// ScoreBatch returns results in the same length and order as the input.
// A non-nil error means the oracle itself was unreachable and the caller
// should treat the whole job as at risk, not just this batch.
type ScoringOracle interface {
	ScoreBatch(ctx context.Context, reqs []ScoreRequest) ([]ScoreResult, error)
	ModelVersion() string
}
