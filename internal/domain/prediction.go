package domain

import "time"

// Prediction is one scored fact row. Uniqueness is enforced on
// (company_id, reporting_year, reporting_quarter, scope); annual rows always
// store reporting_quarter as "Q4" so the key is canonical across job types.
type Prediction struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID        uint      `gorm:"not null;uniqueIndex:idx_predictions_key" json:"company_id"`
	ReportingYear    int       `gorm:"not null;uniqueIndex:idx_predictions_key" json:"reporting_year"`
	ReportingQuarter string    `gorm:"type:text;not null;uniqueIndex:idx_predictions_key" json:"reporting_quarter"`
	Scope            string    `gorm:"type:text;not null;uniqueIndex:idx_predictions_key" json:"scope"`
	JobID            string    `gorm:"type:text;index" json:"job_id"`
	RiskScore        float64   `json:"risk_score"`
	RiskLabel        string    `gorm:"type:text" json:"risk_label"`
	ModelVersion     string    `gorm:"type:text" json:"model_version"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName returns the database table name for Prediction.
func (Prediction) TableName() string {
	return "predictions"
}

// PredictionKey identifies a fact for duplicate detection.
type PredictionKey struct {
	CompanyID        uint
	ReportingYear    int
	ReportingQuarter string
	Scope            string
}

// Key returns the duplicate-detection key for the prediction.
func (p *Prediction) Key() PredictionKey {
	return PredictionKey{
		CompanyID:        p.CompanyID,
		ReportingYear:    p.ReportingYear,
		ReportingQuarter: p.ReportingQuarter,
		Scope:            p.Scope,
	}
}
