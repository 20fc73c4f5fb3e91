package domain

import "time"

// Company is the shared dimension for prediction rows, keyed by
// (symbol, scope). Concurrent creation for the same key resolves to a
// single row via the unique index.
type Company struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol    string    `gorm:"type:text;not null;uniqueIndex:idx_companies_symbol_scope" json:"symbol"`
	Scope     string    `gorm:"type:text;not null;uniqueIndex:idx_companies_symbol_scope" json:"scope"`
	Name      string    `gorm:"type:text" json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Company.
func (Company) TableName() string {
	return "companies"
}
