package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkhuang/riskcast/internal/domain"
)

func annualRow() map[string]interface{} {
	return map[string]interface{}{
		"symbol":            "ACME",
		"reporting_year":    float64(2024),
		"current_ratio":     1.8,
		"debt_ratio":        0.42,
		"return_on_assets":  0.07,
		"operating_margin":  0.12,
		"asset_turnover":    0.9,
		"interest_coverage": 5.5,
	}
}

func quarterlyRow() map[string]interface{} {
	return map[string]interface{}{
		"symbol":             "ACME",
		"reporting_year":     float64(2024),
		"reporting_quarter":  "q2",
		"current_ratio":      1.8,
		"debt_ratio":         0.42,
		"return_on_assets":   0.07,
		"operating_margin":   0.12,
		"revenue_growth_qoq": 0.03,
		"cash_flow_to_debt":  0.6,
	}
}

func TestValidateRow_AnnualCanonicalQuarter(t *testing.T) {
	row, err := ValidateRow(annualRow(), domain.JobTypeAnnual, 0)
	require.NoError(t, err)

	// Annual rows always store Q4 so annual and quarterly submissions share
	// one duplicate key space.
	assert.Equal(t, domain.CanonicalAnnualQuarter, row.ReportingQuarter)
	assert.Equal(t, "ACME", row.Symbol)
	assert.Equal(t, 2024, row.ReportingYear)
	require.NotNil(t, row.Annual)
	assert.Nil(t, row.Quarterly)
	assert.Len(t, row.Features(), len(domain.AnnualRatioFields))
}

func TestValidateRow_QuarterlyNormalizesQuarter(t *testing.T) {
	row, err := ValidateRow(quarterlyRow(), domain.JobTypeQuarterly, 3)
	require.NoError(t, err)
	assert.Equal(t, "Q2", row.ReportingQuarter)
	assert.Equal(t, 3, row.Index)
	require.NotNil(t, row.Quarterly)
}

func TestValidateRow_MissingSymbol(t *testing.T) {
	raw := annualRow()
	delete(raw, "symbol")
	_, err := ValidateRow(raw, domain.JobTypeAnnual, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol")
}

func TestValidateRow_MissingRatio(t *testing.T) {
	raw := annualRow()
	delete(raw, "interest_coverage")
	_, err := ValidateRow(raw, domain.JobTypeAnnual, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interest_coverage")
}

func TestValidateRow_RejectsNonFiniteValues(t *testing.T) {
	for name, bad := range map[string]float64{
		"NaN":  math.NaN(),
		"+Inf": math.Inf(1),
		"-Inf": math.Inf(-1),
	} {
		t.Run(name, func(t *testing.T) {
			raw := annualRow()
			raw["debt_ratio"] = bad
			_, err := ValidateRow(raw, domain.JobTypeAnnual, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "debt_ratio")
		})
	}
}

func TestValidateRow_CoercesStringNumbers(t *testing.T) {
	raw := annualRow()
	raw["current_ratio"] = " 2.5 "
	row, err := ValidateRow(raw, domain.JobTypeAnnual, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.5, row.Annual.CurrentRatio)
}

func TestValidateRow_RejectsNonNumericString(t *testing.T) {
	raw := annualRow()
	raw["current_ratio"] = "lots"
	_, err := ValidateRow(raw, domain.JobTypeAnnual, 0)
	require.Error(t, err)
}

func TestValidateRow_YearBounds(t *testing.T) {
	for _, year := range []interface{}{float64(1899), float64(2201), 2024.5, "ten"} {
		raw := annualRow()
		raw["reporting_year"] = year
		_, err := ValidateRow(raw, domain.JobTypeAnnual, 0)
		assert.Error(t, err, "year %v should be rejected", year)
	}
}

func TestValidateRow_InvalidQuarter(t *testing.T) {
	raw := quarterlyRow()
	raw["reporting_quarter"] = "Q5"
	_, err := ValidateRow(raw, domain.JobTypeQuarterly, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Q5")
}

func TestValidateRow_QuarterRequiredForQuarterly(t *testing.T) {
	raw := quarterlyRow()
	delete(raw, "reporting_quarter")
	_, err := ValidateRow(raw, domain.JobTypeQuarterly, 0)
	require.Error(t, err)
}
