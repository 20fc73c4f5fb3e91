package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tkhuang/riskcast/internal/domain"
)

// ValidateRow checks and coerces one raw input record into a typed Row.
// A row missing a required field, or carrying a value that does not coerce
// to a finite number, is rejected as a row-level failure; NaN and Infinity
// never pass downstream. No side effects.
func ValidateRow(raw map[string]interface{}, jobType domain.JobType, index int) (*domain.Row, error) {
	symbol, err := requireString(raw, "symbol")
	if err != nil {
		return nil, err
	}

	year, err := requireYear(raw, "reporting_year")
	if err != nil {
		return nil, err
	}

	row := &domain.Row{
		Index:         index,
		Symbol:        symbol,
		ReportingYear: year,
	}

	switch jobType {
	case domain.JobTypeAnnual:
		// Annual rows always store the canonical quarter so duplicate keys
		// match across job types.
		row.ReportingQuarter = domain.CanonicalAnnualQuarter
		ratios, err := coerceRatios(raw, domain.AnnualRatioFields)
		if err != nil {
			return nil, err
		}
		row.Annual = &domain.AnnualRatios{
			CurrentRatio:     ratios["current_ratio"],
			DebtRatio:        ratios["debt_ratio"],
			ReturnOnAssets:   ratios["return_on_assets"],
			OperatingMargin:  ratios["operating_margin"],
			AssetTurnover:    ratios["asset_turnover"],
			InterestCoverage: ratios["interest_coverage"],
		}
	case domain.JobTypeQuarterly:
		quarter, err := requireQuarter(raw, "reporting_quarter")
		if err != nil {
			return nil, err
		}
		row.ReportingQuarter = quarter
		ratios, err := coerceRatios(raw, domain.QuarterlyRatioFields)
		if err != nil {
			return nil, err
		}
		row.Quarterly = &domain.QuarterlyRatios{
			CurrentRatio:     ratios["current_ratio"],
			DebtRatio:        ratios["debt_ratio"],
			ReturnOnAssets:   ratios["return_on_assets"],
			OperatingMargin:  ratios["operating_margin"],
			RevenueGrowthQoQ: ratios["revenue_growth_qoq"],
			CashFlowToDebt:   ratios["cash_flow_to_debt"],
		}
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}

	return row, nil
}

func requireString(raw map[string]interface{}, field string) (string, error) {
	val, ok := raw[field]
	if !ok || val == nil {
		return "", fmt.Errorf("missing required field %q", field)
	}
	s, ok := val.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", field)
	}
	return strings.TrimSpace(s), nil
}

func requireYear(raw map[string]interface{}, field string) (int, error) {
	val, ok := raw[field]
	if !ok || val == nil {
		return 0, fmt.Errorf("missing required field %q", field)
	}
	f, err := coerceFloat(val)
	if err != nil {
		return 0, fmt.Errorf("field %q: %v", field, err)
	}
	year := int(f)
	if float64(year) != f || year < 1900 || year > 2200 {
		return 0, fmt.Errorf("field %q must be a valid year, got %v", field, val)
	}
	return year, nil
}

var validQuarters = map[string]bool{"Q1": true, "Q2": true, "Q3": true, "Q4": true}

func requireQuarter(raw map[string]interface{}, field string) (string, error) {
	s, err := requireString(raw, field)
	if err != nil {
		return "", err
	}
	s = strings.ToUpper(s)
	if !validQuarters[s] {
		return "", fmt.Errorf("field %q must be one of Q1-Q4, got %q", field, s)
	}
	return s, nil
}

func coerceRatios(raw map[string]interface{}, fields []string) (map[string]float64, error) {
	ratios := make(map[string]float64, len(fields))
	for _, field := range fields {
		val, ok := raw[field]
		if !ok || val == nil {
			return nil, fmt.Errorf("missing required ratio %q", field)
		}
		f, err := coerceFloat(val)
		if err != nil {
			return nil, fmt.Errorf("ratio %q: %v", field, err)
		}
		ratios[field] = f
	}
	return ratios, nil
}

// coerceFloat converts a raw JSON value to a finite float64. NaN and ±Inf
// are rejected, not zeroed.
func coerceFloat(val interface{}) (float64, error) {
	var f float64
	switch v := val.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", v.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("not numeric: %T", val)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", f)
	}
	return f, nil
}
