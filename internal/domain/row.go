package domain

// CanonicalAnnualQuarter is stored as the reporting quarter for annual rows
// so duplicate detection uses one key shape for both job types.
const CanonicalAnnualQuarter = "Q4"

// AnnualRatios is the required ratio set for annual jobs.
type AnnualRatios struct {
	CurrentRatio     float64 `json:"current_ratio"`
	DebtRatio        float64 `json:"debt_ratio"`
	ReturnOnAssets   float64 `json:"return_on_assets"`
	OperatingMargin  float64 `json:"operating_margin"`
	AssetTurnover    float64 `json:"asset_turnover"`
	InterestCoverage float64 `json:"interest_coverage"`
}

// QuarterlyRatios is the required ratio set for quarterly jobs.
type QuarterlyRatios struct {
	CurrentRatio     float64 `json:"current_ratio"`
	DebtRatio        float64 `json:"debt_ratio"`
	ReturnOnAssets   float64 `json:"return_on_assets"`
	OperatingMargin  float64 `json:"operating_margin"`
	RevenueGrowthQoQ float64 `json:"revenue_growth_qoq"`
	CashFlowToDebt   float64 `json:"cash_flow_to_debt"`
}

// AnnualRatioFields lists the required numeric fields for annual rows,
// in oracle feature order.
var AnnualRatioFields = []string{
	"current_ratio",
	"debt_ratio",
	"return_on_assets",
	"operating_margin",
	"asset_turnover",
	"interest_coverage",
}

// QuarterlyRatioFields lists the required numeric fields for quarterly rows,
// in oracle feature order.
var QuarterlyRatioFields = []string{
	"current_ratio",
	"debt_ratio",
	"return_on_assets",
	"operating_margin",
	"revenue_growth_qoq",
	"cash_flow_to_debt",
}

// Row is one validated input record. Exactly one of Annual or Quarterly is
// set, matching the job type. Rows are ephemeral: they fold into job counters
// and created predictions, never persisted on their own.
type Row struct {
	Index            int
	Symbol           string
	ReportingYear    int
	ReportingQuarter string
	Annual           *AnnualRatios
	Quarterly        *QuarterlyRatios
}

// Features returns the ratio values in oracle feature order.
func (r *Row) Features() []float64 {
	if r.Annual != nil {
		a := r.Annual
		return []float64{
			a.CurrentRatio, a.DebtRatio, a.ReturnOnAssets,
			a.OperatingMargin, a.AssetTurnover, a.InterestCoverage,
		}
	}
	q := r.Quarterly
	return []float64{
		q.CurrentRatio, q.DebtRatio, q.ReturnOnAssets,
		q.OperatingMargin, q.RevenueGrowthQoQ, q.CashFlowToDebt,
	}
}
