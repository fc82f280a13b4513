// Package report renders analysis artifacts to disk: one CSV per table,
// an Excel workbook with the headline sheets, and a markdown executive
// summary. CSV is the canonical format; the workbook and summary are
// conveniences for review.
package report

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"panelrep/internal/coverage"
	"panelrep/internal/earnings"
	"panelrep/internal/flows"
	"panelrep/internal/growth"
	"panelrep/internal/leadlag"
	"panelrep/internal/panel"
	"panelrep/internal/quality"
	"panelrep/internal/tenure"
)

// Bundle collects every artifact produced by a run. Nil or empty slices
// are skipped when writing.
type Bundle struct {
	RunID            string
	Coverage         []coverage.Cell
	ShareComparisons []coverage.ShareComparison
	Reweighted       []panel.WeightedCell
	GrowthComparison []growth.ComparisonRow
	Divergence       []growth.DivergenceRow
	EmploymentChange []growth.ChangeRow
	TurningPoints    []growth.MatchedEvent
	Correlations     []leadlag.LagCorrelation
	Regressions      []leadlag.RegressionResult
	Survival         []leadlag.SurvivalCurve
	Flows            []flows.Row
	Tenure           []tenure.ChurnRow
	ClientTenure     []tenure.ClientTenure
	TenureByGroup    []tenure.GroupSummary
	Vintages         []tenure.VintageRow
	Quality          []quality.PeriodSummary
	Earnings         []earnings.Summary
	EarningsGrowth   []earnings.GrowthRow
}

// Writer writes artifacts beneath a run-scoped output directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Write renders the full bundle. Returns the paths written.
func (w *Writer) Write(b *Bundle) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	var written []string
	add := func(name string, headers []string, rows [][]string) error {
		if len(rows) == 0 {
			return nil
		}
		path := filepath.Join(w.dir, name)
		if err := writeCSV(path, headers, rows); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	steps := []func() error{
		func() error { return add("coverage.csv", coverageHeaders, coverageRows(b.Coverage)) },
		func() error { return add("share_deviation.csv", shareHeaders, shareRows(b.ShareComparisons)) },
		func() error { return add("reweighted.csv", reweightedHeaders, reweightedRows(b.Reweighted)) },
		func() error { return add("growth_comparison.csv", growthHeaders, growthRows(b.GrowthComparison)) },
		func() error { return add("divergence.csv", divergenceHeaders, divergenceRows(b.Divergence)) },
		func() error { return add("employment_change.csv", changeHeaders, changeRows(b.EmploymentChange)) },
		func() error { return add("turning_points.csv", turningHeaders, turningRows(b.TurningPoints)) },
		func() error { return add("correlations.csv", corrHeaders, corrRows(b.Correlations)) },
		func() error { return add("regressions.csv", regressionHeaders, regressionRows(b.Regressions)) },
		func() error { return add("survival.csv", survivalHeaders, survivalRows(b.Survival)) },
		func() error { return add("flows.csv", flowHeaders, flowRows(b.Flows)) },
		func() error { return add("client_churn.csv", churnHeaders, churnRows(b.Tenure)) },
		func() error { return add("client_tenure.csv", tenureHeaders, tenureRows(b.ClientTenure)) },
		func() error { return add("tenure_by_group.csv", groupTenureHeaders, groupTenureRows(b.TenureByGroup)) },
		func() error { return add("vintages.csv", vintageHeaders, vintageRows(b.Vintages)) },
		func() error { return add("quality.csv", qualityHeaders, qualityRows(b.Quality)) },
		func() error { return add("earnings.csv", earningsHeaders, earningsRows(b.Earnings)) },
		func() error { return add("earnings_growth.csv", earningsGrowthHeaders, earningsGrowthRows(b.EarningsGrowth)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return written, err
		}
	}

	w.logger.Info("report artifacts written",
		slog.String("run_id", b.RunID),
		slog.Int("files", len(written)),
		slog.String("dir", w.dir))
	return written, nil
}

func writeCSV(path string, headers []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("write headers to %s: %w", filepath.Base(path), err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row to %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func f64(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// opt renders a nullable rate; absence stays an empty field, never zero.
func opt(v *float64) string {
	if v == nil {
		return ""
	}
	return f64(*v)
}

func i64(v int64) string { return strconv.FormatInt(v, 10) }

var coverageHeaders = []string{
	"level", "supersector", "state_fips", "size_class", "period",
	"panel_employment", "reference_employment", "employment_ratio",
	"unit_ratio", "panel_clients", "reliability",
}

func coverageRows(cells []coverage.Cell) [][]string {
	rows := make([][]string, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []string{
			string(c.Key.Level), c.Key.Supersector, c.Key.StateFIPS, c.Key.SizeClass,
			c.Key.Period.String(),
			i64(c.PanelEmployment), f64(c.ReferenceEmployment), f64(c.EmploymentRatio),
			f64(c.UnitRatio), strconv.Itoa(c.PanelClients), string(c.Reliability),
		})
	}
	return rows
}

var shareHeaders = []string{
	"dimension", "period", "value",
	"panel_share", "reference_share", "abs_deviation", "misallocation_index",
}

func shareRows(comparisons []coverage.ShareComparison) [][]string {
	var rows [][]string
	for _, cmp := range comparisons {
		for _, d := range cmp.Deviations {
			rows = append(rows, []string{
				string(cmp.Dimension), cmp.Period.String(), d.Value,
				f64(d.PanelShare), f64(d.ReferenceShare), f64(d.AbsDeviation),
				f64(cmp.MisallocationIndex),
			})
		}
	}
	return rows
}

var reweightedHeaders = []string{
	"level", "supersector", "state_fips", "size_class", "period", "weighted_employment",
}

func reweightedRows(cells []panel.WeightedCell) [][]string {
	rows := make([][]string, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []string{
			string(c.Key.Level), c.Key.Supersector, c.Key.StateFIPS, c.Key.SizeClass,
			c.Key.Period.String(), f64(c.Employment),
		})
	}
	return rows
}

var growthHeaders = []string{
	"period", "panel_yoy", "reference_yoy", "difference", "rolling_corr_12",
}

func growthRows(rows []growth.ComparisonRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Period.String(), opt(r.PanelYoY), opt(r.ReferenceYoY),
			opt(r.Difference), opt(r.RollingCorr12),
		})
	}
	return out
}

var divergenceHeaders = []string{
	"period", "panel_growth", "reference_growth", "total_divergence",
	"composition_effect", "within_cell_effect", "cells",
}

func divergenceRows(rows []growth.DivergenceRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Period.String(), f64(r.PanelGrowth), f64(r.ReferenceGrowth),
			f64(r.TotalDivergence), f64(r.CompositionEffect), f64(r.WithinCellEffect),
			strconv.Itoa(r.Cells),
		})
	}
	return out
}

var changeHeaders = []string{
	"period", "total_change", "continuing_change", "entry_contribution",
	"exit_contribution", "continuing_clients", "entering_clients", "exiting_clients",
}

func changeRows(rows []growth.ChangeRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Period.String(), i64(r.TotalChange), i64(r.ContinuingChange),
			i64(r.EntryContribution), i64(r.ExitContribution),
			strconv.Itoa(r.ContinuingClients), strconv.Itoa(r.EnteringClients),
			strconv.Itoa(r.ExitingClients),
		})
	}
	return out
}

var turningHeaders = []string{"panel_period", "reference_period", "lead_lag"}

func turningRows(events []growth.MatchedEvent) [][]string {
	out := make([][]string, 0, len(events))
	for _, e := range events {
		row := []string{"", "", ""}
		if e.PanelPeriod != nil {
			row[0] = e.PanelPeriod.String()
		}
		if e.ReferencePeriod != nil {
			row[1] = e.ReferencePeriod.String()
		}
		if e.LeadLag != nil {
			row[2] = strconv.Itoa(*e.LeadLag)
		}
		out = append(out, row)
	}
	return out
}

var corrHeaders = []string{"lag", "r", "n"}

func corrRows(correlations []leadlag.LagCorrelation) [][]string {
	out := make([][]string, 0, len(correlations))
	for _, c := range correlations {
		out = append(out, []string{strconv.Itoa(c.Lag), f64(c.R), strconv.Itoa(c.N)})
	}
	return out
}

var regressionHeaders = []string{"model", "coefficient", "estimate", "std_err", "r2", "n"}

func regressionRows(results []leadlag.RegressionResult) [][]string {
	var out [][]string
	for _, res := range results {
		for _, c := range res.Coefficients {
			out = append(out, []string{
				res.Model, c.Name, f64(c.Estimate), f64(c.StdErr),
				f64(res.R2), strconv.Itoa(res.N),
			})
		}
	}
	return out
}

var survivalHeaders = []string{"cohort", "size", "elapsed", "active", "fraction"}

func survivalRows(curves []leadlag.SurvivalCurve) [][]string {
	var out [][]string
	for _, curve := range curves {
		for _, p := range curve.Points {
			out = append(out, []string{
				curve.Cohort.String(), strconv.Itoa(curve.Size),
				strconv.Itoa(p.Elapsed), strconv.Itoa(p.Active), f64(p.Fraction),
			})
		}
	}
	return out
}

var flowHeaders = []string{
	"period", "employment", "hires", "separations", "continuing",
	"hire_rate", "separation_rate", "churn_rate", "net_growth_rate",
}

func flowRows(rows []flows.Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Period.String(), i64(r.Employment), i64(r.Hires), i64(r.Separations),
			i64(r.ContinuingEmployment), f64(r.HireRate), f64(r.SeparationRate),
			f64(r.ChurnRate), f64(r.NetGrowthRate),
		})
	}
	return out
}

var churnHeaders = []string{
	"period", "active_clients", "entries", "exits",
	"entry_rate", "exit_rate", "churn_rate", "net_client_change",
}

func churnRows(rows []tenure.ChurnRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Period.String(), strconv.Itoa(r.ActiveClients),
			strconv.Itoa(r.Entries), strconv.Itoa(r.Exits),
			f64(r.EntryRate), f64(r.ExitRate), f64(r.ChurnRate),
			strconv.Itoa(r.NetClientChange),
		})
	}
	return out
}

var tenureHeaders = []string{
	"client_id", "first_observed", "last_observed", "tenure_months",
	"months_observed", "initial_employment", "final_employment",
	"avg_employment", "likely_birth",
}

func tenureRows(rows []tenure.ClientTenure) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.ClientID, r.FirstObserved.String(), r.LastObserved.String(),
			strconv.Itoa(r.TenureMonths), strconv.Itoa(r.MonthsObserved),
			i64(r.InitialEmp), i64(r.FinalEmp), f64(r.AvgEmp),
			strconv.FormatBool(r.LikelyBirth),
		})
	}
	return out
}

var groupTenureHeaders = []string{
	"supersector", "clients", "mean_tenure", "median_tenure",
	"stable_share", "birth_share",
}

func groupTenureRows(rows []tenure.GroupSummary) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Supersector, strconv.Itoa(r.Clients), f64(r.MeanTenure),
			f64(r.MedianTenure), f64(r.StableShare), f64(r.BirthShare),
		})
	}
	return out
}

var vintageHeaders = []string{
	"period", "vintage_year", "employment", "client_count",
	"employment_share", "contaminated",
}

func vintageRows(rows []tenure.VintageRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Period.String(), strconv.Itoa(r.VintageYear), i64(r.Employment),
			strconv.Itoa(r.ClientCount), f64(r.EmploymentShare),
			strconv.FormatBool(r.Contaminated),
		})
	}
	return out
}

var qualityHeaders = []string{
	"period", "records", "extreme_changes", "zero_employment",
	"shared_workers", "filing_gaps", "issue_rate",
}

func qualityRows(summaries []quality.PeriodSummary) [][]string {
	out := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, []string{
			s.Period.String(), strconv.Itoa(s.Records),
			strconv.Itoa(s.ExtremeChanges), strconv.Itoa(s.ZeroEmployment),
			strconv.Itoa(s.SharedWorkers), strconv.Itoa(s.FilingGaps),
			f64(s.IssueRate),
		})
	}
	return out
}

var earningsHeaders = []string{
	"period", "clients", "mean", "median", "p10", "p25", "p75", "p90",
	"std_dev", "cv", "total_pay",
}

func earningsRows(summaries []earnings.Summary) [][]string {
	out := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, []string{
			s.Period.String(), strconv.Itoa(s.Clients), f64(s.Mean), f64(s.Median),
			f64(s.P10), f64(s.P25), f64(s.P75), f64(s.P90),
			f64(s.StdDev), f64(s.CV), f64(s.TotalPay),
		})
	}
	return out
}

var earningsGrowthHeaders = []string{"period", "mean_pay", "yoy"}

func earningsGrowthRows(rows []earnings.GrowthRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{r.Period.String(), f64(r.Mean), opt(r.YoY)})
	}
	return out
}
