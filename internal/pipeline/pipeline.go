// Package pipeline orchestrates a full representativeness run: load the
// panel, screen it, aggregate, join reference margins, rake, and fan out
// the analysis stages before writing the report bundle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"panelrep/internal/config"
	"panelrep/internal/coverage"
	"panelrep/internal/earnings"
	apperrors "panelrep/internal/errors"
	"panelrep/internal/flows"
	"panelrep/internal/growth"
	"panelrep/internal/infrastructure"
	"panelrep/internal/ingest"
	"panelrep/internal/leadlag"
	"panelrep/internal/panel"
	"panelrep/internal/quality"
	"panelrep/internal/raking"
	"panelrep/internal/refdata"
	"panelrep/internal/report"
	"panelrep/internal/tenure"
)

// Pipeline runs the analysis stages against one panel extract and one
// margin table.
type Pipeline struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// New assembles a pipeline. metrics may be nil when instrumentation is
// not wanted.
func New(cfg *config.Config, logger *slog.Logger, metrics *infrastructure.Metrics) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger, metrics: metrics}
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	RunID    string
	Bundle   *report.Bundle
	Warnings []string
	Raking   raking.Result
}

// Run executes every stage. Recoverable errors become warnings on the
// result; anything else aborts the run.
func (p *Pipeline) Run(ctx context.Context, ref refdata.Reference) (*RunResult, error) {
	margins := ref.Margins
	runID := uuid.NewString()
	ctx = infrastructure.WithRunID(ctx, runID)
	if p.metrics != nil {
		p.metrics.RunStarted()
		defer p.metrics.RunFinished()
	}

	res := &RunResult{RunID: runID, Bundle: &report.Bundle{RunID: runID}}
	p.logger.InfoContext(ctx, "pipeline run starting",
		slog.String("panel_file", p.cfg.Paths.PanelFile))

	var loaded *ingest.Result
	if err := p.stage(ctx, "ingest", func() error {
		var err error
		loaded, err = ingest.Load(p.cfg.Paths.PanelFile, p.logger)
		return err
	}); err != nil {
		return nil, err
	}
	records, caps := loaded.Records, loaded.Capabilities

	if err := p.stage(ctx, "quality", func() error {
		rep := quality.Screen(records, caps, quality.Thresholds{MaxMoMChange: p.cfg.Analysis.MaxMoMChange})
		res.Bundle.Quality = rep.Summaries
		return nil
	}); err != nil {
		return nil, err
	}

	var cells []panel.Cell
	if err := p.stage(ctx, "aggregate", func() error {
		var err error
		cells, err = panel.Aggregate(records, panel.DefaultGroupings)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, "coverage", func() error {
		joined, missing := coverage.Compute(cells, margins, p.logger)
		for _, err := range missing {
			if apperrors.IsRecoverable(err) {
				res.Warnings = append(res.Warnings, err.Error())
				continue
			}
			return err
		}
		res.Bundle.Coverage = coverage.Classify(joined, coverage.Thresholds{
			MinUnits:    p.cfg.Analysis.MinClients,
			MinCoverage: p.cfg.Analysis.MinCoverage,
		})
		res.Bundle.ShareComparisons = coverage.CompareShares(
			cells, margins, panel.LevelSupersector, panel.DimSupersector)
		p.publishCoverage(res.Bundle.Coverage)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, "raking", func() error {
		targets := raking.Targets{
			panel.DimSupersector: margins.Targets(panel.LevelSupersector, panel.DimSupersector),
			panel.DimState:       margins.Targets(panel.LevelState, panel.DimState),
		}
		result, err := raking.Rake(records,
			[]panel.Dimension{panel.DimSupersector, panel.DimState},
			targets,
			raking.Options{
				MaxIter:     p.cfg.Raking.MaxIterations,
				Tolerance:   p.cfg.Raking.Tolerance,
				Renormalize: p.cfg.Raking.Renormalize,
			},
			p.logger)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotConverged) {
				return err
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"raking stopped at max deviation %.2g after %d iterations",
				result.MaxDeviation, result.Iterations))
		}
		res.Raking = result

		// The raked weights feed a reweighted view of the aggregation so
		// downstream comparisons can be run on margin-consistent totals.
		weighted, err := panel.AggregateWeighted(records, panel.DefaultGroupings, result.Weights)
		if err != nil {
			return err
		}
		res.Bundle.Reweighted = weighted
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.analyze(ctx, res, records, caps, cells, ref); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "pipeline run finished",
		slog.Int("warnings", len(res.Warnings)))
	return res, nil
}

// analyze fans the independent analysis stages out in parallel. Each
// stage writes a distinct bundle field; only the shared warning list
// needs a lock.
func (p *Pipeline) analyze(ctx context.Context, res *RunResult, records []panel.Record, caps panel.Capabilities, cells []panel.Cell, ref refdata.Reference) error {
	margins := ref.Margins
	var warnMu sync.Mutex
	warn := func(msg string) {
		warnMu.Lock()
		res.Warnings = append(res.Warnings, msg)
		warnMu.Unlock()
	}

	stable := panel.FilterStable(records, p.cfg.Analysis.MinTenureMonths)

	panelNational := cellSeries(cells, panel.LevelNational)
	refNational := margins.EmploymentSeries(panel.LevelNational, "", "")
	panelGrowth := growth.Rates(panelNational)
	refGrowth := growth.Rates(refNational)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.stage(ctx, "growth", func() error {
			res.Bundle.GrowthComparison = growth.Compare(panelGrowth, refGrowth)
			res.Bundle.Divergence = growth.DecomposeDivergence(
				seriesByValue(cells, panel.LevelSupersector, panel.DimSupersector),
				marginSeriesByValue(margins, panel.LevelSupersector, panel.DimSupersector))
			res.Bundle.EmploymentChange = growth.DecomposeEmploymentChange(records)

			panelTPs := growth.TurningPoints(panelGrowth.Periods, panelGrowth.YoY)
			refTPs := growth.TurningPoints(refGrowth.Periods, refGrowth.YoY)
			res.Bundle.TurningPoints = growth.MatchTurningPoints(
				panelTPs, refTPs, p.cfg.Analysis.TurningWindow)
			return nil
		})
	})

	g.Go(func() error {
		return p.stage(ctx, "leadlag", func() error {
			// The event-rate comparison benchmarks the panel formation rate
			// against the reference births series. Without the formation
			// capability or a fetched births series, employment growth is
			// the fallback pair.
			panelRate := dropNil(panelGrowth.Periods, panelGrowth.YoY)
			refRate := dropNil(refGrowth.Periods, refGrowth.YoY)
			if caps.HasFormation && ref.Formation.Len() > 0 {
				if fr := leadlag.FormationRate(cells, panel.LevelNational); fr.Len() > 0 {
					panelRate, refRate = fr, ref.Formation
				}
			}
			res.Bundle.Correlations = leadlag.CrossCorrelation(
				panelRate, refRate, p.cfg.Analysis.MaxLagMonths)

			results, errs := leadlag.FitLeadModels(panelRate, refRate)
			res.Bundle.Regressions = results
			for _, err := range errs {
				if !apperrors.IsRecoverable(err) {
					return err
				}
				warn(err.Error())
			}
			if caps.HasFormation {
				res.Bundle.Survival = leadlag.SurvivalCurves(records, leadlag.DefaultCheckpoints)
			}
			return nil
		})
	})

	g.Go(func() error {
		return p.stage(ctx, "tenure", func() error {
			res.Bundle.Tenure = tenure.ComputeChurn(records)
			res.Bundle.ClientTenure = tenure.ComputeClientTenure(records)
			res.Bundle.TenureByGroup = tenure.SummarizeByGroup(records, p.cfg.Analysis.MinTenureMonths)
			res.Bundle.Vintages = tenure.ComputeVintageShares(records, p.cfg.Analysis.MaxRecentShare)
			return nil
		})
	})

	g.Go(func() error {
		return p.stage(ctx, "flows", func() error {
			res.Bundle.Flows = flows.Compute(stable, caps)
			return nil
		})
	})

	g.Go(func() error {
		return p.stage(ctx, "earnings", func() error {
			if !caps.HasPay {
				return nil
			}
			summaries, err := earnings.Summarize(records, caps)
			if err != nil {
				if apperrors.IsRecoverable(err) {
					warn(err.Error())
					return nil
				}
				return err
			}
			res.Bundle.Earnings = summaries
			res.Bundle.EarningsGrowth = earnings.Growth(summaries)
			return nil
		})
	})

	return g.Wait()
}

// WriteReports renders the bundle of a finished run.
func (p *Pipeline) WriteReports(res *RunResult) ([]string, error) {
	w := report.NewWriter(p.cfg.Paths.ReportDir, p.logger)
	paths, err := w.Write(res.Bundle)
	if err != nil {
		return paths, err
	}
	if path, err := w.WriteWorkbook(res.Bundle); err != nil {
		return paths, err
	} else if path != "" {
		paths = append(paths, path)
	}
	if path, err := w.WriteSummary(res.Bundle); err != nil {
		return paths, err
	} else {
		paths = append(paths, path)
	}
	return paths, nil
}

// stage runs one pipeline stage with timing, tracing, logging, and
// metrics.
func (p *Pipeline) stage(ctx context.Context, name string, fn func() error) error {
	ctx, span := infrastructure.StartStageSpan(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
	}
	if p.metrics != nil {
		p.metrics.ObserveStage(name, elapsed, err)
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "stage failed",
			slog.String("stage", name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return fmt.Errorf("stage %s: %w", name, err)
	}
	p.logger.InfoContext(ctx, "stage complete",
		slog.String("stage", name),
		slog.Duration("elapsed", elapsed))
	return nil
}

func (p *Pipeline) publishCoverage(cells []coverage.Cell) {
	if p.metrics == nil {
		return
	}
	latest := make(map[panel.Level]coverage.Cell)
	for _, c := range cells {
		if prev, ok := latest[c.Key.Level]; !ok || c.Key.Period.After(prev.Key.Period) {
			latest[c.Key.Level] = c
		}
	}
	for level, c := range latest {
		p.metrics.SetCoverageRatio(string(level), c.EmploymentRatio)
	}
}

// cellSeries collapses the cells of one level into an employment series.
func cellSeries(cells []panel.Cell, level panel.Level) panel.Series {
	byPeriod := make(map[panel.Period]float64)
	for _, c := range cells {
		if c.Key.Level == level {
			byPeriod[c.Key.Period] += float64(c.Employment)
		}
	}
	return panel.NewSeries(byPeriod)
}

// seriesByValue splits one level's cells into per-value employment
// series, keyed by dimension value.
func seriesByValue(cells []panel.Cell, level panel.Level, dim panel.Dimension) map[string]panel.Series {
	grouped := make(map[string]map[panel.Period]float64)
	for _, c := range cells {
		if c.Key.Level != level {
			continue
		}
		value := c.Key.DimensionValue(dim)
		if value == "" {
			continue
		}
		if grouped[value] == nil {
			grouped[value] = make(map[panel.Period]float64)
		}
		grouped[value][c.Key.Period] += float64(c.Employment)
	}
	out := make(map[string]panel.Series, len(grouped))
	for value, byPeriod := range grouped {
		out[value] = panel.NewSeries(byPeriod)
	}
	return out
}

func marginSeriesByValue(margins refdata.Table, level panel.Level, dim panel.Dimension) map[string]panel.Series {
	values := make(map[string]bool)
	for key := range margins {
		if key.Level == level {
			if v := key.DimensionValue(dim); v != "" {
				values[v] = true
			}
		}
	}
	out := make(map[string]panel.Series, len(values))
	for v := range values {
		out[v] = margins.EmploymentSeries(level, dim, v)
	}
	return out
}

// dropNil converts a nullable rate vector into a dense series, skipping
// the periods without a defined rate.
func dropNil(periods []panel.Period, rates []*float64) panel.Series {
	byPeriod := make(map[panel.Period]float64)
	for i, r := range rates {
		if r != nil {
			byPeriod[periods[i]] = *r
		}
	}
	return panel.NewSeries(byPeriod)
}
