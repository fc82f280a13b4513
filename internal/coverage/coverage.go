// Package coverage joins aggregated panel cells to reference margins and
// scores how well the panel represents the reference population: coverage
// ratios, share deviation, compositional drift, and per-cell reliability.
package coverage

import (
	"log/slog"
	"strings"

	apperrors "panelrep/internal/errors"
	"panelrep/internal/panel"
	"panelrep/internal/refdata"
)

// Reliability is the statistical usability label of a coverage cell.
type Reliability string

const (
	ReliabilityReliable     Reliability = "reliable"
	ReliabilityMarginal     Reliability = "marginal"
	ReliabilityInsufficient Reliability = "insufficient"
)

// Cell is a panel cell joined to its matching reference margin, with
// coverage ratios. Created once per join, immutable afterwards.
type Cell struct {
	Key panel.CellKey

	PanelEmployment     int64
	PanelClients        int
	ReferenceEmployment float64
	ReferenceUnits      float64

	EmploymentRatio float64
	UnitRatio       float64 // 0 when the margin carries no unit count

	Reliability Reliability
}

// Compute joins every panel cell to the reference margin with the same
// key and computes coverage ratios. Cells without a matching margin are
// logged and excluded; that is an expected condition, not a failure.
// The returned error slice carries one MissingMarginError per excluded
// cell for callers that report them.
func Compute(cells []panel.Cell, margins refdata.Table, logger *slog.Logger) ([]Cell, []error) {
	if logger == nil {
		logger = slog.Default()
	}

	out := make([]Cell, 0, len(cells))
	var missing []error
	for _, c := range cells {
		m, ok := margins.Lookup(c.Key)
		if !ok || m.Employment <= 0 {
			err := &apperrors.MissingMarginError{
				Level:  string(c.Key.Level),
				Cell:   cellLabel(c.Key),
				Period: c.Key.Period.String(),
			}
			missing = append(missing, err)
			logger.Debug("cell excluded from coverage",
				slog.String("level", string(c.Key.Level)),
				slog.String("cell", cellLabel(c.Key)),
				slog.String("period", c.Key.Period.String()),
			)
			continue
		}

		cov := Cell{
			Key:                 c.Key,
			PanelEmployment:     c.Employment,
			PanelClients:        c.ActiveClients,
			ReferenceEmployment: m.Employment,
			ReferenceUnits:      m.Units,
			EmploymentRatio:     float64(c.Employment) / m.Employment,
		}
		if m.Units > 0 {
			cov.UnitRatio = float64(c.ActiveClients) / m.Units
		}
		out = append(out, cov)
	}

	if len(missing) > 0 {
		logger.Info("coverage computed with excluded cells",
			slog.Int("covered", len(out)),
			slog.Int("excluded", len(missing)),
		)
	}
	return out, missing
}

// Thresholds are the injected reliability cutoffs.
type Thresholds struct {
	MinUnits    int
	MinCoverage float64
}

// Classify assigns the reliability label: insufficient when the cell has
// fewer than MinUnits panel clients, marginal when coverage is below
// MinCoverage, reliable otherwise. The classification is monotone in both
// unit count and coverage ratio.
func Classify(cells []Cell, th Thresholds) []Cell {
	out := make([]Cell, len(cells))
	for i, c := range cells {
		c.Reliability = classifyOne(c.PanelClients, c.EmploymentRatio, th)
		out[i] = c
	}
	return out
}

func classifyOne(units int, ratio float64, th Thresholds) Reliability {
	switch {
	case units < th.MinUnits:
		return ReliabilityInsufficient
	case ratio < th.MinCoverage:
		return ReliabilityMarginal
	default:
		return ReliabilityReliable
	}
}

func cellLabel(key panel.CellKey) string {
	parts := make([]string, 0, 3)
	for _, v := range []string{key.Supersector, key.StateFIPS, key.SizeClass} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "national"
	}
	return strings.Join(parts, "/")
}
