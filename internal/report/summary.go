package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"panelrep/internal/coverage"
)

// WriteSummary renders a short markdown executive summary of a run:
// headline coverage, compositional fit, growth tracking, and timing.
func (w *Writer) WriteSummary(b *Bundle) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Panel Representativeness Summary\n\n")
	fmt.Fprintf(&sb, "Run: %s\n\n", b.RunID)

	if len(b.Coverage) > 0 {
		reliable, marginal, insufficient := 0, 0, 0
		var latestRatio float64
		for _, c := range b.Coverage {
			switch c.Reliability {
			case coverage.ReliabilityReliable:
				reliable++
			case coverage.ReliabilityMarginal:
				marginal++
			default:
				insufficient++
			}
			latestRatio = c.EmploymentRatio
		}
		fmt.Fprintf(&sb, "## Coverage\n\n")
		fmt.Fprintf(&sb, "- Cells scored: %d (%d reliable, %d marginal, %d insufficient)\n",
			len(b.Coverage), reliable, marginal, insufficient)
		fmt.Fprintf(&sb, "- Latest employment coverage ratio: %.4f\n\n", latestRatio)
	}

	if len(b.ShareComparisons) > 0 {
		last := b.ShareComparisons[len(b.ShareComparisons)-1]
		fmt.Fprintf(&sb, "## Composition\n\n")
		fmt.Fprintf(&sb, "- Misallocation index (%s, %s): %.4f\n\n",
			last.Dimension, last.Period, last.MisallocationIndex)
	}

	if len(b.GrowthComparison) > 0 {
		last := b.GrowthComparison[len(b.GrowthComparison)-1]
		fmt.Fprintf(&sb, "## Growth tracking\n\n")
		if last.RollingCorr12 != nil {
			fmt.Fprintf(&sb, "- Rolling 12-month YoY correlation at %s: %.3f\n", last.Period, *last.RollingCorr12)
		}
		if last.Difference != nil {
			fmt.Fprintf(&sb, "- Latest YoY gap (panel minus reference): %+.4f\n", *last.Difference)
		}
		fmt.Fprintf(&sb, "\n")
	}

	if len(b.TurningPoints) > 0 {
		matched, leads := 0, 0
		for _, e := range b.TurningPoints {
			if e.LeadLag != nil {
				matched++
				if *e.LeadLag > 0 {
					leads++
				}
			}
		}
		fmt.Fprintf(&sb, "## Turning points\n\n")
		fmt.Fprintf(&sb, "- Matched events: %d of %d, %d with the panel leading\n\n",
			matched, len(b.TurningPoints), leads)
	}

	path := filepath.Join(w.dir, "summary.md")
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}
