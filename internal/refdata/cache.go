package refdata

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"panelrep/internal/panel"
)

// Cache persists fetched observations as CSV so repeated runs do not
// burn API quota. One file per logical dataset.
type Cache struct {
	dir    string
	logger *slog.Logger
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string, logger *slog.Logger) *Cache {
	return &Cache{dir: dir, logger: logger}
}

var cacheHeader = []string{"series_id", "period", "value"}

// Save writes observations for a dataset, replacing any prior file.
func (c *Cache) Save(dataset string, observations []Observation) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	path := c.path(dataset)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	sorted := make([]Observation, len(observations))
	copy(sorted, observations)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SeriesID != sorted[j].SeriesID {
			return sorted[i].SeriesID < sorted[j].SeriesID
		}
		return sorted[i].Period.Before(sorted[j].Period)
	})

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write(cacheHeader); err != nil {
		return fmt.Errorf("failed to write cache header: %w", err)
	}
	for _, obs := range sorted {
		row := []string{obs.SeriesID, obs.Period.String(), strconv.FormatFloat(obs.Value, 'g', -1, 64)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write cache row: %w", err)
		}
	}

	c.logger.Info("cached reference observations",
		slog.String("dataset", dataset),
		slog.Int("count", len(sorted)),
		slog.String("path", path))
	return nil
}

// Load reads cached observations for a dataset. A missing file returns
// ok=false without error.
func (c *Cache) Load(dataset string) ([]Observation, bool, error) {
	f, err := os.Open(c.path(dataset))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	var out []Observation
	for _, row := range rows[1:] {
		if len(row) < 3 {
			continue
		}
		period, err := panel.ParsePeriod(row[1])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			continue
		}
		out = append(out, Observation{SeriesID: row[0], Period: period, Value: v})
	}
	return out, true, nil
}

func (c *Cache) path(dataset string) string {
	return filepath.Join(c.dir, dataset+".csv")
}
