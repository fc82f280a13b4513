package tenure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelrep/internal/panel"
)

func TestComputeClientTenure(t *testing.T) {
	jan := panel.NewPeriod(2023, time.January)

	var records []panel.Record
	for i := 0; i < 6; i++ {
		records = append(records, panel.Record{
			ClientID: "a", Period: jan.Add(i), Employment: int64(10 + i),
		})
	}
	records = append(records, panel.Record{
		ClientID: "b", Period: jan.Add(2), Employment: 5, Formation: panel.FormationTrue,
	})

	out := ComputeClientTenure(records)
	require.Len(t, out, 2)

	a := out[0]
	assert.Equal(t, "a", a.ClientID)
	assert.Equal(t, jan, a.FirstObserved)
	assert.Equal(t, jan.Add(5), a.LastObserved)
	assert.Equal(t, 5, a.TenureMonths)
	assert.Equal(t, 6, a.MonthsObserved)
	assert.Equal(t, int64(10), a.InitialEmp)
	assert.Equal(t, int64(15), a.FinalEmp)
	assert.InDelta(t, 12.5, a.AvgEmp, 1e-12)
	assert.False(t, a.LikelyBirth)

	b := out[1]
	assert.Equal(t, 0, b.TenureMonths)
	assert.Equal(t, 1, b.MonthsObserved)
	assert.True(t, b.LikelyBirth)
}

func TestSummarizeByGroup(t *testing.T) {
	jan := panel.NewPeriod(2023, time.January)

	var records []panel.Record
	// Two construction clients: 14 and 2 months of span.
	for i := 0; i <= 14; i++ {
		records = append(records, panel.Record{
			ClientID: "long", Period: jan.Add(i), Supersector: "Construction", Employment: 20,
		})
	}
	for i := 0; i <= 2; i++ {
		records = append(records, panel.Record{
			ClientID: "short", Period: jan.Add(i), Supersector: "Construction", Employment: 5,
			Formation: panel.FormationTrue,
		})
	}
	// One retail client in a separate group.
	records = append(records, panel.Record{
		ClientID: "r", Period: jan, Supersector: "Retail trade", Employment: 8,
	})

	out := SummarizeByGroup(records, 12)
	require.Len(t, out, 2)

	construction := out[0]
	assert.Equal(t, "Construction", construction.Supersector)
	assert.Equal(t, 2, construction.Clients)
	assert.InDelta(t, 8.0, construction.MeanTenure, 1e-12)
	assert.InDelta(t, 8.0, construction.MedianTenure, 1e-12)
	assert.InDelta(t, 0.5, construction.StableShare, 1e-12)
	assert.InDelta(t, 0.5, construction.BirthShare, 1e-12)

	retail := out[1]
	assert.Equal(t, "Retail trade", retail.Supersector)
	assert.Equal(t, 1, retail.Clients)
	assert.InDelta(t, 0.0, retail.StableShare, 1e-12)
}

func TestSummarizeByGroupUsesLatestSector(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	// Client reclassified mid-panel counts toward its latest supersector.
	records := []panel.Record{
		{ClientID: "m", Period: jan, Supersector: "Construction", Employment: 10},
		{ClientID: "m", Period: jan.Add(1), Supersector: "Manufacturing", Employment: 10},
	}

	out := SummarizeByGroup(records, 12)
	require.Len(t, out, 1)
	assert.Equal(t, "Manufacturing", out[0].Supersector)
}

func TestComputeChurn(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	feb := jan.Add(1)

	records := []panel.Record{
		{ClientID: "a", Period: jan, Employment: 10, EntryPeriod: jan.Add(-12)},
		{ClientID: "a", Period: feb, Employment: 10, EntryPeriod: jan.Add(-12)},
		{ClientID: "b", Period: feb, Employment: 5, EntryPeriod: feb},
		{ClientID: "c", Period: jan, Employment: 8, EntryPeriod: jan.Add(-3), ExitPeriod: &jan},
		{ClientID: "d", Period: jan, Employment: 4, EntryPeriod: jan.Add(-1)},
		{ClientID: "d", Period: feb, Employment: 4, EntryPeriod: jan.Add(-1)},
	}

	out := ComputeChurn(records)
	require.Len(t, out, 2)

	janRow := out[0]
	assert.Equal(t, 3, janRow.ActiveClients)
	assert.Equal(t, 0, janRow.Entries)
	assert.Equal(t, 1, janRow.Exits)
	assert.InDelta(t, 1.0/3.0, janRow.ExitRate, 1e-12)
	assert.Equal(t, -1, janRow.NetClientChange)

	febRow := out[1]
	assert.Equal(t, 3, febRow.ActiveClients)
	assert.Equal(t, 1, febRow.Entries)
	assert.InDelta(t, 1.0/3.0, febRow.EntryRate, 1e-12)
	assert.InDelta(t, 1.0/3.0, febRow.ChurnRate, 1e-12)
	assert.Equal(t, 1, febRow.NetClientChange)
}

func TestComputeVintageShares(t *testing.T) {
	jan23 := panel.NewPeriod(2023, time.January)
	jan24 := panel.NewPeriod(2024, time.January)

	records := []panel.Record{
		// 2023 vintage client observed in both years.
		{ClientID: "old", Period: jan23, Employment: 80},
		{ClientID: "old", Period: jan24, Employment: 60},
		// 2024 vintage client dominating January 2024.
		{ClientID: "new", Period: jan24, Employment: 140},
	}

	out := ComputeVintageShares(records, 0.3)
	require.Len(t, out, 3)

	assert.Equal(t, 2023, out[0].VintageYear)
	assert.InDelta(t, 1.0, out[0].EmploymentShare, 1e-12)
	// Sole vintage in its own period is the newest and above threshold.
	assert.True(t, out[0].Contaminated)

	assert.Equal(t, jan24, out[1].Period)
	assert.Equal(t, 2023, out[1].VintageYear)
	assert.InDelta(t, 0.3, out[1].EmploymentShare, 1e-12)
	assert.False(t, out[1].Contaminated)

	assert.Equal(t, 2024, out[2].VintageYear)
	assert.InDelta(t, 0.7, out[2].EmploymentShare, 1e-12)
	assert.True(t, out[2].Contaminated)
}

func TestComputeVintageSharesBelowThreshold(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	records := []panel.Record{
		{ClientID: "old", Period: jan, Employment: 90},
		{ClientID: "new", Period: jan, Employment: 10},
	}
	// Force distinct vintages via an earlier observation for "old".
	records = append(records, panel.Record{ClientID: "old", Period: panel.NewPeriod(2022, time.June), Employment: 90})

	out := ComputeVintageShares(records, 0.3)
	for _, row := range out {
		if row.Period == jan && row.VintageYear == 2024 {
			assert.InDelta(t, 0.1, row.EmploymentShare, 1e-12)
			assert.False(t, row.Contaminated)
		}
	}
}
