package flows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelrep/internal/panel"
)

func TestComputeClientBased(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	feb := jan.Add(1)

	records := []panel.Record{
		// Continuing client, present both months.
		{ClientID: "a", Period: jan, Employment: 100, EntryPeriod: jan.Add(-6)},
		{ClientID: "a", Period: feb, Employment: 100, EntryPeriod: jan.Add(-6)},
		// Entrant in February.
		{ClientID: "b", Period: feb, Employment: 20, EntryPeriod: feb},
		// Exiter in January.
		{ClientID: "c", Period: jan, Employment: 30, EntryPeriod: jan.Add(-3), ExitPeriod: &jan},
	}

	rows := Compute(records, panel.Capabilities{})
	require.Len(t, rows, 2)

	janRow, febRow := rows[0], rows[1]
	assert.Equal(t, jan, janRow.Period)
	assert.Equal(t, int64(130), janRow.Employment)
	assert.Equal(t, int64(30), janRow.Separations)
	assert.Equal(t, int64(0), janRow.Hires)

	assert.Equal(t, feb, febRow.Period)
	assert.Equal(t, int64(120), febRow.Employment)
	assert.Equal(t, int64(20), febRow.Hires)
	assert.Equal(t, int64(100), febRow.ContinuingEmployment)
	assert.InDelta(t, 20.0/120.0, febRow.HireRate, 1e-12)
	assert.InDelta(t, 20.0/120.0, febRow.NetGrowthRate, 1e-12)
}

func TestComputeWorkerBased(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	feb := jan.Add(1)

	records := []panel.Record{
		{ClientID: "a", Period: jan, Employment: 3, WorkerIDs: []string{"w1", "w2", "w3"}},
		// w3 leaves, w4 arrives.
		{ClientID: "a", Period: feb, Employment: 3, WorkerIDs: []string{"w1", "w2", "w4"}},
	}

	rows := Compute(records, panel.Capabilities{HasWorkerIDs: true})
	require.Len(t, rows, 2)

	febRow := rows[1]
	assert.Equal(t, int64(1), febRow.Hires)
	assert.Equal(t, int64(1), febRow.Separations)
	assert.Equal(t, int64(2), febRow.ContinuingEmployment)
	assert.InDelta(t, 2.0/3.0, febRow.ChurnRate, 1e-12)
	assert.InDelta(t, 0.0, febRow.NetGrowthRate, 1e-12)
}

func TestComputeWorkerBasedClientMoveCountsBothWays(t *testing.T) {
	// A worker moving between clients is a separation at the old client
	// and a hire at the new one.
	jan := panel.NewPeriod(2024, time.January)
	feb := jan.Add(1)

	records := []panel.Record{
		{ClientID: "a", Period: jan, Employment: 1, WorkerIDs: []string{"w1"}},
		{ClientID: "b", Period: feb, Employment: 1, WorkerIDs: []string{"w1"}},
	}

	rows := Compute(records, panel.Capabilities{HasWorkerIDs: true})
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[1].Hires)
	assert.Equal(t, int64(1), rows[1].Separations)
	assert.Equal(t, int64(0), rows[1].ContinuingEmployment)
}

func TestComputeWorkerBasedGapSkipsFlows(t *testing.T) {
	// Non-adjacent periods produce no flows for the later period.
	jan := panel.NewPeriod(2024, time.January)
	mar := jan.Add(2)

	records := []panel.Record{
		{ClientID: "a", Period: jan, Employment: 2, WorkerIDs: []string{"w1", "w2"}},
		{ClientID: "a", Period: mar, Employment: 2, WorkerIDs: []string{"w1", "w3"}},
	}

	rows := Compute(records, panel.Capabilities{HasWorkerIDs: true})
	require.Len(t, rows, 2)
	assert.Equal(t, int64(0), rows[1].Hires)
	assert.Equal(t, int64(0), rows[1].Separations)
}

func TestComputeZeroEmploymentNoRates(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	records := []panel.Record{
		{ClientID: "a", Period: jan, Employment: 0, EntryPeriod: jan},
	}
	rows := Compute(records, panel.Capabilities{})
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].HireRate)
	assert.Zero(t, rows[0].ChurnRate)
}
