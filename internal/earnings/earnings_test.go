package earnings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "panelrep/internal/errors"
	"panelrep/internal/panel"
)

func TestSummarizeRequiresPayCapability(t *testing.T) {
	_, err := Summarize(nil, panel.Capabilities{})
	var insufficient *apperrors.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, apperrors.IsRecoverable(err))
}

func TestSummarizeDistribution(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)

	// Average pay per worker: 1000, 2000, 3000, 4000.
	records := []panel.Record{
		{ClientID: "a", Period: jan, Employment: 10, GrossPay: 10000},
		{ClientID: "b", Period: jan, Employment: 5, GrossPay: 10000},
		{ClientID: "c", Period: jan, Employment: 2, GrossPay: 6000},
		{ClientID: "d", Period: jan, Employment: 1, GrossPay: 4000},
		// Excluded: no pay, no employment.
		{ClientID: "e", Period: jan, Employment: 3, GrossPay: 0},
		{ClientID: "f", Period: jan, Employment: 0, GrossPay: 500},
	}

	out, err := Summarize(records, panel.Capabilities{HasPay: true})
	require.NoError(t, err)
	require.Len(t, out, 1)

	s := out[0]
	assert.Equal(t, 4, s.Clients)
	assert.InDelta(t, 2500, s.Mean, 1e-9)
	assert.InDelta(t, 2500, s.Median, 1e-9)
	assert.InDelta(t, 1300, s.P10, 1e-9)
	assert.InDelta(t, 1750, s.P25, 1e-9)
	assert.InDelta(t, 3250, s.P75, 1e-9)
	assert.InDelta(t, 3700, s.P90, 1e-9)
	assert.InDelta(t, 30000, s.TotalPay, 1e-9)
	assert.Greater(t, s.StdDev, 0.0)
	assert.InDelta(t, s.StdDev/s.Mean, s.CV, 1e-12)
}

func TestSummarizeSingleClient(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	records := []panel.Record{
		{ClientID: "a", Period: jan, Employment: 4, GrossPay: 8000},
	}
	out, err := Summarize(records, panel.Capabilities{HasPay: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 2000, out[0].Median, 1e-9)
	assert.Zero(t, out[0].StdDev)
	assert.Zero(t, out[0].CV)
}

func TestGrowth(t *testing.T) {
	jan23 := panel.NewPeriod(2023, time.January)
	jan24 := jan23.Add(12)
	feb24 := jan24.Add(1)

	summaries := []Summary{
		{Period: jan23, Mean: 2000},
		{Period: jan24, Mean: 2100},
		{Period: feb24, Mean: 2200},
	}

	rows := Growth(summaries)
	require.Len(t, rows, 3)

	assert.Nil(t, rows[0].YoY)
	require.NotNil(t, rows[1].YoY)
	assert.InDelta(t, 0.05, *rows[1].YoY, 1e-12)
	// February 2024 has no February 2023 counterpart.
	assert.Nil(t, rows[2].YoY)
}
