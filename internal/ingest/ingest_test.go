package ingest

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "panelrep/internal/errors"
	"panelrep/internal/panel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFromRowsBasic(t *testing.T) {
	rows := [][]string{
		{"client_id", "period", "naics", "state_fips", "employment"},
		{"c1", "2024-01", "722511", "06", "12"},
		{"c1", "2024-02", "722511", "06", "14"},
		{"c2", "2024-01", "236115", "48", "250"},
	}

	res, err := FromRows(rows, testLogger())
	require.NoError(t, err)
	require.Len(t, res.Records, 3)

	r := res.Records[0]
	assert.Equal(t, "c1", r.ClientID)
	assert.Equal(t, panel.NewPeriod(2024, time.January), r.Period)
	assert.Equal(t, "Leisure and hospitality", r.Supersector)
	assert.Equal(t, "10-19", r.SizeClass)
	assert.Equal(t, int64(12), r.Employment)

	assert.Equal(t, "Construction", res.Records[2].Supersector)
	assert.Equal(t, "100-499", res.Records[2].SizeClass)

	assert.False(t, res.Capabilities.HasPay)
	assert.False(t, res.Capabilities.HasWorkerIDs)
}

func TestFromRowsAliasedHeader(t *testing.T) {
	rows := [][]string{
		{"Company_ID", "Month", "NAICS_Code", "State", "Headcount", "Wages"},
		{"c1", "2024-03", "52", "36", "40", "200000"},
	}

	res, err := FromRows(rows, testLogger())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Financial activities", res.Records[0].Supersector)
	assert.True(t, res.Capabilities.HasPay)
	assert.InDelta(t, 200000, res.Records[0].GrossPay, 1e-9)
}

func TestFromRowsMissingColumns(t *testing.T) {
	rows := [][]string{
		{"client_id", "period", "naics"},
		{"c1", "2024-01", "52"},
	}

	_, err := FromRows(rows, testLogger())
	var schemaErr *apperrors.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.ElementsMatch(t, []string{"state_fips", "employment"}, schemaErr.Missing)
	assert.False(t, apperrors.IsRecoverable(err))
}

func TestFromRowsDuplicatesFailValidation(t *testing.T) {
	rows := [][]string{
		{"client_id", "period", "naics", "state_fips", "employment"},
		{"c1", "2024-01", "52", "36", "10"},
		{"c1", "2024-01", "52", "36", "99"},
		{"c2", "2024-01", "52", "36", "7"},
	}

	_, err := FromRows(rows, testLogger())
	var dupErr *apperrors.DuplicateRecordError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, []string{"c1|2024-01"}, dupErr.Keys)
	assert.False(t, apperrors.IsRecoverable(err))
}

func TestFromRowsSkipsBadRows(t *testing.T) {
	rows := [][]string{
		{"client_id", "period", "naics", "state_fips", "employment"},
		{"c1", "not-a-period", "52", "36", "10"},
		{"c2", "2024-01", "52", "36", "abc"},
		{"c3", "2024-01", "52", "36", "10"},
	}

	res, err := FromRows(rows, testLogger())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "c3", res.Records[0].ClientID)
}

func TestFromRowsEntryExitDerived(t *testing.T) {
	rows := [][]string{
		{"client_id", "period", "naics", "state_fips", "employment"},
		{"gone", "2024-01", "52", "36", "10"},
		{"gone", "2024-02", "52", "36", "10"},
		{"stays", "2024-01", "52", "36", "5"},
		{"stays", "2024-04", "52", "36", "5"},
	}

	res, err := FromRows(rows, testLogger())
	require.NoError(t, err)

	byID := make(map[string]panel.Record)
	for _, r := range res.Records {
		byID[r.ClientID] = r
	}
	require.NotNil(t, byID["gone"].ExitPeriod)
	assert.Equal(t, panel.NewPeriod(2024, time.February), *byID["gone"].ExitPeriod)
	// Active through the panel end: no exit.
	assert.Nil(t, byID["stays"].ExitPeriod)
}

func TestFromRowsFormationAndWorkers(t *testing.T) {
	rows := [][]string{
		{"client_id", "period", "naics", "state_fips", "employment", "formation", "worker_ids"},
		{"c1", "2024-01", "52", "36", "2", "true", "w1;w2"},
		{"c2", "2024-01", "52", "36", "2", "", "w3"},
	}

	res, err := FromRows(rows, testLogger())
	require.NoError(t, err)
	assert.True(t, res.Capabilities.HasFormation)
	assert.True(t, res.Capabilities.HasWorkerIDs)
	assert.Equal(t, panel.FormationTrue, res.Records[0].Formation)
	assert.Equal(t, []string{"w1", "w2"}, res.Records[0].WorkerIDs)
	assert.Equal(t, panel.FormationUnknown, res.Records[1].Formation)
}

func TestLoadCSVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.csv")
	content := "client_id,period,naics,state_fips,employment\nc1,2024-01,722511,06,12\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	res, err := Load(path, testLogger())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "c1", res.Records[0].ClientID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"), testLogger())
	assert.Error(t, err)
}

func TestNormalizeFIPS(t *testing.T) {
	assert.Equal(t, "06", normalizeFIPS("6"))
	assert.Equal(t, "36", normalizeFIPS("36"))
	assert.Equal(t, "", normalizeFIPS(""))
}
