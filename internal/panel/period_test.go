package panel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Period
		wantErr bool
	}{
		{"valid", "2024-03", Period{2024, time.March}, false},
		{"valid with space", " 2019-12", Period{2019, time.December}, false},
		{"month out of range", "2024-13", Period{}, true},
		{"missing month", "2024", Period{}, true},
		{"garbage", "x-y", Period{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriodArithmetic(t *testing.T) {
	p := NewPeriod(2024, time.January)

	assert.Equal(t, NewPeriod(2024, time.February), p.Add(1))
	assert.Equal(t, NewPeriod(2023, time.December), p.Add(-1))
	assert.Equal(t, NewPeriod(2025, time.January), p.Add(12))
	assert.Equal(t, 12, NewPeriod(2025, time.January).Sub(p))
	assert.Equal(t, -1, NewPeriod(2023, time.December).Sub(p))
	assert.True(t, p.Before(p.Add(1)))
	assert.True(t, p.Add(1).After(p))
}

func TestPeriodFormatting(t *testing.T) {
	p := NewPeriod(2024, time.March)
	assert.Equal(t, "2024-03", p.String())
	assert.Equal(t, "2024Q1", p.Quarter())
	assert.Equal(t, "2024Q4", NewPeriod(2024, time.October).Quarter())

	var round Period
	require.NoError(t, round.UnmarshalText([]byte("2024-03")))
	assert.Equal(t, p, round)
}

func TestPeriodRange(t *testing.T) {
	start := NewPeriod(2023, time.November)
	end := NewPeriod(2024, time.February)

	got := PeriodRange(start, end)
	require.Len(t, got, 4)
	assert.Equal(t, start, got[0])
	assert.Equal(t, end, got[3])

	assert.Nil(t, PeriodRange(end, start))
}
