package refdata

import (
	"fmt"
	"sort"

	"panelrep/internal/panel"
)

// CES supersector codes used to build national employment series IDs.
var cesSupersectorCodes = map[string]string{
	"Mining and logging":                 "10",
	"Construction":                       "20",
	"Manufacturing":                      "30",
	"Wholesale trade":                    "41",
	"Retail trade":                       "42",
	"Transportation and warehousing":     "43",
	"Utilities":                          "44",
	"Information":                        "50",
	"Financial activities":               "55",
	"Professional and business services": "60",
	"Education and health services":      "65",
	"Leisure and hospitality":            "70",
	"Other services":                     "80",
}

// CESSeriesID builds the seasonally unadjusted all-employees series ID
// for a supersector. Format: CEU + supersector(2) + industry(6) + data
// type 01 (all employees).
func CESSeriesID(supersector string) (string, error) {
	code, ok := cesSupersectorCodes[supersector]
	if !ok {
		return "", fmt.Errorf("no employment series for supersector %q", supersector)
	}
	return fmt.Sprintf("CEU%s00000001", code), nil
}

// CESTotalPrivateSeriesID is the national all-employees total private
// series.
const CESTotalPrivateSeriesID = "CEU0500000001"

// QCEWSeriesID builds a quarterly census employment series ID for a
// state, private ownership, all industries. Format: ENU + area(5) +
// datatype(1) + size(1) + ownership(1) + industry.
func QCEWSeriesID(stateFIPS string) string {
	return fmt.Sprintf("ENU%s000105010", stateFIPS)
}

// QCEWUnitsSeriesID builds the matching establishment-count series for a
// state (data type 2).
func QCEWUnitsSeriesID(stateFIPS string) string {
	return fmt.Sprintf("ENU%s000205010", stateFIPS)
}

// BEDFormationSeriesID is the national establishment births series used
// to benchmark panel formation rates.
const BEDFormationSeriesID = "BDU0000000000000000110001LQ5"

// DefaultSeriesIDs lists the series the engine fetches by default: the
// national total, every supersector employment series, and the
// establishment births series.
func DefaultSeriesIDs() []string {
	ids := []string{CESTotalPrivateSeriesID}
	for name := range cesSupersectorCodes {
		id, err := CESSeriesID(name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids[1:])
	return append(ids, BEDFormationSeriesID)
}

// StateSeriesIDs builds the per-state fetch list: employment and
// establishment counts for each configured state.
func StateSeriesIDs(stateFIPS []string) []string {
	ids := make([]string, 0, 2*len(stateFIPS))
	for _, fips := range stateFIPS {
		ids = append(ids, QCEWSeriesID(fips), QCEWUnitsSeriesID(fips))
	}
	return ids
}

// SupersectorBySeriesID inverts CESSeriesID for response routing.
func SupersectorBySeriesID(seriesID string) (string, bool) {
	if len(seriesID) != 13 || seriesID[:3] != "CEU" {
		return "", false
	}
	code := seriesID[3:5]
	for name, c := range cesSupersectorCodes {
		if c == code {
			return name, true
		}
	}
	return "", false
}

// StateBySeriesID extracts the state FIPS from a QCEW series ID.
func StateBySeriesID(seriesID string) (string, bool) {
	if len(seriesID) < 9 || seriesID[:3] != "ENU" {
		return "", false
	}
	return seriesID[3:5], true
}

// qcewDataType returns the data-type digit of a QCEW series ID:
// '1' for employment levels, '2' for establishment counts.
func qcewDataType(seriesID string) byte {
	if len(seriesID) < 9 {
		return 0
	}
	return seriesID[8]
}

// Reference is everything assembled from one fetch: employment and unit
// margins for the coverage join, plus the establishment-births series the
// panel formation rate is benchmarked against.
type Reference struct {
	Margins   Table
	Formation panel.Series
}

// Assemble routes fetched observations into a Reference.
func Assemble(observations []Observation) Reference {
	return Reference{
		Margins:   AssembleMargins(observations),
		Formation: FormationSeries(observations),
	}
}

// AssembleMargins routes fetched observations into a margin table.
// CES supersector series become national and supersector margins; QCEW
// state series become state margins, with data type 2 filling the
// establishment unit counts. CES carries no establishment counts, so
// national and supersector unit counts stay zero.
func AssembleMargins(observations []Observation) Table {
	table := make(Table)
	for _, obs := range observations {
		switch {
		case obs.SeriesID == CESTotalPrivateSeriesID:
			table.Add(Margin{
				Key:        panel.CellKey{Level: panel.LevelNational, Period: obs.Period},
				Employment: obs.Value * 1000, // CES reports thousands
			})
		default:
			if name, ok := SupersectorBySeriesID(obs.SeriesID); ok {
				table.Add(Margin{
					Key:        panel.CellKey{Level: panel.LevelSupersector, Supersector: name, Period: obs.Period},
					Employment: obs.Value * 1000,
				})
				continue
			}
			if fips, ok := StateBySeriesID(obs.SeriesID); ok {
				key := panel.CellKey{Level: panel.LevelState, StateFIPS: fips, Period: obs.Period}
				m := table[key]
				m.Key = key
				if qcewDataType(obs.SeriesID) == '2' {
					m.Units = obs.Value
				} else {
					m.Employment = obs.Value
				}
				table[key] = m
			}
		}
	}
	return table
}

// FormationSeries extracts the reference establishment-births series from
// fetched observations. Empty when the births series was not fetched.
func FormationSeries(observations []Observation) panel.Series {
	byPeriod := make(map[panel.Period]float64)
	for _, obs := range observations {
		if obs.SeriesID == BEDFormationSeriesID {
			byPeriod[obs.Period] = obs.Value
		}
	}
	return panel.NewSeries(byPeriod)
}
