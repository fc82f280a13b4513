package growth

import (
	"sort"

	"panelrep/internal/panel"
)

// TurningPoint is a period at which the sign of a growth series changes.
// Zero growth is its own sign bucket: a move from positive to zero is a
// turning point, never silently merged with positive.
type TurningPoint struct {
	Period   panel.Period
	FromSign int
	ToSign   int
}

// TurningPoints scans a growth series for sign changes between consecutive
// non-nil observations.
func TurningPoints(periods []panel.Period, rates []*float64) []TurningPoint {
	var out []TurningPoint
	prevSign := 0
	havePrev := false
	for i, r := range rates {
		if r == nil {
			continue
		}
		s := sign(*r)
		if havePrev && s != prevSign {
			out = append(out, TurningPoint{Period: periods[i], FromSign: prevSign, ToSign: s})
		}
		prevSign = s
		havePrev = true
	}
	return out
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// MatchedEvent pairs a panel turning point with its nearest reference
// turning point. LeadLag is the reference period minus the panel period in
// months: negative when the reference turned first. Unmatched turning
// points from either series are reported with a nil LeadLag rather than
// discarded.
type MatchedEvent struct {
	PanelPeriod     *panel.Period
	ReferencePeriod *panel.Period
	LeadLag         *int
}

// MatchTurningPoints greedily pairs panel turning points with reference
// turning points within maxWindow months. Candidate pairs are taken in
// ascending distance order, ties broken by earlier panel period, then by
// earlier reference period (the tie rule for equidistant reference points
// is an assumption; upstream leaves it unspecified). Each turning point on
// either side is claimed at most once, which avoids the double counting a
// naive all-pairs comparison produces.
func MatchTurningPoints(panelTPs, refTPs []TurningPoint, maxWindow int) []MatchedEvent {
	type candidate struct {
		panelIdx, refIdx int
		dist             int
	}
	var candidates []candidate
	for pi, pt := range panelTPs {
		for ri, rt := range refTPs {
			d := pt.Period.Sub(rt.Period)
			if d < 0 {
				d = -d
			}
			if d <= maxWindow {
				candidates = append(candidates, candidate{panelIdx: pi, refIdx: ri, dist: d})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if panelTPs[a.panelIdx].Period != panelTPs[b.panelIdx].Period {
			return panelTPs[a.panelIdx].Period.Before(panelTPs[b.panelIdx].Period)
		}
		return refTPs[a.refIdx].Period.Before(refTPs[b.refIdx].Period)
	})

	panelMatch := make(map[int]int) // panel idx -> ref idx
	refClaimed := make(map[int]bool)
	for _, c := range candidates {
		if _, ok := panelMatch[c.panelIdx]; ok {
			continue
		}
		if refClaimed[c.refIdx] {
			continue
		}
		panelMatch[c.panelIdx] = c.refIdx
		refClaimed[c.refIdx] = true
	}

	var out []MatchedEvent
	for pi := range panelTPs {
		pp := panelTPs[pi].Period
		event := MatchedEvent{PanelPeriod: &pp}
		if ri, ok := panelMatch[pi]; ok {
			rp := refTPs[ri].Period
			lag := rp.Sub(pp)
			event.ReferencePeriod = &rp
			event.LeadLag = &lag
		}
		out = append(out, event)
	}
	for ri := range refTPs {
		if !refClaimed[ri] {
			rp := refTPs[ri].Period
			out = append(out, MatchedEvent{ReferencePeriod: &rp})
		}
	}
	return out
}
