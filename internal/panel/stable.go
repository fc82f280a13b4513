package panel

// FilterStable returns the subset of records belonging to clients observed
// for at least minTenureMonths, measured first active month to last active
// month. The stable panel isolates employment dynamics from entry and exit
// contamination.
func FilterStable(records []Record, minTenureMonths int) []Record {
	first := make(map[string]Period)
	last := make(map[string]Period)
	for i := range records {
		r := &records[i]
		if f, ok := first[r.ClientID]; !ok || r.Period.Before(f) {
			first[r.ClientID] = r.Period
		}
		if l, ok := last[r.ClientID]; !ok || r.Period.After(l) {
			last[r.ClientID] = r.Period
		}
	}
	keep := make(map[string]bool, len(first))
	for id, f := range first {
		if last[id].Sub(f) >= minTenureMonths {
			keep[id] = true
		}
	}
	out := make([]Record, 0, len(records))
	for i := range records {
		if keep[records[i].ClientID] {
			out = append(out, records[i])
		}
	}
	return out
}
