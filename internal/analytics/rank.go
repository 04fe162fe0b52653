package analytics

import (
	"math"
	"sort"
)

// SelectSpikesAndDrops keeps rows whose absolute change reaches threshold
// percent and returns the n largest increases and the n largest decreases.
// Drops report DeltaPct as a positive magnitude while Delta keeps its sign.
// Unchanged rows only pass a zero threshold and rank last among the spikes.
// Rows with equal deltas keep their input order.
func SelectSpikesAndDrops(rows []DeltaRow, threshold float64, n int) (spikes, drops []DeltaRow) {
	spikes = []DeltaRow{}
	drops = []DeltaRow{}
	if n <= 0 {
		return spikes, drops
	}

	for _, r := range rows {
		if math.Abs(r.DeltaPct) < threshold {
			continue
		}
		switch {
		case r.Delta >= 0:
			spikes = append(spikes, r)
		case r.Delta < 0:
			r.DeltaPct = math.Abs(r.DeltaPct)
			drops = append(drops, r)
		}
	}

	sort.SliceStable(spikes, func(i, j int) bool { return spikes[i].Delta > spikes[j].Delta })
	sort.SliceStable(drops, func(i, j int) bool { return drops[i].Delta < drops[j].Delta })

	if len(spikes) > n {
		spikes = spikes[:n]
	}
	if len(drops) > n {
		drops = drops[:n]
	}
	return spikes, drops
}

// keysOf returns the first key part of each row in order
func keysOf(rows []DeltaRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if len(r.Key) > 0 {
			out = append(out, r.Key[0])
		}
	}
	return out
}

// DetailFor keeps the rows whose first key part is one of selected, ordered by
// the position of that key in selected and then by input order.
func DetailFor(rows []DeltaRow, selected []string) []DeltaRow {
	position := make(map[string]int, len(selected))
	for i, k := range selected {
		if _, ok := position[k]; !ok {
			position[k] = i
		}
	}

	out := []DeltaRow{}
	for _, r := range rows {
		if len(r.Key) == 0 {
			continue
		}
		if _, ok := position[r.Key[0]]; ok {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return position[out[i].Key[0]] < position[out[j].Key[0]]
	})
	return out
}
