package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jorgeLDmesa/pandas-ai-api/internal/dataset"
)

// Group is one aggregated bucket. With no group_by there is a single
// group labelled "Total".
type Group struct {
	Label string
	Value float64
	Count int
}

// Outcome is the computed result of a Plan.
type Outcome struct {
	// Groups is empty when nothing matched.
	Groups []Group
	// Grouped is false when the plan asked for a single total.
	Grouped bool
	// Answer is set for plans that needed no computation.
	Answer string
}

// Execute runs a plan against the dataset. Column names are matched
// case-insensitively.
func Execute(p *Plan, ds *dataset.Dataset) (*Outcome, error) {
	if p.Aggregation == AggNone {
		return &Outcome{Answer: p.Answer}, nil
	}

	rows, err := filterRows(p.Filters, ds)
	if err != nil {
		return nil, err
	}

	measure := -1
	if p.Aggregation != AggCount {
		col, ok := ds.Column(p.Measure)
		if !ok {
			return nil, fmt.Errorf("unknown measure column %q", p.Measure)
		}
		if !ds.IsNumeric(col) {
			return nil, fmt.Errorf("column %q is not numeric", ds.Headers[col])
		}
		measure = col
	}

	out := &Outcome{}
	var buckets []bucket
	if strings.TrimSpace(p.GroupBy) == "" {
		buckets = []bucket{{label: "Total", rows: rows}}
	} else {
		col, ok := ds.Column(p.GroupBy)
		if !ok {
			return nil, fmt.Errorf("unknown group_by column %q", p.GroupBy)
		}
		buckets = groupRows(rows, col, ds)
		out.Grouped = true
	}

	for _, b := range buckets {
		g := aggregate(b, measure, p.Aggregation, ds)
		if math.IsInf(g.Value, 0) || math.IsNaN(g.Value) {
			return nil, fmt.Errorf("%s of %q for %q is out of range", p.Aggregation, p.Measure, g.Label)
		}
		out.Groups = append(out.Groups, g)
	}

	// A total with no values has no average, minimum or maximum.
	if !out.Grouped && out.Groups[0].Count == 0 && p.Aggregation != AggCount && p.Aggregation != AggSum {
		out.Groups = nil
	}

	sortGroups(out.Groups, p.Sort)
	if p.Limit > 0 && len(out.Groups) > p.Limit {
		out.Groups = out.Groups[:p.Limit]
	}
	return out, nil
}

type bucket struct {
	label string
	rows  []int
}

func filterRows(filters []Filter, ds *dataset.Dataset) ([]int, error) {
	type resolved struct {
		col    int
		values map[string]bool
	}
	var active []resolved
	for _, f := range filters {
		if len(f.Values) == 0 {
			continue
		}
		col, ok := ds.Column(f.Column)
		if !ok {
			return nil, fmt.Errorf("unknown filter column %q", f.Column)
		}
		values := make(map[string]bool, len(f.Values))
		for _, v := range f.Values {
			values[strings.ToLower(strings.TrimSpace(v))] = true
		}
		active = append(active, resolved{col: col, values: values})
	}

	rows := make([]int, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		keep := true
		for _, f := range active {
			if !f.values[strings.ToLower(ds.Value(i, f.col))] {
				keep = false
				break
			}
		}
		if keep {
			rows = append(rows, i)
		}
	}
	return rows, nil
}

// groupRows keeps groups in first-seen order.
func groupRows(rows []int, col int, ds *dataset.Dataset) []bucket {
	index := make(map[string]int)
	var buckets []bucket
	for _, r := range rows {
		key := ds.Value(r, col)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, bucket{label: key})
		}
		buckets[i].rows = append(buckets[i].rows, r)
	}
	return buckets
}

func aggregate(b bucket, measure int, aggregation string, ds *dataset.Dataset) Group {
	g := Group{Label: b.label}
	if aggregation == AggCount {
		g.Count = len(b.rows)
		g.Value = float64(g.Count)
		return g
	}

	sum := 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range b.rows {
		v, ok := ds.Float(r, measure)
		if !ok {
			continue
		}
		g.Count++
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if g.Count == 0 {
		return g
	}

	switch aggregation {
	case AggSum:
		g.Value = sum
	case AggAvg:
		g.Value = sum / float64(g.Count)
	case AggMin:
		g.Value = lo
	case AggMax:
		g.Value = hi
	}
	return g
}

func sortGroups(groups []Group, by string) {
	switch by {
	case SortValueDesc:
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Value > groups[j].Value })
	case SortValueAsc:
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Value < groups[j].Value })
	case SortLabelAsc:
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Label < groups[j].Label })
	}
}
