// Package diffengine implements the single streaming diff pass (spec
// §4.7): column-category inference, totals, and the bounded top-K
// contributor heap.
package diffengine

import (
	"container/heap"

	"github.com/cmdrvl/rvl/internal/align"
	"github.com/cmdrvl/rvl/internal/refusal"
	"github.com/cmdrvl/rvl/internal/value"
)

// MaxContributors bounds the top-K heap (spec §4.7).
const MaxContributors = 25

// Contributor is one retained numeric-cell change (spec §3).
type Contributor struct {
	RowID        align.RowID
	Column       []byte
	Old, New     float64
	Delta        float64
	Contribution float64
}

// less implements the heap's internal order: (contribution asc, row_id
// asc, column asc) — the reverse of display order, so the weakest kept
// contributor sits at the root and is the first to be evicted.
func less(a, b Contributor) bool {
	if a.Contribution != b.Contribution {
		return a.Contribution < b.Contribution
	}
	if a.RowID.Less(b.RowID) {
		return true
	}
	if b.RowID.Less(a.RowID) {
		return false
	}
	return columnLess(a.Column, b.Column)
}

func columnLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// topKHeap is a min-heap (by `less`) of bounded capacity.
type topKHeap []Contributor

func (h topKHeap) Len() int            { return len(h) }
func (h topKHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h topKHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *topKHeap) Push(x interface{}) { *h = append(*h, x.(Contributor)) }
func (h *topKHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Result is the accumulated outcome of the diff pass.
type Result struct {
	TotalChange         float64
	MaxAbsDelta         float64
	NumericColumns      int
	NumericCellsChecked int // rows_aligned * NumericColumns
	NumericCellsChanged int // (number,number) pairs with |delta| > tolerance
	Contributors        []Contributor
}

type columnState struct {
	hasNumericPair    bool
	numberSeen        bool
	nonNumericSeen    bool
	firstNonNumericID align.RowID
}

// Run streams aligned rows over the given columns (already excluding the
// key column), classifying each cell pair and accumulating metrics, per
// spec §4.7. oldIdx and newIdx map a common column name to its index in
// each side's row slice.
func Run(label string, rows []align.AlignedRow, columns [][]byte, oldIdx, newIdx map[string]int, tolerance float64) (*Result, *refusal.R) {
	states := make(map[string]*columnState, len(columns))
	for _, c := range columns {
		states[string(c)] = &columnState{}
	}

	h := &topKHeap{}
	heap.Init(h)
	res := &Result{}

	for _, row := range rows {
		for _, col := range columns {
			oi := oldIdx[string(col)]
			ni := newIdx[string(col)]
			ov := value.Classify(row.Old[oi])
			nv := value.Classify(row.New[ni])
			st := states[string(col)]

			switch {
			case ov.Kind == value.Missing && nv.Kind == value.Missing:
				// no-op

			case ov.Kind == value.Number && nv.Kind == value.Number:
				st.numberSeen = true
				st.hasNumericPair = true
				delta := nv.Number - ov.Number
				abs := absf(delta)
				if abs > res.MaxAbsDelta {
					res.MaxAbsDelta = abs
				}
				if abs > tolerance {
					res.TotalChange += abs
					res.NumericCellsChanged++
					cand := Contributor{RowID: row.ID, Column: col, Old: ov.Number, New: nv.Number, Delta: delta, Contribution: abs}
					offerTopK(h, cand)
				}

			case (ov.Kind == value.Number && nv.Kind == value.Missing) || (ov.Kind == value.Missing && nv.Kind == value.Number):
				return nil, refusal.New(refusal.EMissingness,
					"decide whether the missing side is intentional and rerun once reconciled",
					"column %s: aligned cell at row %s is numeric on one side and missing on the other", string(col), row.ID.String()).
					WithDetail("column=%s row=%s", string(col), row.ID.String())

			default:
				if ov.Kind == value.Number || nv.Kind == value.Number {
					st.numberSeen = true
				}
				if (ov.Kind == value.NonNumeric || nv.Kind == value.NonNumeric) && !st.nonNumericSeen {
					st.nonNumericSeen = true
					st.firstNonNumericID = row.ID
				}
			}
		}
	}

	// A column is mixed if it ever saw both a number and a non-numeric
	// token, regardless of which came first in the stream.
	for _, col := range columns {
		st := states[string(col)]
		if st.numberSeen && st.nonNumericSeen {
			return nil, refusal.New(refusal.EMixedTypes,
				"confirm the column is consistently numeric or consistently text and rerun",
				"column %s: mixes numeric and non-numeric values (first at row %s)", string(col), st.firstNonNumericID.String()).
				WithDetail("column=%s row=%s", string(col), st.firstNonNumericID.String())
		}
	}

	numericColumns := 0
	for _, c := range columns {
		if states[string(c)].hasNumericPair {
			numericColumns++
		}
	}
	if numericColumns == 0 {
		return nil, refusal.New(refusal.ENoNumeric,
			"confirm at least one shared column holds numeric values and rerun",
			"%s: no common column has a numeric aligned pair", label).
			WithDetail("file=%s", label)
	}

	res.NumericColumns = numericColumns
	res.NumericCellsChecked = len(rows) * numericColumns
	res.Contributors = append(res.Contributors, (*h)...)
	return res, nil
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func offerTopK(h *topKHeap, cand Contributor) {
	if h.Len() < MaxContributors {
		heap.Push(h, cand)
		return
	}
	if less((*h)[0], cand) {
		(*h)[0] = cand
		heap.Fix(h, 0)
	}
}
