// Package verdict implements the decision table that turns diff metrics
// into REAL CHANGE / NO REAL CHANGE / a refusal (spec §4.8).
package verdict

import (
	"sort"

	"github.com/cmdrvl/rvl/internal/diffengine"
	"github.com/cmdrvl/rvl/internal/refusal"
)

// Kind distinguishes the three terminal outcomes.
type Kind int

const (
	NoRealChange Kind = iota
	RealChange
	Refusal
)

// Outcome is the final decision handed to the renderer.
type Outcome struct {
	Kind         Kind
	Refusal      *refusal.R
	TotalChange  float64
	MaxAbsDelta  float64
	Coverage     *float64 // nil when total_change == 0
	Contributors []diffengine.Contributor
}

// Select applies the decision table from spec §4.8. needKey, when non-nil,
// is a pre-built E_NEED_KEY refusal from shuffle detection (row-order mode
// only, evaluated by the caller before calling Select when total_change > 0).
func Select(res *diffengine.Result, threshold float64, needKey *refusal.R) Outcome {
	if res.TotalChange == 0 {
		return Outcome{Kind: NoRealChange, TotalChange: 0, MaxAbsDelta: res.MaxAbsDelta}
	}

	if needKey != nil {
		return Outcome{Kind: Refusal, Refusal: needKey, TotalChange: res.TotalChange, MaxAbsDelta: res.MaxAbsDelta}
	}

	ordered := orderByDisplay(res.Contributors)
	covered := 0.0
	for _, c := range ordered {
		covered += c.Contribution
	}
	coverage := covered / res.TotalChange

	if coverage < threshold {
		r := refusal.New(refusal.EDiffuse,
			"the change is spread across more cells than the top contributors can cover; inspect the files directly or lower --threshold",
			"top %d contributors cover only %.1f%% of total_change (threshold %.1f%%)", len(ordered), coverage*100, threshold*100).
			WithDetail("coverage=%.6f threshold=%.6f contributors=%d", coverage, threshold, len(ordered))
		return Outcome{Kind: Refusal, Refusal: r, TotalChange: res.TotalChange, MaxAbsDelta: res.MaxAbsDelta, Coverage: &coverage}
	}

	prefix := smallestCoveringPrefix(ordered, res.TotalChange, threshold)
	return Outcome{
		Kind:         RealChange,
		TotalChange:  res.TotalChange,
		MaxAbsDelta:  res.MaxAbsDelta,
		Coverage:     &coverage,
		Contributors: prefix,
	}
}

// orderByDisplay sorts by contribution desc, row_id asc, column asc.
func orderByDisplay(cs []diffengine.Contributor) []diffengine.Contributor {
	out := append([]diffengine.Contributor(nil), cs...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Contribution != b.Contribution {
			return a.Contribution > b.Contribution
		}
		if a.RowID.Less(b.RowID) {
			return true
		}
		if b.RowID.Less(a.RowID) {
			return false
		}
		return columnLess(a.Column, b.Column)
	})
	return out
}

func columnLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func smallestCoveringPrefix(ordered []diffengine.Contributor, totalChange, threshold float64) []diffengine.Contributor {
	var cum float64
	for i, c := range ordered {
		cum += c.Contribution
		if cum/totalChange >= threshold {
			return ordered[:i+1]
		}
	}
	return ordered
}
