// Package rvl wires the ten-component pipeline from two raw byte streams
// to one verdict. It is the orchestration layer Run() shared by the CLI.
package rvl

import (
	"context"

	"github.com/cmdrvl/rvl/internal/align"
	"github.com/cmdrvl/rvl/internal/csvio"
	"github.com/cmdrvl/rvl/internal/diffengine"
	"github.com/cmdrvl/rvl/internal/header"
	"github.com/cmdrvl/rvl/internal/ident"
	"github.com/cmdrvl/rvl/internal/refusal"
	"github.com/cmdrvl/rvl/internal/render"
	"github.com/cmdrvl/rvl/internal/verdict"
)

// Options configures one comparison run.
type Options struct {
	Key       []byte // nil for row-order mode
	Threshold float64
	Tolerance float64
	Delimiter *byte // nil to auto-detect, shared across both files
}

// Outcome is the rendered decision plus the settings used to produce it,
// ready for render.Human or render.JSON.
type Outcome struct {
	Settings render.Settings
	Verdict  verdict.Outcome
}

// Run executes C1 through C9 over oldData/newData, short-circuiting into a
// refusal outcome at the first failing stage.
func Run(ctx context.Context, oldPath, newPath string, oldData, newData []byte, opts Options) Outcome {
	settings := render.Settings{
		OldPath:   oldPath,
		NewPath:   newPath,
		Key:       opts.Key,
		Threshold: opts.Threshold,
		Tolerance: opts.Tolerance,
	}

	refuse := func(r *refusal.R) Outcome {
		return Outcome{Settings: settings, Verdict: verdict.Outcome{Kind: verdict.Refusal, Refusal: r}}
	}

	oldBytes, r := csvio.Guard("old", oldData)
	if r != nil {
		return refuse(r)
	}
	newBytes, r := csvio.Guard("new", newData)
	if r != nil {
		return refuse(r)
	}

	oldTable, r := csvio.Read("old", oldBytes, opts.Delimiter)
	if r != nil {
		return refuse(r)
	}
	newTable, r := csvio.Read("new", newBytes, opts.Delimiter)
	if r != nil {
		return refuse(r)
	}
	settings.OldDialect = oldTable.Dialect
	settings.NewDialect = newTable.Dialect
	settings.RowsOld = intp(len(oldTable.Rows))
	settings.RowsNew = intp(len(newTable.Rows))

	oldHeader, r := header.Build("old", oldTable.Header)
	if r != nil {
		return refuse(r)
	}
	newHeader, r := header.Build("new", newTable.Header)
	if r != nil {
		return refuse(r)
	}
	settings.ColumnsOld = intp(len(oldHeader.Names))
	settings.ColumnsNew = intp(len(newHeader.Names))

	cols, r := header.Compare(oldHeader, newHeader, opts.Key)
	if r != nil {
		return refuse(r)
	}
	settings.ColumnsUsed = cols.Common
	settings.OldOnly = cols.OldOnly
	settings.NewOnly = cols.NewOnly
	settings.ColumnsCommon = intp(len(cols.Common))
	settings.ColumnsOldOnly = intp(len(cols.OldOnly))
	settings.ColumnsNewOnly = intp(len(cols.NewOnly))

	oldIdx := indexMap(oldHeader, cols.Common)
	newIdx := indexMap(newHeader, cols.Common)

	var rows []align.AlignedRow
	var needKey *refusal.R

	if opts.Key == nil {
		rows, r = align.RowOrder("old", "new", oldTable.Rows, newTable.Rows)
		if r != nil {
			return refuse(r)
		}
	} else {
		oldKeyIdx := oldHeader.IndexOf(opts.Key)
		newKeyIdx := newHeader.IndexOf(opts.Key)
		rows, r = align.Keyed("old", "new", oldTable.Rows, newTable.Rows, oldKeyIdx, newKeyIdx)
		if r != nil {
			return refuse(r)
		}
	}

	settings.RowsAligned = intp(len(rows))

	res, r := diffengine.Run("old/new", rows, cols.Common, oldIdx, newIdx, opts.Tolerance)
	if r != nil {
		return refuse(r)
	}
	settings.NumericColumns = intp(res.NumericColumns)
	settings.NumericCellsChecked = intp(res.NumericCellsChecked)
	settings.NumericCellsChanged = intp(res.NumericCellsChanged)

	if opts.Key == nil && res.TotalChange > 0 {
		needKey = detectShuffle(cols.Common, oldTable.Rows, newTable.Rows, oldIdx, newIdx)
	}

	v := verdict.Select(res, opts.Threshold, needKey)
	return Outcome{Settings: settings, Verdict: v}
}

func indexMap(m *header.Model, names [][]byte) map[string]int {
	out := make(map[string]int, len(names))
	for _, n := range names {
		out[string(n)] = m.IndexOf(n)
	}
	return out
}

func intp(n int) *int { return &n }

// detectShuffle runs the advisory key-discovery pass (spec §4.6) and
// returns an E_NEED_KEY refusal when a perfect candidate exists whose
// per-file order differs.
func detectShuffle(common [][]byte, oldRows, newRows [][][]byte, oldIdx, newIdx map[string]int) *refusal.R {
	candidates := align.DiscoverShuffle(common, oldRows, newRows, oldIdx, newIdx)

	var perfect []align.ShuffleCandidate
	var joinable []align.ShuffleCandidate
	for _, c := range candidates {
		if c.Perfect {
			perfect = append(perfect, c)
		} else {
			joinable = append(joinable, c)
		}
	}

	for _, c := range perfect {
		oi, ni := oldIdx[string(c.Column)], newIdx[string(c.Column)]
		if align.OrderDiffers(oldRows, newRows, oi, ni) {
			return buildNeedKey(perfect, joinable)
		}
	}
	return nil
}

func buildNeedKey(perfect, joinable []align.ShuffleCandidate) *refusal.R {
	var names []string
	for _, c := range perfect {
		names = append(names, ident.EncodeHuman(c.Column))
	}
	for _, c := range joinable {
		names = append(names, ident.EncodeHuman(c.Column))
	}
	if len(names) > 3 {
		names = names[:3]
	}
	suggestion := names[0]
	return refusal.New(refusal.ENeedKey,
		"rerun with --key "+suggestion,
		"rows appear reordered between files; candidate key columns: %v", names).
		WithDetail("candidates=%v", names)
}
