// Package align implements row alignment (spec §4.6): row-order lockstep,
// keyed hash-join, and advisory shuffle detection.
package align

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/cmdrvl/rvl/internal/dialect"
	"github.com/cmdrvl/rvl/internal/ident"
	"github.com/cmdrvl/rvl/internal/refusal"
)

// RowID is the display identifier for an aligned row: either a 1-based
// index (row-order mode) or raw key bytes (key mode).
type RowID struct {
	Index int    // used when Key == nil
	Key   []byte // used when non-nil
}

func (r RowID) String() string {
	if r.Key != nil {
		return ident.EncodeHuman(r.Key)
	}
	return fmt.Sprintf("%d", r.Index)
}

// Less orders RowIDs per spec §4.7: numeric in row-order mode, raw byte
// order in key mode.
func (r RowID) Less(o RowID) bool {
	if r.Key != nil || o.Key != nil {
		return bytes.Compare(r.Key, o.Key) < 0
	}
	return r.Index < o.Index
}

// AlignedRow is one pair of rows ready for C7.
type AlignedRow struct {
	ID  RowID
	Old [][]byte
	New [][]byte
}

// RowOrder lockstep-aligns two already-blank-skipped row sets.
func RowOrder(oldLabel, newLabel string, oldRows, newRows [][][]byte) ([]AlignedRow, *refusal.R) {
	if len(oldRows) != len(newRows) {
		return nil, refusal.New(refusal.ERowcount,
			"confirm both extracts cover the same rows, or pass --key to align by identity",
			"row counts differ: %s has %d, %s has %d", oldLabel, len(oldRows), newLabel, len(newRows)).
			WithDetail("old_rows=%d new_rows=%d", len(oldRows), len(newRows))
	}
	out := make([]AlignedRow, len(oldRows))
	for i := range oldRows {
		out[i] = AlignedRow{ID: RowID{Index: i + 1}, Old: oldRows[i], New: newRows[i]}
	}
	return out, nil
}

// Keyed hash-joins two row sets on the key column, found at oldKeyIdx in
// the old rows and newKeyIdx in the new rows.
func Keyed(oldLabel, newLabel string, oldRows, newRows [][][]byte, oldKeyIdx, newKeyIdx int) ([]AlignedRow, *refusal.R) {
	type entry struct {
		row [][]byte
		pos int
	}
	oldByKey := make(map[string]entry, len(oldRows))
	for i, row := range oldRows {
		k := dialect.AsciiTrim(row[oldKeyIdx])
		if len(k) == 0 {
			return nil, refusal.New(refusal.EKeyEmpty,
				"fill in the key column in "+oldLabel+" or choose a different --key",
				"%s: empty key at data record %d", oldLabel, i+1).
				WithDetail("file=%s record=%d", oldLabel, i+1)
		}
		if _, dup := oldByKey[string(k)]; dup {
			return nil, refusal.New(refusal.EKeyDup,
				"deduplicate the key column in "+oldLabel+" and rerun",
				"%s: duplicate key %s", oldLabel, ident.EncodeHuman(k)).
				WithDetail("file=%s key=%s", oldLabel, ident.EncodeJSON(k))
		}
		oldByKey[string(k)] = entry{row: row, pos: i}
	}

	seen := make(map[string]struct{}, len(newRows))
	var out []AlignedRow
	var onlyNew [][]byte
	for i, row := range newRows {
		k := dialect.AsciiTrim(row[newKeyIdx])
		if len(k) == 0 {
			return nil, refusal.New(refusal.EKeyEmpty,
				"fill in the key column in "+newLabel+" or choose a different --key",
				"%s: empty key at data record %d", newLabel, i+1).
				WithDetail("file=%s record=%d", newLabel, i+1)
		}
		if _, dup := seen[string(k)]; dup {
			return nil, refusal.New(refusal.EKeyDup,
				"deduplicate the key column in "+newLabel+" and rerun",
				"%s: duplicate key %s", newLabel, ident.EncodeHuman(k)).
				WithDetail("file=%s key=%s", newLabel, ident.EncodeJSON(k))
		}
		seen[string(k)] = struct{}{}

		if e, ok := oldByKey[string(k)]; ok {
			out = append(out, AlignedRow{ID: RowID{Key: append([]byte(nil), k...)}, Old: e.row, New: row})
		} else {
			onlyNew = append(onlyNew, k)
		}
	}

	var onlyOld [][]byte
	for k, e := range oldByKey {
		if _, ok := seen[k]; !ok {
			onlyOld = append(onlyOld, e.row[oldKeyIdx])
		}
	}

	if len(onlyOld) > 0 || len(onlyNew) > 0 {
		sample := sampleKeys(append(append([][]byte{}, onlyOld...), onlyNew...), 10)
		return nil, refusal.New(refusal.EKeyMismatch,
			"reconcile the key sets (additions/removals) before diffing, or confirm the right files were passed",
			"key sets differ: %d only in %s, %d only in %s", len(onlyOld), oldLabel, len(onlyNew), newLabel).
			WithDetail("old_only=%d new_only=%d sample=%v", len(onlyOld), len(onlyNew), encodeAll(sample))
	}

	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID.Key, out[j].ID.Key) < 0 })
	return out, nil
}

func sampleKeys(keys [][]byte, n int) [][]byte {
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	if len(keys) > n {
		return keys[:n]
	}
	return keys
}

func encodeAll(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = ident.EncodeJSON(k)
	}
	return out
}

// ShuffleCandidate is a column considered for advisory key discovery.
type ShuffleCandidate struct {
	Column  []byte
	Perfect bool
}

// DiscoverShuffle finds joinable/perfect candidate columns among common
// columns (spec §4.6), for use only when total_change > 0 in row-order mode.
func DiscoverShuffle(common [][]byte, oldRows, newRows [][][]byte, oldIdx, newIdx map[string]int) []ShuffleCandidate {
	var out []ShuffleCandidate
	for _, col := range common {
		oi, ok1 := oldIdx[string(col)]
		ni, ok2 := newIdx[string(col)]
		if !ok1 || !ok2 {
			continue
		}
		oldKeys, ok := uniqueNonEmptyKeys(oldRows, oi)
		if !ok {
			continue
		}
		newKeys, ok := uniqueNonEmptyKeys(newRows, ni)
		if !ok {
			continue
		}
		perfect := sameKeySet(oldKeys, newKeys)
		out = append(out, ShuffleCandidate{Column: col, Perfect: perfect})
	}
	return out
}

func uniqueNonEmptyKeys(rows [][][]byte, idx int) ([]string, bool) {
	seen := make(map[string]struct{}, len(rows))
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		k := dialect.AsciiTrim(row[idx])
		if len(k) == 0 {
			return nil, false
		}
		if _, dup := seen[string(k)]; dup {
			return nil, false
		}
		seen[string(k)] = struct{}{}
		keys = append(keys, string(k))
	}
	return keys, true
}

func sameKeySet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	for _, k := range b {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

// OrderDiffers reports whether the per-file key sequences for col differ
// in order (same set, different arrangement) — the shuffle trigger.
func OrderDiffers(oldRows, newRows [][][]byte, oldIdx, newIdx int) bool {
	if len(oldRows) != len(newRows) {
		return true
	}
	for i := range oldRows {
		ok := string(dialect.AsciiTrim(oldRows[i][oldIdx]))
		nk := string(dialect.AsciiTrim(newRows[i][newIdx]))
		if ok != nk {
			return true
		}
	}
	return false
}
