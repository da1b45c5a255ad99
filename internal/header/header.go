// Package header implements the column model shared by both files being
// compared: name normalization, uniqueness, intersection and the --key
// validation (spec §4.4).
package header

import (
	"fmt"

	"github.com/cmdrvl/rvl/internal/dialect"
	"github.com/cmdrvl/rvl/internal/ident"
	"github.com/cmdrvl/rvl/internal/refusal"
)

// Model is the normalized header for one file plus a byte->index lookup.
type Model struct {
	Label string
	Names [][]byte
	index map[string]int
}

// Build normalizes raw and enforces per-file uniqueness (spec §3/§4.4).
func Build(label string, raw [][]byte) (*Model, *refusal.R) {
	m := &Model{Label: label, index: make(map[string]int, len(raw))}
	for i, f := range raw {
		name := dialect.AsciiTrim(f)
		if len(name) == 0 {
			name = []byte(fmt.Sprintf("__rvl_col_%d", i+1))
		}
		key := string(name)
		if prev, dup := m.index[key]; dup {
			return nil, refusal.New(refusal.EHeaders,
				"rename the duplicate column in "+label+" and rerun",
				"%s: duplicate header column %q at positions %d and %d", label, ident.EncodeHuman(name), prev+1, i+1).
				WithDetail("file=%s column=%s", label, ident.EncodeJSON(name))
		}
		m.index[key] = i
		m.Names = append(m.Names, name)
	}
	return m, nil
}

// IndexOf returns the position of name, or -1 if absent.
func (m *Model) IndexOf(name []byte) int {
	if i, ok := m.index[string(name)]; ok {
		return i
	}
	return -1
}

// Columns is the shared view of both files' headers (spec §4.4).
type Columns struct {
	Common  [][]byte // intersection, excluding the key column if any
	OldOnly [][]byte
	NewOnly [][]byte
	Key     []byte // nil when no --key
}

// Compare computes the intersection/old-only/new-only sets and validates
// an optional --key against both headers.
func Compare(oldModel, newModel *Model, key []byte) (*Columns, *refusal.R) {
	c := &Columns{Key: key}

	for _, name := range oldModel.Names {
		if newModel.IndexOf(name) >= 0 {
			c.Common = append(c.Common, name)
		} else {
			c.OldOnly = append(c.OldOnly, name)
		}
	}
	for _, name := range newModel.Names {
		if oldModel.IndexOf(name) < 0 {
			c.NewOnly = append(c.NewOnly, name)
		}
	}

	if key == nil {
		return c, nil
	}

	if oldModel.IndexOf(key) < 0 || newModel.IndexOf(key) < 0 {
		return nil, refusal.New(refusal.ENoKey,
			"check --key against both files' headers and rerun",
			"key column %s not present in both files", ident.EncodeHuman(key)).
			WithDetail("key=%s", ident.EncodeJSON(key))
	}

	filtered := c.Common[:0:0]
	for _, name := range c.Common {
		if string(name) != string(key) {
			filtered = append(filtered, name)
		}
	}
	c.Common = filtered
	return c, nil
}
