// Package render implements the human receipt and JSON object (spec
// §4.9): fixed header block, deterministic number formatting, and
// identifier encoding.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cmdrvl/rvl/internal/dialect"
	"github.com/cmdrvl/rvl/internal/diffengine"
	"github.com/cmdrvl/rvl/internal/ident"
	"github.com/cmdrvl/rvl/internal/refusal"
	"github.com/cmdrvl/rvl/internal/verdict"
)

// Settings is the resolved CLI configuration echoed in the header block,
// plus the pipeline counts accumulated as each stage succeeds. Count
// pointers are nil until their stage runs, so a refusal that short-circuits
// early naturally leaves the counts it never computed as JSON null rather
// than a misleading zero (spec §6: "numeric fields may be null on refusal
// when not computed").
type Settings struct {
	OldPath     string
	NewPath     string
	Key         []byte // nil when row-order mode
	Threshold   float64
	Tolerance   float64
	OldDialect  dialect.Dialect
	NewDialect  dialect.Dialect
	ColumnsUsed [][]byte // common columns actually diffed
	OldOnly     [][]byte
	NewOnly     [][]byte

	RowsOld             *int
	RowsNew             *int
	RowsAligned         *int
	ColumnsOld          *int
	ColumnsNew          *int
	ColumnsCommon       *int
	ColumnsOldOnly      *int
	ColumnsNewOnly      *int
	NumericColumns      *int
	NumericCellsChecked *int
	NumericCellsChanged *int
}

func alignmentLabel(s Settings) string {
	if s.Key != nil {
		return "key=" + ident.EncodeHuman(s.Key)
	}
	return "row-order"
}

func dialectLabel(d dialect.Dialect) string {
	return fmt.Sprintf("delimiter=%s quote=%q escape=%s", delimLabel(d.Delimiter), dialect.Quote, escapeLabel(d.Escape))
}

func delimLabel(b byte) string {
	switch {
	case b == '\t':
		return "TAB"
	case b >= 0x21 && b <= 0x7E:
		return string(b)
	default:
		return fmt.Sprintf("0x%02X", b)
	}
}

func escapeLabel(e dialect.Escape) string {
	if e == dialect.EscapeBackslash {
		return `\\`
	}
	return "none"
}

// Human writes the fixed header block plus body for outcome to w.
func Human(w io.Writer, s Settings, o verdict.Outcome) {
	fmt.Fprintf(w, "Compared: %s -> %s\n", s.OldPath, s.NewPath)
	fmt.Fprintf(w, "Alignment: %s\n", alignmentLabel(s))
	fmt.Fprintf(w, "Columns: %d common, %d old-only, %d new-only\n", len(s.ColumnsUsed), len(s.OldOnly), len(s.NewOnly))
	fmt.Fprintf(w, "Checked: %s\n", strings.Join(humanNames(s.ColumnsUsed), ", "))
	fmt.Fprintf(w, "Dialect(old): %s\n", dialectLabel(s.OldDialect))
	fmt.Fprintf(w, "Dialect(new): %s\n", dialectLabel(s.NewDialect))
	fmt.Fprintf(w, "Ranking: top %d by contribution\n", diffengine.MaxContributors)
	fmt.Fprintf(w, "Settings: threshold=%s tolerance=%s\n", formatFloat(s.Threshold), formatFloat(s.Tolerance))
	fmt.Fprintln(w)

	switch o.Kind {
	case verdict.NoRealChange:
		fmt.Fprintln(w, "NO REAL CHANGE")
		fmt.Fprintf(w, "max_abs_delta: %s\n", formatFloat(o.MaxAbsDelta))

	case verdict.RealChange:
		fmt.Fprintln(w, "REAL CHANGE")
		fmt.Fprintf(w, "total_change: %s\n", formatCommaFloat(o.TotalChange))
		fmt.Fprintf(w, "max_abs_delta: %s\n", formatFloat(o.MaxAbsDelta))
		if o.Coverage != nil {
			fmt.Fprintf(w, "coverage: %s\n", formatPercent(*o.Coverage))
		}
		fmt.Fprintln(w, "contributors:")
		for _, c := range orderedForDisplay(o.Contributors) {
			fmt.Fprintf(w, "  %s.%s: %s -> %s (delta %s, contribution %s)\n",
				c.RowID.String(), ident.EncodeHuman(c.Column),
				formatCommaFloat(c.Old), formatCommaFloat(c.New),
				formatSigned(c.Delta), formatCommaFloat(c.Contribution))
		}

	case verdict.Refusal:
		fmt.Fprintln(w, "REFUSAL", o.Refusal.Code)
		fmt.Fprintln(w, o.Refusal.Message)
		if o.Refusal.Detail != "" {
			fmt.Fprintln(w, "Detail:", o.Refusal.Detail)
		}
		fmt.Fprintln(w, "Next:", o.Refusal.Next)
	}
}

func humanNames(names [][]byte) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = ident.EncodeHuman(n)
	}
	return out
}

func orderedForDisplay(cs []diffengine.Contributor) []diffengine.Contributor {
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
		return string(a.Column) < string(b.Column)
	})
	return out
}

// formatFloat renders the shortest round-trip decimal (spec §4.9).
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatSigned(f float64) string {
	s := formatCommaFloat(f)
	if f >= 0 && !strings.HasPrefix(s, "+") {
		return "+" + s
	}
	return s
}

func formatPercent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

// formatCommaFloat renders f with the shortest round-trip mantissa but
// ',' thousands separators on the integer part (spec §4.9).
func formatCommaFloat(f float64) string {
	s := formatFloat(f)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexAny(s, ".eE"); i >= 0 {
		intPart = s[:i]
		fracPart = s[i:]
	}
	grouped := groupThousands(intPart)
	out := grouped + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// jsonDoc is the rvl.v0 JSON schema (spec §6), field-for-field.
type jsonDoc struct {
	Version      string            `json:"version"`
	Outcome      string            `json:"outcome"`
	Files        jsonFiles         `json:"files"`
	Alignment    jsonAlignment     `json:"alignment"`
	Dialect      jsonDialectPair   `json:"dialect"`
	Threshold    float64           `json:"threshold"`
	Tolerance    float64           `json:"tolerance"`
	Counts       jsonCounts        `json:"counts"`
	Metrics      *jsonMetrics      `json:"metrics"`
	Limits       jsonLimits        `json:"limits"`
	Contributors []jsonContributor `json:"contributors"`
	Refusal      *jsonRefusal      `json:"refusal"`
}

type jsonFiles struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type jsonAlignment struct {
	Mode      string  `json:"mode"`
	KeyColumn *string `json:"key_column"`
}

type jsonDialectPair struct {
	Old jsonDialect `json:"old"`
	New jsonDialect `json:"new"`
}

type jsonDialect struct {
	Delimiter string `json:"delimiter"`
	Quote     string `json:"quote"`
	Escape    string `json:"escape"`
}

// jsonCounts mirrors spec §6's counts object. Fields stay nil (JSON null)
// until the stage that produces them succeeds, so a refusal that never
// reaches that stage reports null rather than a misleading zero.
type jsonCounts struct {
	RowsOld             *int `json:"rows_old"`
	RowsNew             *int `json:"rows_new"`
	RowsAligned         *int `json:"rows_aligned"`
	ColumnsOld          *int `json:"columns_old"`
	ColumnsNew          *int `json:"columns_new"`
	ColumnsCommon       *int `json:"columns_common"`
	ColumnsOldOnly      *int `json:"columns_old_only"`
	ColumnsNewOnly      *int `json:"columns_new_only"`
	NumericColumns      *int `json:"numeric_columns"`
	NumericCellsChecked *int `json:"numeric_cells_checked"`
	NumericCellsChanged *int `json:"numeric_cells_changed"`
}

type jsonMetrics struct {
	TotalChange  float64  `json:"total_change"`
	MaxAbsDelta  float64  `json:"max_abs_delta"`
	TopKCoverage *float64 `json:"top_k_coverage"`
}

type jsonLimits struct {
	MaxContributors int `json:"max_contributors"`
}

type jsonContributor struct {
	RowID           string  `json:"row_id"`
	Column          string  `json:"column"`
	Old             float64 `json:"old"`
	New             float64 `json:"new"`
	Delta           float64 `json:"delta"`
	Contribution    float64 `json:"contribution"`
	Share           float64 `json:"share"`
	CumulativeShare float64 `json:"cumulative_share"`
}

type jsonRefusal struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Next    string `json:"next"`
}

// toJSONDialect renders delimiter/quote as the single-character strings
// spec §6 requires (e.g. tab -> "\t", backslash escape -> "\\"), not the
// "0xNN" form the human receipt uses for non-printable bytes.
func toJSONDialect(d dialect.Dialect) jsonDialect {
	return jsonDialect{
		Delimiter: string(rune(d.Delimiter)),
		Quote:     string(rune(dialect.Quote)),
		Escape:    d.Escape.String(),
	}
}

func alignmentMode(s Settings) string {
	if s.Key != nil {
		return "key"
	}
	return "row-order"
}

func jsonKeyColumn(s Settings) *string {
	if s.Key == nil {
		return nil
	}
	k := ident.EncodeJSON(s.Key)
	return &k
}

// buildCounts assembles the counts object from whatever Settings has
// accumulated so far. suppressNumeric forces the three numeric_* fields
// to null even if computed, per spec §6's rule that they (like metrics.*)
// must be null for E_NEED_KEY.
func buildCounts(s Settings, suppressNumeric bool) jsonCounts {
	c := jsonCounts{
		RowsOld:             s.RowsOld,
		RowsNew:             s.RowsNew,
		RowsAligned:         s.RowsAligned,
		ColumnsOld:          s.ColumnsOld,
		ColumnsNew:          s.ColumnsNew,
		ColumnsCommon:       s.ColumnsCommon,
		ColumnsOldOnly:      s.ColumnsOldOnly,
		ColumnsNewOnly:      s.ColumnsNewOnly,
		NumericColumns:      s.NumericColumns,
		NumericCellsChecked: s.NumericCellsChecked,
		NumericCellsChanged: s.NumericCellsChanged,
	}
	if suppressNumeric {
		c.NumericColumns, c.NumericCellsChecked, c.NumericCellsChanged = nil, nil, nil
	}
	return c
}

// JSON writes the single-object rvl.v0 JSON document to w.
func JSON(w io.Writer, s Settings, o verdict.Outcome) error {
	needKey := o.Kind == verdict.Refusal && o.Refusal != nil && o.Refusal.Code == refusal.ENeedKey

	doc := jsonDoc{
		Version:      "rvl.v0",
		Files:        jsonFiles{Old: s.OldPath, New: s.NewPath},
		Alignment:    jsonAlignment{Mode: alignmentMode(s), KeyColumn: jsonKeyColumn(s)},
		Dialect:      jsonDialectPair{Old: toJSONDialect(s.OldDialect), New: toJSONDialect(s.NewDialect)},
		Threshold:    s.Threshold,
		Tolerance:    s.Tolerance,
		Counts:       buildCounts(s, needKey),
		Limits:       jsonLimits{MaxContributors: diffengine.MaxContributors},
		Contributors: []jsonContributor{},
	}

	switch o.Kind {
	case verdict.NoRealChange:
		doc.Outcome = "NO_REAL_CHANGE"
		doc.Metrics = &jsonMetrics{TotalChange: 0, MaxAbsDelta: o.MaxAbsDelta}

	case verdict.RealChange:
		doc.Outcome = "REAL_CHANGE"
		doc.Metrics = &jsonMetrics{TotalChange: o.TotalChange, MaxAbsDelta: o.MaxAbsDelta, TopKCoverage: o.Coverage}
		var cumulative float64
		for _, c := range orderedForDisplay(o.Contributors) {
			share := c.Contribution / o.TotalChange
			cumulative += share
			doc.Contributors = append(doc.Contributors, jsonContributor{
				RowID:           c.RowID.String(),
				Column:          ident.EncodeJSON(c.Column),
				Old:             c.Old,
				New:             c.New,
				Delta:           c.Delta,
				Contribution:    c.Contribution,
				Share:           share,
				CumulativeShare: cumulative,
			})
		}

	case verdict.Refusal:
		doc.Outcome = "REFUSAL"
		doc.Refusal = refusalToJSON(o.Refusal)
		if o.Refusal.Code == refusal.EDiffuse {
			doc.Metrics = &jsonMetrics{TotalChange: o.TotalChange, MaxAbsDelta: o.MaxAbsDelta, TopKCoverage: o.Coverage}
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func refusalToJSON(r *refusal.R) *jsonRefusal {
	return &jsonRefusal{Code: string(r.Code), Message: r.Message, Detail: r.Detail, Next: r.Next}
}
