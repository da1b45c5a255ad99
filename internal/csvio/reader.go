package csvio

import (
	"github.com/cmdrvl/rvl/internal/dialect"
	"github.com/cmdrvl/rvl/internal/refusal"
)

// Table is the fully-read, width-normalized record set for one file
// (spec §4.3): a header row plus data rows, all of uniform width.
type Table struct {
	Label   string
	Dialect dialect.Dialect
	Header  [][]byte
	Rows    [][][]byte
}

// Read runs dialect detection then reads every record of data (already
// BOM-stripped and encoding-guarded by Guard), normalizing row widths
// against the header and skipping fully-blank records (spec §4.2-§4.3).
func Read(label string, data []byte, forcedDelim *byte) (*Table, *refusal.R) {
	det, r := dialect.Detect(label, data, forcedDelim)
	if r != nil {
		return nil, r
	}

	s := dialect.NewScanner(data, det.DataStart, det.Dialect)

	header, _, err := s.ReadRecord()
	if err != nil {
		return nil, parseErrorRefusal(label, err)
	}
	width := len(header)

	t := &Table{Label: label, Dialect: det.Dialect, Header: header}

	for !s.Done() {
		fields, eof, err := s.ReadRecord()
		if err != nil {
			return nil, parseErrorRefusal(label, err)
		}
		if eof {
			break
		}
		if isBlankRecord(fields) {
			continue
		}
		normalized, r := normalizeWidth(label, width, fields)
		if r != nil {
			return nil, r
		}
		t.Rows = append(t.Rows, normalized)
	}

	return t, nil
}

func parseErrorRefusal(label string, err error) *refusal.R {
	return refusal.New(refusal.ECSVParse,
		"check the file for an unterminated quote or stray byte and rerun",
		"%s: %v", label, err).
		WithDetail("file=%s", label)
}

// isBlankRecord reports whether every field is empty after ASCII trim
// (spec §4.3: blank records are skipped rather than counted as data).
func isBlankRecord(fields [][]byte) bool {
	for _, f := range fields {
		if len(dialect.AsciiTrim(f)) != 0 {
			return false
		}
	}
	return true
}

// normalizeWidth pads short rows with empty fields and drops trailing
// extras when they are all empty after trim; a non-empty surplus is a
// hard E_HEADERS refusal (spec §4.3).
func normalizeWidth(label string, width int, fields [][]byte) ([][]byte, *refusal.R) {
	if len(fields) == width {
		return fields, nil
	}
	if len(fields) < width {
		padded := make([][]byte, width)
		copy(padded, fields)
		for i := len(fields); i < width; i++ {
			padded[i] = []byte{}
		}
		return padded, nil
	}
	for _, f := range fields[width:] {
		if len(dialect.AsciiTrim(f)) != 0 {
			return nil, refusal.New(refusal.EHeaders,
				"check "+label+" for a row with more non-empty fields than the header and rerun",
				"%s: record has %d fields, header has %d", label, len(fields), width).
				WithDetail("file=%s got=%d want=%d", label, len(fields), width)
		}
	}
	return fields[:width], nil
}
