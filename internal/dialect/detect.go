package dialect

import (
	"bytes"

	"github.com/cmdrvl/rvl/internal/refusal"
)

const (
	sampleMaxRecords = 200 // data records past the header, spec §4.2
	sampleMaxBytes   = 64 << 10
)

// AsciiTrim strips 0x20/0x09 from both ends, the spec-wide trim rule.
func AsciiTrim(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\t') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}

func isBlankLine(line []byte) bool {
	for _, c := range line {
		if c != ' ' && c != '\t' {
			return false
		}
	}
	return true
}

// nextLine returns the line starting at offset (without its terminator)
// and the offset immediately after the terminator (or len(data) at EOF).
func nextLine(data []byte, offset int) (line []byte, next int) {
	rest := data[offset:]
	i := bytes.IndexByte(rest, '\n')
	if i < 0 {
		return rest, len(data)
	}
	line = rest[:i]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return line, offset + i + 1
}

// SkipPreamble skips leading ASCII-space/tab-only lines, returning the
// offset of the first line with real content.
func SkipPreamble(data []byte) int {
	offset := 0
	for offset < len(data) {
		line, next := nextLine(data, offset)
		if !isBlankLine(line) {
			return offset
		}
		offset = next
	}
	return offset
}

// isLegalDelimiter reports whether b may be used as a delimiter byte
// (spec §3: ASCII 0x01..0x7F, excluding quote and CR/LF).
func isLegalDelimiter(b byte) bool {
	return b >= 0x01 && b <= 0x7F && b != '"' && b != '\r' && b != '\n'
}

// ParseSepDirective recognizes a leading "sep=<byte>" line (spec §4.2).
// offset must already point past any blank preamble. It returns the
// forced delimiter, ok, and the offset immediately after the consumed
// line (equal to offset when no directive was found).
func ParseSepDirective(data []byte, offset int) (delim byte, ok bool, next int) {
	line, after := nextLine(data, offset)
	const prefix = "sep="
	if len(line) != len(prefix)+1 || string(line[:len(prefix)]) != prefix {
		return 0, false, offset
	}
	b := line[len(prefix)]
	if !isLegalDelimiter(b) {
		return 0, false, offset
	}
	return b, true, after
}

// Score is the lexicographic tuple from spec §4.2.
type Score struct {
	RecordsParsed int
	ModeCount     int
	ModeFields    int
}

// Less reports whether a scores strictly worse than b.
func (a Score) Less(b Score) bool {
	if a.RecordsParsed != b.RecordsParsed {
		return a.RecordsParsed < b.RecordsParsed
	}
	if a.ModeCount != b.ModeCount {
		return a.ModeCount < b.ModeCount
	}
	return a.ModeFields < b.ModeFields
}

func normalizedWidth(headerWidth, raw int, fields [][]byte) int {
	if raw <= headerWidth {
		return headerWidth
	}
	for _, f := range fields[headerWidth:] {
		if len(AsciiTrim(f)) != 0 {
			return raw
		}
	}
	return headerWidth
}

// sampleResult holds the records parsed while scoring, for tie-break comparison.
type sampleResult struct {
	score   Score
	records [][][]byte
	hardErr bool
}

func runSample(data []byte, offset int, d Dialect) sampleResult {
	s := NewScanner(data, offset, d)
	var records [][][]byte
	widthHist := map[int]int{}
	headerWidth := -1
	dataRecords := 0
	start := offset

	for {
		if dataRecords >= sampleMaxRecords {
			break
		}
		if s.Pos()-start > sampleMaxBytes {
			break
		}
		if s.Done() {
			break
		}
		fields, eof, err := s.ReadRecord()
		if err != nil {
			return sampleResult{
				score:   Score{RecordsParsed: len(records), ModeCount: modeOf(widthHist).count, ModeFields: modeOf(widthHist).width},
				records: records,
				hardErr: true,
			}
		}
		if eof {
			break
		}
		if headerWidth < 0 {
			headerWidth = len(fields)
		} else {
			dataRecords++
		}
		w := normalizedWidth(headerWidth, len(fields), fields)
		widthHist[w]++
		records = append(records, fields)
	}

	m := modeOf(widthHist)
	return sampleResult{
		score:   Score{RecordsParsed: len(records), ModeCount: m.count, ModeFields: m.width},
		records: records,
		hardErr: false,
	}
}

type modeResult struct {
	count int
	width int
}

func modeOf(hist map[int]int) modeResult {
	var best modeResult
	for w, c := range hist {
		if c > best.count || (c == best.count && w > best.width) {
			best = modeResult{count: c, width: w}
		}
	}
	return best
}

// scoreCandidate implements the "RFC4180 first, backslash only if RFC4180
// hard-fails" rule, keeping the better of the two and preferring RFC4180
// on ties (spec §4.2).
func scoreCandidate(data []byte, offset int, delim byte) (sampleResult, Escape) {
	none := runSample(data, offset, Dialect{Delimiter: delim, Escape: EscapeNone})
	if !none.hardErr {
		return none, EscapeNone
	}
	back := runSample(data, offset, Dialect{Delimiter: delim, Escape: EscapeBackslash})
	if back.score.Less(none.score) || scoresEqual(back.score, none.score) {
		return none, EscapeNone
	}
	return back, EscapeBackslash
}

func scoresEqual(a, b Score) bool { return a == b }

// Result is the outcome of dialect detection for one file.
type Result struct {
	Dialect     Dialect
	DataStart   int // offset into the (BOM-stripped) bytes where reading begins: the header record, then data records
	HeaderStart int // offset where the header record begins (after preamble/sep=)
}

// Detect runs the full per-file detection pipeline: preamble skip,
// sep= recognition, --delimiter override, auto-detect scoring and tie
// breaking, and the single-column guardrail (spec §4.2).
func Detect(label string, data []byte, forced *byte) (Result, *refusal.R) {
	preamble := SkipPreamble(data)
	headerStart := preamble

	sepDelim, sepOK, afterSep := ParseSepDirective(data, preamble)

	var chosenDelim byte
	auto := false
	switch {
	case forced != nil:
		chosenDelim = *forced
		if sepOK {
			headerStart = afterSep
		}
	case sepOK:
		chosenDelim = sepDelim
		headerStart = afterSep
	default:
		auto = true
	}

	if !auto {
		sr, esc := scoreCandidate(data, headerStart, chosenDelim)
		if sr.score.RecordsParsed == 0 {
			return Result{}, refusal.New(refusal.ECSVParse,
				"check that "+label+" is delimited text and rerun",
				"could not parse header of %s with delimiter %q", label, string(chosenDelim)).
				WithDetail("file=%s delimiter=%q", label, string(chosenDelim))
		}
		return Result{
			Dialect:     Dialect{Delimiter: chosenDelim, Escape: esc},
			DataStart:   headerStart,
			HeaderStart: headerStart,
		}, nil
	}

	var candidates []scored
	for _, c := range Candidates {
		sr, esc := scoreCandidate(data, headerStart, c)
		if sr.score.RecordsParsed == 0 {
			continue // disqualified: can't even parse the header
		}
		candidates = append(candidates, scored{delim: c, esc: esc, sample: sr})
	}
	if len(candidates) == 0 {
		return Result{}, refusal.New(refusal.ECSVParse,
			"check the delimiter with --delimiter or add a sep= line and rerun",
			"no candidate delimiter could parse the header of %s", label).
			WithDetail("file=%s", label)
	}

	best := candidates[0].sample.score
	for _, c := range candidates[1:] {
		if best.Less(c.sample.score) {
			best = c.sample.score
		}
	}
	var tied []scored
	for _, c := range candidates {
		if c.sample.score == best {
			tied = append(tied, c)
		}
	}

	var winner scored
	if len(tied) == 1 {
		winner = tied[0]
	} else if samplesIdentical(tied) {
		winner = tied[0] // Candidates is already in the fixed tie-break order
	} else {
		names := make([]byte, 0, len(tied))
		for _, t := range tied {
			names = append(names, t.delim)
		}
		return Result{}, refusal.New(refusal.EDialect,
			"rerun with --delimiter to disambiguate "+label,
			"ambiguous dialect for %s: tied candidates %q", label, string(names)).
			WithDetail("file=%s candidates=%q", label, string(names))
	}

	if winner.sample.score.ModeFields == 1 {
		return Result{}, refusal.New(refusal.EDialect,
			"pass --delimiter (or add a sep= line) naming the real delimiter for "+label,
			"%s looks single-column under auto-detected delimiter %q", label, string(winner.delim)).
			WithDetail("file=%s delimiter=%q", label, string(winner.delim))
	}

	return Result{
		Dialect:     Dialect{Delimiter: winner.delim, Escape: winner.esc},
		DataStart:   headerStart,
		HeaderStart: headerStart,
	}, nil
}

// samplesIdentical compares tied candidates' width-normalized sample
// records for byte-for-byte equality (spec §4.2 tie-break).
func samplesIdentical(tied []scored) bool {
	ref := normalizeRecords(tied[0].sample.records)
	for _, t := range tied[1:] {
		if !recordsEqual(ref, normalizeRecords(t.sample.records)) {
			return false
		}
	}
	return true
}

func normalizeRecords(records [][][]byte) [][][]byte {
	if len(records) == 0 {
		return records
	}
	headerWidth := len(records[0])
	out := make([][][]byte, len(records))
	for i, rec := range records {
		w := normalizedWidth(headerWidth, len(rec), rec)
		switch {
		case len(rec) < w:
			padded := make([][]byte, w)
			copy(padded, rec)
			for j := len(rec); j < w; j++ {
				padded[j] = nil
			}
			out[i] = padded
		case len(rec) > w:
			out[i] = rec[:w]
		default:
			out[i] = rec
		}
	}
	return out
}

func recordsEqual(a, b [][][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if !bytes.Equal(a[i][j], b[i][j]) {
				return false
			}
		}
	}
	return true
}

// scored is shared between candidate scoring and tie-break comparison.
type scored = struct {
	delim  byte
	esc    Escape
	sample sampleResult
}
