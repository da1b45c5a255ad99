// Package ident implements the rvl identifier encoding used for header
// names, key values and row ids that may contain non-UTF-8 or control bytes.
//
// Three textual forms exist:
//
//	plain   - printable UTF-8 with no ASCII control bytes, not starting
//	          with "u8:" or "hex:"
//	u8:<s>  - the bytes are the UTF-8 encoding of s
//	hex:<h> - the bytes are exactly the decoded lowercase hex h
package ident

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Decode parses a CLI-supplied identifier per spec §4.4: a bare string is
// treated as "u8:<s>", or it may carry an explicit "u8:" / "hex:" prefix.
func Decode(raw string) ([]byte, error) {
	switch {
	case strings.HasPrefix(raw, "hex:"):
		h := raw[len("hex:"):]
		b, err := hex.DecodeString(strings.ToLower(h))
		if err != nil {
			return nil, fmt.Errorf("invalid hex identifier %q: %w", raw, err)
		}
		return b, nil
	case strings.HasPrefix(raw, "u8:"):
		return []byte(raw[len("u8:"):]), nil
	default:
		return []byte(raw), nil
	}
}

// isClean reports whether b is valid UTF-8 with no ASCII control bytes.
func isClean(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, c := range b {
		if c <= 0x1F || c == 0x7F {
			return false
		}
	}
	return true
}

// EncodeJSON always renders b as "u8:<s>" when clean, else "hex:<h>" -
// a form with no ambiguity for machine consumers.
func EncodeJSON(b []byte) string {
	if isClean(b) {
		return "u8:" + string(b)
	}
	return "hex:" + hex.EncodeToString(b)
}

// EncodeHuman renders b as-is when it is clean and does not collide with
// a reserved prefix; otherwise it falls back to the u8:/hex: encoding,
// escaping any accidental prefix collision in plain text too.
func EncodeHuman(b []byte) string {
	if isClean(b) && !strings.HasPrefix(string(b), "u8:") && !strings.HasPrefix(string(b), "hex:") {
		return string(b)
	}
	return EncodeJSON(b)
}
