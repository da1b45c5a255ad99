// Package csvio implements the byte-oriented front end of the rvl
// pipeline: the encoding guard (spec §4.1) and the streaming record
// reader (spec §4.3). Both operate on raw bytes and never assume the
// input is valid UTF-8 beyond the guardrails the spec requires.
package csvio

import (
	"bytes"

	"github.com/cmdrvl/rvl/internal/refusal"
	"golang.org/x/net/html/charset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomKind mirrors the teacher's encoding-fixer BOM sniffer, trimmed to the
// families the guard must recognize and refuse.
type bomKind int

const (
	bomNone bomKind = iota
	bomUTF8
	bomUTF16LE
	bomUTF16BE
	bomUTF32LE
	bomUTF32BE
)

func sniffBOM(b []byte) bomKind {
	if len(b) >= 3 && bytes.Equal(b[:3], utf8BOM) {
		return bomUTF8
	}
	if len(b) >= 2 {
		if b[0] == 0xFF && b[1] == 0xFE {
			if len(b) >= 4 && b[2] == 0x00 && b[3] == 0x00 {
				return bomUTF32LE
			}
			return bomUTF16LE
		}
		if b[0] == 0xFE && b[1] == 0xFF {
			return bomUTF16BE
		}
	}
	if len(b) >= 4 && b[0] == 0x00 && b[1] == 0x00 && b[2] == 0xFE && b[3] == 0xFF {
		return bomUTF32BE
	}
	return bomNone
}

const encodingSampleSize = 8 << 10 // 8 KiB, per spec §4.1

// Guard strips a leading UTF-8 BOM and refuses input that begins with a
// UTF-16/UTF-32 BOM or has a NUL byte in its first 8 KiB, per spec §4.1. label identifies the file ("old" or "new") for the refusal
// detail. The returned bytes are otherwise untouched arbitrary bytes.
func Guard(label string, data []byte) ([]byte, *refusal.R) {
	switch sniffBOM(data) {
	case bomUTF16LE, bomUTF16BE, bomUTF32LE, bomUTF32BE:
		return nil, encodingRefusal(label, data, "file %s begins with a non-UTF-8 BOM")
	}

	sample := data
	if len(sample) > encodingSampleSize {
		sample = sample[:encodingSampleSize]
	}
	if bytes.IndexByte(sample, 0x00) >= 0 {
		return nil, encodingRefusal(label, data, "file %s contains a NUL byte in its first 8 KiB")
	}

	return bytes.TrimPrefix(data, utf8BOM), nil
}

// encodingRefusal builds E_ENCODING, using x/net's charset sniffer purely
// to make the Next remediation concrete (it names a plausible source
// encoding); rvl itself never transcodes, it only refuses.
func encodingRefusal(label string, data []byte, format string) *refusal.R {
	next := "re-export the file as UTF-8 (no BOM) and rerun"
	if enc, name, ok := charset.DetermineEncoding(data, ""); ok && enc != nil && name != "utf-8" {
		next = "file looks like " + name + "; re-export as UTF-8 (no BOM) and rerun"
	}
	return refusal.New(refusal.EEncoding, next, format, label).WithDetail("file=%s", label)
}
