// Package refusal carries the deterministic REFUSAL outcome: a stable
// error code, a one-line message, a code-specific detail, and an
// actionable next step. It is the rvl analogue of the teacher's
// Result/Status pattern, narrowed to the single "can't produce a verdict"
// outcome instead of PASS/WARN/FAIL/ERROR.
package refusal

import "fmt"

// Code is one of the stable E_* refusal codes from spec §7.
type Code string

const (
	EIO          Code = "E_IO"
	EEncoding    Code = "E_ENCODING"
	ECSVParse    Code = "E_CSV_PARSE"
	EHeaders     Code = "E_HEADERS"
	ENoKey       Code = "E_NO_KEY"
	EKeyEmpty    Code = "E_KEY_EMPTY"
	EKeyDup      Code = "E_KEY_DUP"
	EKeyMismatch Code = "E_KEY_MISMATCH"
	ERowcount    Code = "E_ROWCOUNT"
	ENeedKey     Code = "E_NEED_KEY"
	EDialect     Code = "E_DIALECT"
	EMixedTypes  Code = "E_MIXED_TYPES"
	ENoNumeric   Code = "E_NO_NUMERIC"
	EMissingness Code = "E_MISSINGNESS"
	EDiffuse     Code = "E_DIFFUSE"
)

// R is a fully-formed refusal: the payload rendered by the receipt.
type R struct {
	Code    Code
	Message string
	Detail  string
	Next    string
}

// Error lets an R be propagated through ordinary Go error returns while
// the pipeline decides whether to short-circuit into the renderer.
func (r *R) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// New builds a refusal with a required Next remediation string. Every
// refusal in the pipeline must go through here so none forgets the
// operator hand-off the spec requires.
func New(code Code, next string, format string, args ...any) *R {
	return &R{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Next:    next,
	}
}

// WithDetail attaches the code-specific detail payload (first example,
// file name, sample keys, ...) and returns the same refusal for chaining.
func (r *R) WithDetail(format string, args ...any) *R {
	r.Detail = fmt.Sprintf(format, args...)
	return r
}

// As extracts an *R from err, mirroring errors.As without importing it
// at every call site that just wants the common case.
func As(err error) (*R, bool) {
	if err == nil {
		return nil, false
	}
	r, ok := err.(*R)
	return r, ok
}
