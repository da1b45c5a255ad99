// Package optcheck validates the resolved CLI options before the core
// pipeline runs. It is a named, prioritized, fail-fast check pipeline in
// the same shape the checks package uses for file validation, narrowed to
// a single artifact (the parsed Options) and a single outcome (ok/error)
// since invalid flags have no fix to apply — they are a CLI error (exit 2).
package optcheck

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
)

// Options is the fully-parsed, not-yet-validated CLI configuration.
type Options struct {
	Threshold   float64
	Tolerance   float64
	RawDelim    string // "" when --delimiter was not passed
	Key         string // "" when --key was not passed
	HasKey      bool
	HasDelim    bool
	HasThresh   bool
	HasTol      bool
}

// Result is one check's outcome.
type Result struct {
	Name    string
	OK      bool
	Message string
}

// CheckFunc validates opts and returns a Result; it must not mutate opts.
type CheckFunc func(ctx context.Context, opts Options) Result

// Unit is a registered, ordered check.
type Unit struct {
	name     string
	priority int
	failFast bool
	run      CheckFunc
}

func (u *Unit) Name() string { return u.name }

// RegisterOption configures a Unit at registration time.
type RegisterOption func(*Unit)

// WithPriority sets execution order; lower values run earlier.
func WithPriority(p int) RegisterOption { return func(u *Unit) { u.priority = p } }

// WithFailFast marks the check as critical: a failure stops the pipeline.
func WithFailFast() RegisterOption { return func(u *Unit) { u.failFast = true } }

var (
	mu     sync.Mutex
	byName = map[string]*Unit{}
)

// Register adds a named check, wrapping it with panic recovery the same
// way the file-check registry does.
func Register(name string, run CheckFunc, opts ...RegisterOption) {
	u := &Unit{name: name, run: withRecover(name, run)}
	for _, o := range opts {
		o(u)
	}
	mu.Lock()
	byName[strings.ToLower(name)] = u
	mu.Unlock()
}

func withRecover(name string, run CheckFunc) CheckFunc {
	return func(ctx context.Context, opts Options) (res Result) {
		defer func() {
			if r := recover(); r != nil {
				res = Result{Name: name, OK: false, Message: fmt.Sprintf("panic validating %s: %v\n%s", name, r, debug.Stack())}
			}
		}()
		return run(ctx, opts)
	}
}

func sorted() []*Unit {
	mu.Lock()
	out := make([]*Unit, 0, len(byName))
	for _, u := range byName {
		out = append(out, u)
	}
	mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].name < out[j].name
	})
	return out
}

// Validate runs every registered check in priority order, stopping at the
// first fail-fast failure. It returns the first failing Result, or a zero
// Result with ok=true when every check passes.
func Validate(ctx context.Context, opts Options) (Result, bool) {
	var first *Result
	for _, u := range sorted() {
		if err := ctx.Err(); err != nil {
			return Result{Name: u.name, OK: false, Message: err.Error()}, false
		}
		res := u.run(ctx, opts)
		if !res.OK {
			if first == nil {
				first = &res
			}
			if u.failFast {
				break
			}
		}
	}
	if first != nil {
		return *first, false
	}
	return Result{}, true
}

func init() {
	Register("threshold-range", checkThreshold, WithPriority(10), WithFailFast())
	Register("tolerance-range", checkTolerance, WithPriority(20), WithFailFast())
	Register("delimiter-syntax", checkDelimiterSyntax, WithPriority(30), WithFailFast())
}

func checkThreshold(_ context.Context, opts Options) Result {
	if opts.Threshold > 0 && opts.Threshold <= 1 {
		return Result{Name: "threshold-range", OK: true}
	}
	return Result{Name: "threshold-range", OK: false,
		Message: fmt.Sprintf("--threshold must be in (0, 1], got %v", opts.Threshold)}
}

func checkTolerance(_ context.Context, opts Options) Result {
	if opts.Tolerance >= 0 {
		return Result{Name: "tolerance-range", OK: true}
	}
	return Result{Name: "tolerance-range", OK: false,
		Message: fmt.Sprintf("--tolerance must be >= 0, got %v", opts.Tolerance)}
}

func checkDelimiterSyntax(_ context.Context, opts Options) Result {
	if !opts.HasDelim {
		return Result{Name: "delimiter-syntax", OK: true}
	}
	if _, err := ResolveDelimiter(opts.RawDelim); err != nil {
		return Result{Name: "delimiter-syntax", OK: false, Message: err.Error()}
	}
	return Result{Name: "delimiter-syntax", OK: true}
}

// ResolveDelimiter parses the --delimiter surface form (spec §6): a named
// delimiter, a "0xNN" literal, or a single raw ASCII byte.
func ResolveDelimiter(raw string) (byte, error) {
	lower := strings.ToLower(raw)
	switch lower {
	case "comma":
		return ',', nil
	case "tab":
		return '\t', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	case "caret":
		return '^', nil
	}
	if strings.HasPrefix(lower, "0x") {
		var b int
		if _, err := fmt.Sscanf(lower, "0x%02x", &b); err != nil || len(lower) != 4 || b < 0x01 || b > 0x7F {
			return 0, fmt.Errorf("--delimiter %q is not a valid 0xNN byte literal", raw)
		}
		if err := validateDelimiterByte(byte(b), raw); err != nil {
			return 0, err
		}
		return byte(b), nil
	}
	if len(raw) == 1 {
		if err := validateDelimiterByte(raw[0], raw); err != nil {
			return 0, err
		}
		return raw[0], nil
	}
	return 0, fmt.Errorf("--delimiter %q is not a recognized name, 0xNN literal, or single byte", raw)
}

func validateDelimiterByte(b byte, raw string) error {
	if b < 0x01 || b > 0x7F || b == '"' || b == '\r' || b == '\n' {
		return fmt.Errorf("--delimiter %q is outside the legal delimiter range", raw)
	}
	return nil
}
