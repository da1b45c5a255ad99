package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/cmdrvl/rvl"
	"github.com/cmdrvl/rvl/internal/ident"
	"github.com/cmdrvl/rvl/internal/optcheck"
	"github.com/cmdrvl/rvl/internal/render"
	"github.com/cmdrvl/rvl/internal/verdict"
)

type cliOptions struct {
	Key       string  `long:"key" description:"column to align rows by identity instead of position" value-name:"column"`
	Threshold float64 `long:"threshold" description:"minimum fraction of total_change the top contributors must cover" value-name:"float" default:"0.95"`
	Tolerance float64 `long:"tolerance" description:"absolute per-cell delta below which a numeric change is ignored" value-name:"float" default:"1e-9"`
	Delimiter string  `long:"delimiter" description:"force the field delimiter for both files (comma|tab|semicolon|pipe|caret, 0xNN, or a single byte)" value-name:"delim"`
	JSON      bool    `long:"json" description:"emit a single JSON object instead of the human receipt"`
}

// parseArgs parses flags and positional paths, exiting 2 on any CLI error
// per spec §6 (invalid flags never reach the core).
func parseArgs(args []string) (oldPath, newPath string, opts cliOptions) {
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "<old> <new> [options]"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if len(rest) != 2 {
		fmt.Fprintln(os.Stderr, "rvl: expected exactly two positional arguments: <old> <new>")
		os.Exit(2)
	}
	return rest[0], rest[1], opts
}

func main() {
	oldPath, newPath, cli := parseArgs(os.Args[1:])

	optsToCheck := optcheck.Options{
		Threshold: cli.Threshold,
		Tolerance: cli.Tolerance,
		RawDelim:  cli.Delimiter,
		Key:       cli.Key,
		HasKey:    cli.Key != "",
		HasDelim:  cli.Delimiter != "",
	}
	if bad, ok := optcheck.Validate(context.Background(), optsToCheck); !ok {
		fmt.Fprintln(os.Stderr, "rvl:", bad.Message)
		os.Exit(2)
	}

	var delim *byte
	if cli.Delimiter != "" {
		b, err := optcheck.ResolveDelimiter(cli.Delimiter)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rvl:", err)
			os.Exit(2)
		}
		delim = &b
	}

	var key []byte
	if cli.Key != "" {
		decoded, err := ident.Decode(cli.Key)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rvl:", err)
			os.Exit(2)
		}
		key = decoded
	}

	oldData, err := os.ReadFile(oldPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvl:", err)
		os.Exit(2)
	}
	newData, err := os.ReadFile(newPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvl:", err)
		os.Exit(2)
	}

	outcome := rvl.Run(context.Background(), oldPath, newPath, oldData, newData, rvl.Options{
		Key:       key,
		Threshold: cli.Threshold,
		Tolerance: cli.Tolerance,
		Delimiter: delim,
	})

	if cli.JSON {
		if err := render.JSON(os.Stdout, outcome.Settings, outcome.Verdict); err != nil {
			fmt.Fprintln(os.Stderr, "rvl:", err)
			os.Exit(2)
		}
	} else {
		out := os.Stdout
		if outcome.Verdict.Kind == verdict.Refusal {
			out = os.Stderr
		}
		render.Human(out, outcome.Settings, outcome.Verdict)
	}

	switch outcome.Verdict.Kind {
	case verdict.NoRealChange:
		os.Exit(0)
	case verdict.RealChange:
		os.Exit(1)
	default:
		os.Exit(2)
	}
}
