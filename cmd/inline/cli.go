package main

import (
	"flag"
	"fmt"
	"io"
	"time"
)

// ExitError carries the process exit code for a failed invocation.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

type options struct {
	page    string
	config  string
	base    string
	timeout time.Duration
	json    bool
	verbose bool
}

// parse processes command-line arguments. It reports whether the program
// should exit cleanly without rendering.
func parse(args []string, output io.Writer) (*options, bool, error) {
	flagSet := flag.NewFlagSet("inline", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
inline - execute the scripts of an HTML page, loading AMD modules inline.

Usage:
  inline [options] PAGE

Arguments:
  PAGE
    Path to the HTML file to render, or - for standard input.

Options:
`)
		flagSet.PrintDefaults()
	}

	opts := &options{}
	flagSet.StringVar(&opts.config, "config", "", "Path to an HCL configuration file.")
	flagSet.StringVar(&opts.base, "base", ".", "Directory relative script URLs are read from.")
	flagSet.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Upper bound for rendering the page.")
	flagSet.BoolVar(&opts.json, "json", false, "Print the full result as JSON instead of the HTML.")
	flagSet.BoolVar(&opts.verbose, "v", false, "Log debug output.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return nil, true, nil
	}
	opts.page = flagSet.Arg(0)

	if opts.timeout <= 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid timeout: must be positive"}
	}

	return opts, false, nil
}
