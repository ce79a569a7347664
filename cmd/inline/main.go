package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.miragespace.co/inline"
	"go.miragespace.co/inline/config"
	"go.miragespace.co/inline/source"
	"go.miragespace.co/inline/source/fs"
	"go.miragespace.co/inline/source/remote"

	"go.uber.org/zap"
)

func main() {
	if err := run(os.Stdin, os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer, args []string) error {
	opts, shouldExit, err := parse(args, out)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := config.Default()
	if opts.config != "" {
		cfg, err = config.Load(opts.config)
		if err != nil {
			return &ExitError{Code: 2, Message: err.Error()}
		}
	}

	rt, err := inline.NewRuntime(logger, inline.Options{
		Config: cfg,
		Source: newSource(logger, opts.base),
	})
	if err != nil {
		return err
	}

	page := in
	if opts.page != "-" {
		f, err := os.Open(opts.page)
		if err != nil {
			return err
		}
		defer f.Close()
		page = f
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	res, err := rt.Render(ctx, opts.page, page)
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	_, err = io.WriteString(out, res.HTML)
	return err
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// newSource routes absolute http(s) URLs to the network and everything else
// to the base directory.
func newSource(logger *zap.Logger, base string) source.Source {
	return source.NewMux().
		Handle(source.Prefix("http://", "https://"), remote.NewRemoteSource(logger, nil)).
		Handle(source.Any, fs.NewDirSource(base))
}
