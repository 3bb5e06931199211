// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command flakehunt replays a frame capture twice and reports the first
// draw or dispatch whose output differs between the two replays.
//
// Usage:
//
//	flakehunt [flags] capture.fhc
//	flakehunt -serve :39920
//
// Without -host the capture is replayed on the local GPU. With -host the
// capture is uploaded to a flakehunt daemon (started with -serve) and
// replayed there.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/gogpu/flakehunt"
	"github.com/gogpu/flakehunt/progress"
	"github.com/gogpu/flakehunt/replay"
	"github.com/gogpu/flakehunt/replay/remote"
	"github.com/gogpu/flakehunt/replay/wgpureplay"
)

type config struct {
	Host    string `env:"FLAKEHUNT_HOST"`
	Listen  string `env:"FLAKEHUNT_LISTEN"`
	DumpDir string `env:"FLAKEHUNT_DUMP_DIR"`
	Verbose bool   `env:"FLAKEHUNT_VERBOSE"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "flakehunt: parse env: %v\n", err)
		os.Exit(2)
	}

	flag.StringVar(&cfg.Host, "host", cfg.Host, "replay daemon address, e.g. gpubox:39920 (default: replay locally)")
	flag.StringVar(&cfg.Listen, "serve", cfg.Listen, "run as a replay daemon listening on this address")
	flag.StringVar(&cfg.DumpDir, "dump", cfg.DumpDir, "write the divergent resource contents to this directory")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "debug logging")
	flag.Usage = usage
	flag.Parse()

	setupLogger(cfg.Verbose)

	if cfg.Listen != "" {
		os.Exit(serve(cfg.Listen))
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	os.Exit(scan(cfg, flag.Arg(0)))
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: flakehunt [flags] capture.fhc\n")
	fmt.Fprintf(flag.CommandLine.Output(), "       flakehunt -serve address\n\nflags:\n")
	flag.PrintDefaults()
}

func setupLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{}
				}
				return a
			},
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	flakehunt.SetLogger(logger)
}

// scan replays path twice and prints the verdict.
// Exit codes: 0 clean, 1 divergence found, 2 failure.
func scan(cfg config, path string) int {
	release, err := replay.Initialize()
	if err != nil {
		return fail(err)
	}
	defer release()

	driver := wgpureplay.DriverName
	if cfg.Host != "" {
		driver = remote.DriverName
	}

	bar := progress.New(os.Stderr)
	ctrl, err := replay.Open(driver, replay.OpenOptions{
		Path:         path,
		Host:         cfg.Host,
		OpenProgress: bar.OpenProgress(),
	})
	if err != nil {
		return fail(err)
	}
	defer ctrl.Close()

	var opts []flakehunt.ScannerOption
	if cfg.DumpDir != "" {
		opts = append(opts, flakehunt.WithDumpDir(cfg.DumpDir))
	}

	verdict, err := flakehunt.NewScanner(ctrl, bar, opts...).Run()
	if err != nil {
		return fail(err)
	}

	switch verdict.State {
	case flakehunt.DiscrepancyFound:
		fmt.Printf("divergence at event %d: %s\n", verdict.EventID, verdict.Key)
		return 1
	default:
		fmt.Println("clean: both replays produced identical results")
		return 0
	}
}

// serve runs a replay daemon until interrupted.
func serve(addr string) int {
	release, err := replay.Initialize()
	if err != nil {
		return fail(err)
	}
	defer release()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("serving replay sessions", "addr", lis.Addr().String())
	srv := remote.NewServer(func(path string, report func(float64)) (replay.Controller, error) {
		return replay.Open(wgpureplay.DriverName, replay.OpenOptions{
			Path:         path,
			OpenProgress: report,
		})
	})
	if err := srv.Serve(ctx, lis); err != nil && ctx.Err() == nil {
		return fail(err)
	}
	return 0
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "flakehunt: %v\n", err)
	return 2
}
