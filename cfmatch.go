// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/decred/cfmatch/compute/host"
	"github.com/decred/cfmatch/internal/version"
	"github.com/decred/cfmatch/matcher"
	flags "github.com/jessevdk/go-flags"
	"github.com/natefinch/atomic"
)

// startMatcher starts m and waits until it accepts requests, fails to start,
// or the context is canceled.
func startMatcher(ctx context.Context, m *matcher.Matcher) error {
	started := make(chan error, 1)
	m.Start(func(err error) { started <- err })
	select {
	case err := <-started:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run scans the configured filter file and writes the matching block hashes
// to w.
func run(ctx context.Context, cfg *config, w io.Writer) (int, error) {
	dev, err := host.NewDevice(&host.Config{
		ExecutionWidth: cfg.ExecWidth,
		Workers:        cfg.Workers,
	})
	if err != nil {
		return 0, err
	}
	defer dev.Close()

	m, err := matcher.New(&matcher.Config{
		Device:          dev,
		CorpusCacheSize: cfg.CorpusCache,
	})
	if err != nil {
		return 0, err
	}
	defer m.Stop()

	if err := startMatcher(ctx, m); err != nil {
		return 0, err
	}
	if err := m.Reload(cfg.corpus); err != nil {
		return 0, err
	}
	cfmtLog.Infof("Watching %d output %s on %s (execution width %d)",
		len(cfg.corpus), pickNoun(len(cfg.corpus), "script", "scripts"),
		dev.Name(), dev.ExecutionWidth())

	input, err := openFilters(cfg.Filters)
	if err != nil {
		return 0, err
	}
	defer input.Close()

	return scanFilters(ctx, m, cfg.corpus, input, w)
}

// cfmatchMain is the real main function for cfmatch.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func cfmatchMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	cfg, _, err := loadConfig(appName, os.Args[1:])
	if err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return nil
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "Use %s -h to show usage\n", appName)
		return err
	}
	if cfg.ShowVersion {
		fmt.Println(versionString(appName))
		return nil
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered from an OS signal such as SIGINT (Ctrl+C).
	ctx := shutdownListener()
	defer cfmtLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	cfmtLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	cfmtLog.Infof("Home dir: %s", cfg.HomeDir)
	if cfg.NoFileLogging {
		cfmtLog.Info("File logging disabled")
	}

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		var server profileServer
		err := server.Start(cfg.Profile, cfg.ProfileAllowNonLoopback)
		if err != nil {
			cfmtLog.Errorf("Unable to start profile server: %v", err)
			return err
		}
		defer server.Stop()
	}

	// Write cpu profile if requested.
	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			cfmtLog.Errorf("Unable to create cpu profile: %v", err)
			return err
		}
		pprof.StartCPUProfile(f)
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	// Matches are streamed to stdout or collected and written atomically to
	// the output file once every filter has been scanned.
	var out bytes.Buffer
	var w io.Writer = &out
	var stdout *bufio.Writer
	if cfg.Output == "" {
		stdout = bufio.NewWriter(os.Stdout)
		w = stdout
	}
	numMatched, err := run(ctx, cfg, w)
	if stdout != nil {
		if ferr := stdout.Flush(); err == nil {
			err = ferr
		}
	}
	if shutdownRequested(ctx) {
		return nil
	}
	if err != nil {
		cfmtLog.Errorf("%v", err)
		return err
	}
	if cfg.Output != "" {
		if err := atomic.WriteFile(cfg.Output, &out); err != nil {
			cfmtLog.Errorf("Unable to write %s: %v", cfg.Output, err)
			return err
		}
	}
	cfmtLog.Infof("Scan complete: %d matching %s", numMatched,
		pickNoun(numMatched, "block", "blocks"))
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := cfmatchMain(); err != nil {
		os.Exit(1)
	}
}
