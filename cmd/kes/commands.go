package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/kestrel/fixture"
	"github.com/chazu/kestrel/server"
	"github.com/chazu/kestrel/transcript"
)

// fixtureTimeout bounds a fixture whose script never finishes.
const fixtureTimeout = 5 * time.Second

// handleTestCommand runs every fixture in a directory, defaulting to the
// manifest's [test] fixtures.
func (a *app) handleTestCommand(ctx context.Context, args []string) error {
	dir := a.man.FixturesDir()
	if len(args) > 0 {
		dir = args[0]
	}

	fixtures, err := fixture.LoadDir(dir)
	if err != nil {
		return err
	}
	if len(fixtures) == 0 {
		fmt.Fprintf(a.stdout, "no fixtures in %s\n", dir)
		return nil
	}

	failed := 0
	for _, fx := range fixtures {
		runCtx, cancel := context.WithTimeout(ctx, fixtureTimeout)
		res := fx.Run(runCtx)
		cancel()

		if res.Passed() {
			if a.verbose > 0 {
				fmt.Fprintf(a.stdout, "ok    %s\n", fx.Name)
			}
			continue
		}
		failed++
		fmt.Fprintf(a.stdout, "FAIL  %s (%s)\n  %s\n", fx.Name, fx.Path, res.Failure)
	}

	fmt.Fprintf(a.stdout, "%d passed, %d failed\n", len(fixtures)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d fixtures failed", failed)
	}
	return nil
}

func (a *app) handleLSPCommand() error {
	return server.NewLSP(version).Run()
}

// handleTranscriptCommand lists recent runs, or prints the lines of one run
// given its id or a unique id prefix.
func (a *app) handleTranscriptCommand(args []string) error {
	store, err := transcript.Open(a.man.TranscriptPath())
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		runs, err := store.Runs(20)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(a.stdout, "no recorded runs")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(a.stdout, "%s  %s  %4d lines  %s\n",
				r.ID, r.StartedAt.Local().Format(time.DateTime), r.Lines, r.Script)
		}
		return nil
	}

	run, err := store.FindRun(args[0])
	if errors.Is(err, transcript.ErrRunNotFound) {
		return fmt.Errorf("no run matches %q", args[0])
	}
	if err != nil {
		return err
	}
	lines, err := store.Lines(run.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "# run %s of %s (fingerprint %.12s)\n", run.ID, run.Script, run.Fingerprint)
	for _, l := range lines {
		fmt.Fprintln(a.stdout, l.Text)
	}
	return nil
}
