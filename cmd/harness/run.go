package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gremlinsdk/harness/pkg/harnessconfig"
	"github.com/gremlinsdk/harness/pkg/recipe"
	"github.com/gremlinsdk/harness/pkg/report"
	"github.com/gremlinsdk/harness/pkg/telemetry"
	"github.com/gremlinsdk/harness/pkg/testid"
)

// inputError marks a failure that must exit 2 (malformed topology, recipe,
// or checklist file), distinct from a checklist that ran fine but found a
// failing check (exit 1).
type inputError struct{ err error }

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var in *inputError
	if errors.As(err, &in) {
		return 2
	}
	return 1
}

func runHarness(cmd *cobra.Command, args []string) error {
	cfg, err := harnessconfig.Load(cfgFile)
	if err != nil {
		return &inputError{err}
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return &inputError{err}
	}

	log := telemetry.New(telemetry.Config{
		Level:  telemetry.Level(cfg.Logging.Level),
		Format: telemetry.Format(cfg.Logging.Format),
		Output: os.Stdout,
	})

	// Only register against the default registry (and so make Handler's
	// exposition non-empty) when the operator actually asked for a scrape
	// endpoint; otherwise the counters exist but serve no one.
	var registerer prometheus.Registerer
	if cfg.Metrics.Enabled {
		registerer = prometheus.DefaultRegisterer
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, telemetry.Handler()); err != nil {
				log.WithField("error", err.Error()).Warn("metrics listener stopped")
			}
		}()
	}
	metrics := telemetry.NewMetrics(registerer)

	r, err := recipe.Load(args[0], args[1], args[2])
	if err != nil {
		return &inputError{err}
	}

	onReady := func(id testid.TestId) {
		fmt.Printf("test id: %s\n", id.String())
		fmt.Println("press enter once load has been driven against the mesh...")
	}

	ctx := context.Background()
	start := time.Now()
	id, results, runErr := r.Run(ctx, os.Stdin, onReady, cfg, log, metrics)
	end := time.Now()

	run := &report.Run{
		TestID:    id.String(),
		StartTime: start,
		EndTime:   end,
		Success:   runErr == nil,
	}
	allPassed := true
	for _, nr := range results {
		if !nr.Result.Success {
			allPassed = false
		}
		run.Checks = append(run.Checks, report.CheckOutcome{
			Name:    nr.Name,
			Args:    nr.Args,
			Success: nr.Result.Success,
			Info:    nr.Result.Info,
		})
	}
	run.Success = runErr == nil && allPassed
	if runErr != nil {
		run.Error = runErr.Error()
	}

	fmt.Print(report.Text(run))

	if cfg.Report.Enabled {
		store, err := report.NewStorage(cfg.Report.OutputDir, cfg.Report.KeepLastN, log)
		if err != nil {
			log.WithField("error", err.Error()).Warn("report: could not open output dir")
		} else if _, err := store.Save(run); err != nil {
			log.WithField("error", err.Error()).Warn("report: save failed")
		}
	}

	if runErr != nil {
		return &inputError{runErr}
	}
	if !allPassed {
		return checkFailure{}
	}
	return nil
}

// checkFailure signals "the checklist ran to completion but at least one
// check failed" — exit 1, distinct from a malformed-input exit 2.
type checkFailure struct{}

func (checkFailure) Error() string { return "one or more checks failed" }
