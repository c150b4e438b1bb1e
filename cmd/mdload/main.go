package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"mdload/internal/config"
	"mdload/internal/loader"
	"mdload/internal/metrics"
	"mdload/internal/metrics/datadog"
	"mdload/internal/record"
	"mdload/internal/report"
	"mdload/internal/storage"

	// register all destination backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "mdload/internal/storage/mssql"
	_ "mdload/internal/storage/postgres"
	_ "mdload/internal/storage/sqlite"
)

// main is the entry point for the load binary. It loads the run config,
// optionally initializes a metrics backend, reads the batch directory, and
// executes one load run.
func main() {
	var (
		cfgPath  string
		batchDir string
		runID    string
		validate bool
	)

	flag.StringVar(&cfgPath, "config", "configs/load.yaml", "run config YAML path")
	flag.StringVar(&batchDir, "batches", "", "directory of batch files (one JSON file per table)")
	flag.StringVar(&runID, "run-id", "", "run identifier; defaults to a UTC timestamp")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	reg, err := cfg.BuildRegistry()
	if err != nil {
		log.Printf("configuration is invalid: %v", cfgPath)
		fatalf("%v", err)
	}

	if validate {
		log.Printf("configuration is valid: %v (%d tables)", cfgPath, reg.Len())
		os.Exit(0)
	}

	if batchDir == "" {
		fmt.Fprintln(os.Stderr, "usage: mdload -config path/to/load.yaml -batches path/to/batches")
		os.Exit(2)
	}

	batches, err := record.LoadDir(batchDir)
	if err != nil {
		fatalf("%v", err)
	}

	if runID == "" {
		runID = time.Now().UTC().Format("20060102T150405Z")
	}

	ctx := context.Background()

	dest, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		fatalf("connect %s destination: %v", cfg.Storage.Kind, err)
	}
	defer dest.Close()

	mb := buildMetrics(ctx, cfg.Metrics, *verbose)

	runner := loader.NewRunner(dest, reg)
	runner.Logger = log.Default()
	runner.Metrics = mb

	start := time.Now()
	rep, runErr := runner.Run(ctx, runID, batches)

	// Close before any exit path: it stops the flush loop and performs the
	// final metrics submission.
	if err := mb.Close(); err != nil {
		log.Printf("metrics: close/flush error: %v", err)
	}

	// The report is written even when the run aborted; it covers everything
	// processed up to the abort point.
	if rep != nil {
		if runDir, err := report.WriteArtifacts(cfg.ReportsDir, rep); err != nil {
			log.Printf("write report artifacts: %v", err)
		} else if *verbose {
			log.Printf("report: %s", runDir)
		}
		printSummary(rep)
	}

	if runErr != nil {
		log.Printf("run aborted after %s: %v", time.Since(start).Truncate(time.Millisecond), runErr)
		os.Exit(1)
	}
	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// buildMetrics decides the metrics backend: config selects it, environment
// supplies credentials and extra tags. Failures fall back to the no-op
// backend; metrics never block a load run.
func buildMetrics(ctx context.Context, mc config.Metrics, verbose bool) metrics.Backend {
	switch mc.Backend {
	case "datadog":
		tags := append([]string{}, mc.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)

		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    mc.Job,
			Tags:       tags,
			FlushEvery: mc.FlushEvery.Std(),
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return metrics.Noop{}
		}
		if verbose {
			log.Printf("metrics: backend=datadog job=%v tags=%v", mc.Job, tags)
		}
		return b

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", mc.Backend)
		}
		return metrics.Noop{}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", mc.Backend)
		return metrics.Noop{}
	}
}

func printSummary(rep *report.RunReport) {
	fmt.Printf("run %s: %s\n", rep.RunID, rep.Status)
	fmt.Printf("  read     %s\n", humanize.Comma(int64(rep.Totals.Read)))
	fmt.Printf("  inserted %s\n", humanize.Comma(int64(rep.Totals.Inserted)))
	fmt.Printf("  updated  %s\n", humanize.Comma(int64(rep.Totals.Updated)))
	fmt.Printf("  rejected %s\n", humanize.Comma(int64(rep.Totals.Rejected)))
	for _, t := range rep.Tables {
		if t.Status == report.StatusSuccess {
			continue
		}
		fmt.Printf("  table %s: %s (%d rejected)\n", t.Table, t.Status, t.Rejected)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
