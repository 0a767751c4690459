package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/application/fetch"
	"github.com/weathertaxi/tlcfetch/internal/container"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	"github.com/weathertaxi/tlcfetch/internal/logger"
	"github.com/weathertaxi/tlcfetch/internal/report"
	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

func runPipeline(command string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	var sel selectionFlags
	common.register(fs)
	sel.register(fs)
	estimate := fs.Bool("estimate", false, "Print a size estimate before downloading (download only)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tlcfetch %s [options]\n\nOptions:\n", command)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	format, err := report.ParseFormat(common.report)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return ExitInvalidArgs
	}
	selection, err := sel.selection()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return ExitInvalidArgs
	}

	cfg, err := common.apply()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return ExitInvalidArgs
	}
	if sel.workers > 0 {
		cfg.Fetch.Workers = sel.workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return ExitInvalidArgs
	}

	log, err := logger.New(cfg.Service, cfg.Logger)
	if err != nil {
		fmt.Fprintln(stderr, "Error: failed to create logger:", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	app, cleanup, err := container.InitializeApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize", zap.Error(err))
		return ExitFailed
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, runErr := app.Orchestrator.Run(ctx, fetch.RunCommand{
		Mode:      download.Mode(command),
		Selection: selection,
		Estimate:  *estimate,
	})
	if r == nil {
		fmt.Fprintln(stderr, "Error:", runErr)
		if apperrors.IsBadRequest(runErr) {
			return ExitInvalidArgs
		}
		return ExitFailed
	}

	if err := writeReport(stdout, format, common.reportFile, r); err != nil {
		log.Error("failed to write report", zap.Error(err))
		return ExitFailed
	}

	return exitCode(r, runErr)
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.register(fs)
	limit := fs.Int("limit", 20, "Number of runs to show")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	format, err := report.ParseFormat(common.report)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return ExitInvalidArgs
	}
	cfg, err := common.apply()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return ExitInvalidArgs
	}

	log, err := logger.New(cfg.Service, cfg.Logger)
	if err != nil {
		fmt.Fprintln(stderr, "Error: failed to create logger:", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	runs, cleanup, err := container.InitializeHistory(cfg, log)
	if err != nil {
		log.Error("failed to open history", zap.Error(err))
		return ExitFailed
	}
	defer cleanup()

	if runs == nil {
		fmt.Fprintln(stderr, "Run history is disabled (database.driver is none)")
		return ExitSuccess
	}

	summaries, err := runs.FindRecent(context.Background(), *limit)
	if err != nil {
		log.Error("failed to read history", zap.Error(err))
		return ExitFailed
	}
	if err := report.RenderHistory(stdout, format, summaries); err != nil {
		return ExitFailed
	}
	return ExitSuccess
}

func writeReport(stdout io.Writer, format report.Format, path string, r *download.RunReport) error {
	if err := report.Render(stdout, format, r); err != nil {
		return err
	}
	if path == "" {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.Render(f, format, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// exitCode maps a finished run onto the process exit status
func exitCode(r *download.RunReport, err error) int {
	switch {
	case r.Aborted:
		return ExitAborted
	case err != nil, r.Failed():
		return ExitFailed
	default:
		return ExitSuccess
	}
}
