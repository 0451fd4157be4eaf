// Package main provides the piccaption CLI tool for mirroring a photo tree
// into a fresh destination with HEIC stills converted to JPEG and stills
// renamed after the keywords a local vision model sees in them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jayzes/piccaption/internal/config"
	"github.com/jayzes/piccaption/internal/imaging"
	"github.com/jayzes/piccaption/internal/keywords"
	"github.com/jayzes/piccaption/internal/mirror"
	"github.com/jayzes/piccaption/internal/output"
	"github.com/jayzes/piccaption/internal/pathcheck"
	"github.com/jayzes/piccaption/internal/ui"
	"github.com/jayzes/piccaption/internal/vision"
)

var (
	configPath string
	reportPath string
	showTree   bool
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "piccaption [flags] <source> <destination>",
		Short: "Mirror a photo tree with keyword file names",
		Long: `Piccaption copies every directory and media file below <source> into a new
tree at <destination>. HEIC stills become JPEGs, live photo .mov sidecars are
skipped, and still images are renamed after keywords from a local vision model.

The destination must not exist yet.`,
		Args:         cobra.ExactArgs(2),
		RunE:         run,
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.StringP("model", "m", "granite3.2-vision:2b", "Vision model name")
	flags.StringP("url", "u", "http://localhost:11434", "Inference service base URL")
	flags.IntP("max-keywords", "k", 4, fmt.Sprintf("Keywords per file name (1-%d)", config.MaxKeywordsLimit))
	flags.Duration("pace", time.Second, "Delay before each vision request")
	flags.StringVar(&configPath, "config", "", "Config file (default: .env in the working directory)")
	flags.StringVar(&reportPath, "report", "", "Write a Markdown run report to this path")
	flags.BoolVar(&showTree, "tree", false, "Print the destination tree when done")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Debug logging instead of a progress bar")

	return rootCmd
}

func run(cmd *cobra.Command, args []string) error {
	source, err := pathcheck.Validate(args[0])
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dest, err := pathcheck.Validate(args[1])
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	live := !verbose && ui.Interactive()
	logger := newLogger(live)

	ui.PrintHeader("piccaption")
	ui.PrintInfo(fmt.Sprintf("Source: %s", source))
	ui.PrintInfo(fmt.Sprintf("Destination: %s", dest))
	ui.PrintInfo(fmt.Sprintf("Model: %s at %s", cfg.Model, cfg.BaseURL))

	converter := &imaging.HEIFConverter{Converters: cfg.Converters, Quality: cfg.JPEGQuality}
	if tool, err := converter.Tool(); err != nil {
		ui.PrintWarning("No HEIC converter found; HEIC files will fail to convert")
	} else {
		logger.Debug("using HEIC converter", "tool", tool)
	}
	_, _ = fmt.Fprintln(ui.Output)

	progress := ui.NewProgress("Mirroring", live)
	m := buildMirror(cfg, converter, logger, progress.Update)

	start := time.Now()
	sum, runErr := m.Run(cmd.Context(), source, dest)
	elapsed := time.Since(start)

	if runErr != nil {
		progress.Error("Mirror aborted")
	} else {
		progress.Complete(fmt.Sprintf("Mirrored %d files in %d directories", sum.Files, sum.Directories))
	}
	printSummary(sum)

	if reportPath != "" {
		report := toReport(source, dest, cfg.Model, elapsed, sum, runErr)
		if err := output.WriteReport(reportPath, report); err != nil {
			ui.PrintError(fmt.Sprintf("Failed to write report: %v", err))
		} else {
			ui.PrintSuccess(fmt.Sprintf("Report: %s", reportPath))
		}
	}

	if runErr != nil {
		return runErr
	}

	if showTree {
		tree, err := output.RenderTree(dest)
		if err != nil {
			return fmt.Errorf("failed to render tree: %w", err)
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), tree)
	}

	if n := len(sum.Failures); n > 0 {
		return fmt.Errorf("%d file(s) failed", n)
	}
	ui.PrintSuccess(fmt.Sprintf("Mirror complete: %s", dest))
	return nil
}

func newLogger(live bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "piccaption",
	})
	switch {
	case verbose:
		logger.SetLevel(log.DebugLevel)
	case live:
		// Failures are listed after the progress line finishes.
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}

func buildMirror(cfg *config.Config, converter mirror.Transcoder, logger *log.Logger, onProgress mirror.ProgressFunc) *mirror.Mirror {
	client := vision.New(vision.Config{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
		Retries: cfg.Retries,
	})

	return &mirror.Mirror{
		Transcoder: converter,
		Namer: &keywords.Pipeline{
			Extractor:   client,
			Prompt:      cfg.Prompt,
			MaxKeywords: cfg.MaxKeywords,
			Pace:        cfg.Pace,
			Load:        imaging.PreviewLoader(cfg.PreviewMaxDim),
			Logger:      logger,
		},
		Policy:      mirror.DefaultPolicy().WithRenamable(cfg.RenameExtensions),
		ScratchPath: cfg.ScratchPath,
		Logger:      logger,
		OnProgress:  onProgress,
	}
}

func printSummary(sum *mirror.Summary) {
	ui.PrintInfo(fmt.Sprintf("Copied: %d, converted: %d, renamed: %d", sum.Copied, sum.Converted, sum.Renamed))
	if sum.Suppressed > 0 || sum.Ignored > 0 {
		ui.PrintInfo(fmt.Sprintf("Skipped: %d live photo sidecar(s), %d ignored", sum.Suppressed, sum.Ignored))
	}
	ui.PrintFailures(convertFailures(sum.Failures))
}

func convertFailures(failures []mirror.Failure) []ui.FailureLine {
	result := make([]ui.FailureLine, len(failures))
	for i, f := range failures {
		result[i] = ui.FailureLine{Path: f.Path, Stage: string(f.Stage), Err: f.Err}
	}
	return result
}

func toReport(source, dest, model string, elapsed time.Duration, sum *mirror.Summary, runErr error) output.Report {
	// Summary paths are absolute.
	if abs, err := filepath.Abs(dest); err == nil {
		dest = abs
	}
	r := output.Report{
		Source:      source,
		Destination: dest,
		Model:       model,
		Elapsed:     elapsed,
		Directories: sum.Directories,
		Files:       sum.Files,
		Copied:      sum.Copied,
		Converted:   sum.Converted,
		Renamed:     sum.Renamed,
		Suppressed:  sum.Suppressed,
		Ignored:     sum.Ignored,
		Renames:     make([]output.Rename, len(sum.Renames)),
		Failures:    make([]output.Failure, len(sum.Failures)),
	}
	for i, rn := range sum.Renames {
		r.Renames[i] = output.Rename{Before: rn.Before, After: rn.After}
	}
	for i, f := range sum.Failures {
		r.Failures[i] = output.Failure{Path: f.Path, Stage: string(f.Stage), Message: f.Err.Error()}
	}
	if runErr != nil {
		r.Aborted = runErr.Error()
		if errors.Is(runErr, context.Canceled) {
			r.Aborted = "interrupted"
		}
	}
	return r
}
