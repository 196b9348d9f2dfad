package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"imgpress/internal/compressor"
	"imgpress/internal/config"
	"imgpress/internal/hoststats"
	"imgpress/internal/logger"
	"imgpress/internal/metadata"
	"imgpress/internal/statistics"
	"imgpress/internal/web"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	version   = "dev"
	buildTime string

	quality          int
	format           string
	targetSizeKB     int
	workers          int
	failureThreshold int
	dryRun           bool
	recursive        bool
	preserveMetadata bool
	port             int

	appLog *logrus.Logger
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "imgpress",
	Short: "Batch image compression",
	Long: `imgpress re-encodes images as JPEG or PNG next to the originals.

Each input produces {stem}_compressed.{ext} in the same directory; originals
are never modified. Batches run on a worker pool sized from available memory
and CPU cores, and stop starting new files once too many have failed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// compressCmd compresses files and directories.
var compressCmd = &cobra.Command{
	Use:   "compress <path>...",
	Short: "Compress images",
	Long: `Compress the given files. Directories are expanded to the supported image
files they contain (subdirectories only with --recursive).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// inspectCmd shows what the loader sees in a file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show detected type, dimensions and EXIF tags of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runInspect(cmd.OutOrStdout(), cfg, args[0])
	},
}

// planCmd prints the host snapshot and the planned worker count.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show available resources and the planned worker count",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runPlan(cmd.OutOrStdout(), hoststats.NewSystem(), cfg.Performance.WorkerThreads)
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts a local HTTP API for compressing files by path, with batch progress
streamed over a websocket at /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.Version = version
	if buildTime != "" {
		rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "worker count (default: planned from host resources)")

	compressCmd.Flags().IntVarP(&quality, "quality", "q", 80, "JPEG quality 0-100")
	compressCmd.Flags().StringVarP(&format, "format", "f", "jpeg", "output format: jpeg or png")
	compressCmd.Flags().IntVar(&targetSizeKB, "target-size", 0, "JPEG size target in KB (0 = none)")
	compressCmd.Flags().IntVar(&failureThreshold, "failure-threshold", compressor.DefaultFailureThreshold, "failures tolerated before a batch stops starting files")
	compressCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print output paths without compressing")
	compressCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	compressCmd.Flags().BoolVar(&preserveMetadata, "preserve-metadata", false, "copy EXIF tags onto JPEG outputs (needs exiftool)")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the HTTP API on")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads configuration and applies the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("quality") {
		cfg.Compression.Quality = quality
	}
	if flags.Changed("format") {
		cfg.Compression.Format = format
	}
	if flags.Changed("target-size") {
		cfg.Compression.TargetSizeKB = targetSizeKB
	}
	if flags.Changed("failure-threshold") {
		cfg.Compression.FailureThreshold = failureThreshold
	}
	if flags.Changed("recursive") {
		cfg.Compression.Recursive = recursive
	}
	if flags.Changed("preserve-metadata") {
		cfg.Compression.PreserveMetadata = preserveMetadata
	}
	if flags.Changed("workers") {
		cfg.Performance.WorkerThreads = workers
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    verbose,
		SentryDSN:  cfg.Logging.SentryDSN,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger setup failed, logging to stderr: %v\n", err)
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.InfoLevel)
	}

	appLog = log
	return log
}

// newStamper starts exiftool when metadata carry-over is enabled. A missing
// exiftool only disables the feature.
func newStamper(cfg *config.Config, log *logrus.Logger) metadata.Stamper {
	if !cfg.Compression.PreserveMetadata {
		return nil
	}
	stamper, err := metadata.NewExiftoolStamper(metadata.NewEXIFReader(log))
	if err != nil {
		log.WithError(err).Warn("Metadata carry-over disabled")
		return nil
	}
	return stamper
}

// runCompress expands the inputs and compresses them as one batch.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	paths, err := compressor.CollectImageFiles(args, cfg.Compression.Extensions, cfg.Compression.Recursive)
	if err != nil {
		return fmt.Errorf("failed to collect files: %w", err)
	}
	if len(paths) == 0 {
		if !quiet {
			fmt.Fprintln(out, "No image files found")
		}
		return nil
	}

	outFormat := compressor.ParseFormat(cfg.Compression.Format)
	if dryRun {
		for _, p := range paths {
			fmt.Fprintf(out, "%s -> %s\n", p, compressor.DeriveOutputPath(p, outFormat))
		}
		return nil
	}

	log := setupLogger(cfg)
	logger.WithOperation(log, "compress").WithField("files", len(paths)).Debug("Collected input files")

	stats := statistics.NewStatistics()
	opts := []compressor.Option{
		compressor.WithStatistics(stats),
		compressor.WithFailureThreshold(cfg.Compression.FailureThreshold),
		compressor.WithWorkers(cfg.Performance.WorkerThreads),
	}
	if stamper := newStamper(cfg, log); stamper != nil {
		defer stamper.Close()
		opts = append(opts, compressor.WithStamper(stamper))
	}
	if cfg.Performance.ShowProgress && !quiet {
		opts = append(opts, compressor.WithProgress(progressPrinter(cmd.ErrOrStderr(), len(paths))))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := compressor.NewDefaultCompressor(log, hoststats.NewSystem(), opts...)
	outcomes := c.CompressBatch(ctx, compressor.BatchRequest{
		Paths:        paths,
		Quality:      cfg.Compression.Quality,
		Format:       outFormat,
		TargetSizeKB: cfg.TargetSize(),
	})

	if !quiet {
		printOutcomes(out, outcomes)
		fmt.Fprintln(out, "\n"+stats.GetSummary())
		if verbose {
			fmt.Fprintln(out, "\n"+stats.GetFileTypeBreakdown())
			fmt.Fprintln(out, stats.GetErrorSummary())
		}
	}

	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files were not compressed", failed, len(outcomes))
	}
	return nil
}

// progressPrinter returns a progress hook that rewrites one status line.
func progressPrinter(w io.Writer, total int) compressor.ProgressFunc {
	done := 0
	return func(o compressor.Outcome) {
		done++
		fmt.Fprintf(w, "\r[%d/%d] %s", done, total, o.Path)
		if done == total {
			fmt.Fprintln(w)
		}
	}
}

// printOutcomes prints one line per input, in input order.
func printOutcomes(w io.Writer, outcomes []compressor.Outcome) {
	for _, o := range outcomes {
		if o.OK() {
			fmt.Fprintf(w, "OK    %s -> %s (%s -> %s, %.1f%% saved)\n",
				o.Path, o.Result.CompressedPath,
				statistics.FormatBytes(o.Result.OriginalSize),
				statistics.FormatBytes(o.Result.CompressedSize),
				o.Result.SavedPercent())
			continue
		}
		fmt.Fprintf(w, "FAIL  %s: %s\n", o.Path, o.Message())
	}
}

// runInspect prints what the loader would detect in filePath.
func runInspect(w io.Writer, cfg *config.Config, filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("cannot stat %s: %w", filePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", filePath)
	}

	fmt.Fprintf(w, "File:       %s\n", filePath)
	fmt.Fprintf(w, "Size:       %s\n", statistics.FormatBytes(info.Size()))

	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return fmt.Errorf("detect type: %w", err)
	}
	fmt.Fprintf(w, "Detected:   %s (%s)\n", mtype.String(), mtype.Extension())
	fmt.Fprintf(w, "Collected:  %t\n", cfg.IsImageExtension(filepath.Ext(filePath)))

	if f, err := os.Open(filePath); err == nil {
		dims, name, err := image.DecodeConfig(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(w, "Dimensions: unknown (%v)\n", err)
		} else {
			fmt.Fprintf(w, "Dimensions: %dx%d (%s)\n", dims.Width, dims.Height, name)
		}
	}

	reader := metadata.NewEXIFReader(logrus.New())
	tags, err := reader.Read(filePath)
	if err != nil {
		fmt.Fprintln(w, "EXIF:       none")
	} else {
		fields := tags.Fields()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "EXIF:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %-17s %s\n", k+":", fields[k])
		}
		if tags.Software != "" {
			fmt.Fprintf(w, "  %-17s %s\n", "Software:", tags.Software)
		}
	}
	fmt.Fprintf(w, "Stamped:    %t\n", reader.IsStamped(filePath))

	for _, f := range []compressor.Format{compressor.FormatJPEG, compressor.FormatPNG} {
		fmt.Fprintf(w, "Output %-4s %s\n", string(f)+":", compressor.DeriveOutputPath(filePath, f))
	}
	return nil
}

// runPlan prints the host snapshot and the worker count a batch would use.
func runPlan(w io.Writer, host hoststats.HostStats, override int) error {
	snap, err := host.Snapshot()
	if err != nil {
		fmt.Fprintf(w, "Host stats unavailable: %v\n", err)
		fmt.Fprintln(w, "Workers:        1")
		return nil
	}

	fmt.Fprintf(w, "Available RAM:  %d MB\n", snap.AvailableMB)
	fmt.Fprintf(w, "CPU cores:      %d\n", snap.CPUCores)
	planned := compressor.PlanWorkers(snap.AvailableMB, snap.CPUCores)
	if override > 0 {
		fmt.Fprintf(w, "Workers:        %d (configured, planned %d)\n", override, planned)
		return nil
	}
	fmt.Fprintf(w, "Workers:        %d\n", planned)
	return nil
}

// runServe starts the HTTP API and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	stamper := newStamper(cfg, log)
	if stamper != nil {
		defer stamper.Close()
	}
	server := web.NewServer(cfg, log, hoststats.NewSystem(), stamper)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "imgpress API listening on http://localhost:%d\n", cfg.Server.Port)

	select {
	case <-sigChan:
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func main() {
	err := rootCmd.Execute()
	if appLog != nil {
		logger.Flush(appLog, 2*time.Second)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
