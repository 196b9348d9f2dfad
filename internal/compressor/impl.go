package compressor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"imgpress/internal/hoststats"
	"imgpress/internal/logger"
	"imgpress/internal/metadata"
	"imgpress/internal/statistics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultCompressor is the default implementation of the Compressor interface.
type DefaultCompressor struct {
	logger     *logrus.Logger
	host       hoststats.HostStats
	loader     *Loader
	stats      *statistics.Statistics
	stamper    metadata.Stamper
	threshold  int
	workers    int
	onProgress ProgressFunc
}

// Option configures a DefaultCompressor.
type Option func(*DefaultCompressor)

// WithFailureThreshold sets how many failures a batch tolerates before it
// stops starting new jobs.
func WithFailureThreshold(n int) Option {
	return func(c *DefaultCompressor) {
		if n >= 0 {
			c.threshold = n
		}
	}
}

// WithWorkers fixes the worker count instead of planning it from host stats.
// Zero keeps the planned count.
func WithWorkers(n int) Option {
	return func(c *DefaultCompressor) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithStatistics records batch counters into stats. Each CompressBatch
// resets stats before its first job.
func WithStatistics(stats *statistics.Statistics) Option {
	return func(c *DefaultCompressor) {
		if stats != nil {
			c.stats = stats
		}
	}
}

// WithStamper carries metadata over to JPEG outputs.
func WithStamper(s metadata.Stamper) Option {
	return func(c *DefaultCompressor) {
		c.stamper = s
	}
}

// WithProgress registers a callback invoked once per finished batch entry.
// Calls are serialized.
func WithProgress(fn ProgressFunc) Option {
	return func(c *DefaultCompressor) {
		c.onProgress = fn
	}
}

// NewDefaultCompressor creates a new DefaultCompressor instance.
func NewDefaultCompressor(log *logrus.Logger, host hoststats.HostStats, opts ...Option) *DefaultCompressor {
	c := &DefaultCompressor{
		logger:    log,
		host:      host,
		loader:    NewLoader(),
		stats:     statistics.NewStatistics(),
		threshold: DefaultFailureThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Statistics returns the counters the compressor records into.
func (c *DefaultCompressor) Statistics() *statistics.Statistics {
	return c.stats
}

// CompressSingle compresses one file synchronously.
func (c *DefaultCompressor) CompressSingle(path string, quality int, format Format) (Result, error) {
	return c.process(Job{Path: path, Quality: quality, Format: format}, logrus.NewEntry(c.logger))
}

// CompressBatch compresses every path with a pool sized from host resources
// and returns one outcome per path, in input order. Once more than the
// failure threshold of jobs have failed, jobs that have not started yet are
// reported as aborted. Statistics are reset at the start of every
// non-empty batch.
func (c *DefaultCompressor) CompressBatch(ctx context.Context, req BatchRequest) []Outcome {
	if len(req.Paths) == 0 {
		return []Outcome{}
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := logger.WithBatch(c.logger, req.ID)
	started := time.Now()
	c.stats.Reset()
	c.stats.SetFilesFound(len(req.Paths))

	numWorkers := c.planWorkers(log)
	gate := newFailureGate(c.threshold)

	log.WithFields(logrus.Fields{
		"files":   len(req.Paths),
		"workers": numWorkers,
		"format":  string(req.Format),
		"quality": req.Quality,
	}).Info("Starting compression batch")

	type job struct {
		index int
		job   Job
	}

	jobs := make(chan job, len(req.Paths))
	results := make(chan Outcome, len(req.Paths))

	var wg sync.WaitGroup
	wg.Add(min(numWorkers, len(req.Paths)))
	for w := 0; w < min(numWorkers, len(req.Paths)); w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- c.runJob(ctx, gate, j.index, j.job, log)
			}
		}()
	}

	for i, path := range req.Paths {
		jobs <- job{index: i, job: Job{
			Path:         path,
			Quality:      req.Quality,
			Format:       req.Format,
			TargetSizeKB: req.TargetSizeKB,
		}}
	}
	close(jobs)

	outcomes := make([]Outcome, len(req.Paths))
	for range req.Paths {
		o := <-results
		outcomes[o.Index] = o
		if c.onProgress != nil {
			c.onProgress(o)
		}
	}
	wg.Wait()

	c.stats.Finalize()
	snap := c.stats.Snapshot()
	log.WithFields(logrus.Fields{
		"compressed": snap.FilesCompressed,
		"failed":     snap.FilesFailed,
		"aborted":    snap.FilesAborted,
		"failures":   gate.count(),
		"duration":   time.Since(started).String(),
	}).Info("Compression batch completed")

	return outcomes
}

// planWorkers returns the configured worker count, or plans one from a host
// snapshot. A failed snapshot falls back to a single worker.
func (c *DefaultCompressor) planWorkers(log *logrus.Entry) int {
	if c.workers > 0 {
		c.stats.SetHost(0, 0, c.workers)
		return c.workers
	}

	snap, err := c.host.Snapshot()
	if err != nil {
		log.WithError(err).Warn("Host stats unavailable, using a single worker")
		c.stats.SetHost(0, 0, 1)
		return 1
	}

	n := PlanWorkers(snap.AvailableMB, snap.CPUCores)
	log.WithFields(logrus.Fields{
		"available_mb": snap.AvailableMB,
		"cpu_cores":    snap.CPUCores,
		"workers":      n,
	}).Debug("Planned worker pool")
	c.stats.SetHost(snap.AvailableMB, snap.CPUCores, n)
	return n
}

// runJob applies the cancellation and threshold checks, then processes the job.
func (c *DefaultCompressor) runJob(ctx context.Context, gate *failureGate, index int, job Job, log *logrus.Entry) Outcome {
	out := Outcome{Index: index, Path: job.Path}

	select {
	case <-ctx.Done():
		out.Err = newJobError(ErrCanceled, job.Path, "batch canceled", ctx.Err())
		c.stats.IncrementFilesCanceled()
		return out
	default:
	}

	if gate.exceeded() {
		out.Err = newJobError(ErrAborted, job.Path, abortedMessage, nil)
		c.stats.IncrementFilesAborted()
		log.WithField("file", job.Path).Debug("Skipping file, failure threshold exceeded")
		return out
	}

	res, err := c.process(job, log)
	if err != nil {
		failures := gate.record()
		log.WithField("file", job.Path).WithField("failures", failures).Debug("Recorded batch failure")
		out.Err = err
		return out
	}
	out.Result = &res
	return out
}

// process runs load, size lookup, path derivation and encode for one job.
func (c *DefaultCompressor) process(job Job, log *logrus.Entry) (Result, error) {
	entry := log.WithField("file", job.Path)
	c.stats.IncrementFilesProcessed()
	c.stats.IncrementFileType(fileType(job.Path))

	res, err := c.compressOne(job, entry)
	if err != nil {
		c.stats.IncrementFilesFailed()
		c.stats.AddError(job.Path, Stage(err), err.Error())
		entry.WithField("stage", Stage(err)).Warnf("Compression error: %v", err)
		return Result{}, err
	}

	c.stats.RecordCompressed(res.OriginalSize, res.CompressedSize)
	entry.WithFields(logrus.Fields{
		"output":          res.CompressedPath,
		"original_size":   res.OriginalSize,
		"compressed_size": res.CompressedSize,
	}).Infof("Image compressed (%.1f%% saved)", res.SavedPercent())
	return res, nil
}

func (c *DefaultCompressor) compressOne(job Job, entry *logrus.Entry) (Result, error) {
	img, err := c.loader.Load(job.Path)
	if err != nil {
		return Result{}, err
	}

	info, err := os.Stat(job.Path)
	if err != nil {
		return Result{}, newJobError(ErrIO, job.Path, "metadata error", err)
	}

	outPath := DeriveOutputPath(job.Path, job.Format)
	size, err := Encode(img, outPath, job.Format, job.Quality, job.TargetSizeKB)
	if err != nil {
		return Result{}, err
	}

	if c.stamper != nil && job.Format == FormatJPEG {
		size = c.stamp(job.Path, outPath, size, entry)
	}

	return Result{
		OriginalPath:   job.Path,
		CompressedPath: outPath,
		OriginalSize:   info.Size(),
		CompressedSize: size,
	}, nil
}

// stamp carries metadata over and returns the output size afterwards. A
// failed stamp only logs a warning.
func (c *DefaultCompressor) stamp(src, dst string, size int64, entry *logrus.Entry) int64 {
	if err := c.stamper.Stamp(src, dst); err != nil {
		entry.Warnf("warning: metadata not copied: %v", err)
		return size
	}
	c.stats.IncrementMetadataStamped()

	info, err := os.Stat(dst)
	if err != nil {
		return size
	}
	return info.Size()
}

func fileType(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "NONE"
	}
	return strings.ToUpper(ext)
}
