package statistics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains counters for one compression batch.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	FilesCompressed     int64
	FilesFailed         int64
	FilesAborted        int64
	FilesCanceled       int64
	MetadataStamped     int64

	BytesIn  int64
	BytesOut int64

	Workers     int64
	AvailableMB int64
	CPUCores    int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	mutex sync.RWMutex

	FileTypeStats map[string]int64
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string    `json:"file_path"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a copy of the counters that is safe to serialize.
type Snapshot struct {
	TotalFilesFound     int64   `json:"total_found"`
	TotalFilesProcessed int64   `json:"total_processed"`
	FilesCompressed     int64   `json:"compressed"`
	FilesFailed         int64   `json:"failed"`
	FilesAborted        int64   `json:"aborted"`
	FilesCanceled       int64   `json:"canceled"`
	MetadataStamped     int64   `json:"metadata_stamped"`
	BytesIn             int64   `json:"bytes_in"`
	BytesOut            int64   `json:"bytes_out"`
	SavedPercent        float64 `json:"saved_percent"`
	Workers             int64   `json:"workers"`
	Duration            string  `json:"duration"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		FileTypeStats: make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// Reset zeroes every counter and restarts the clock.
func (s *Statistics) Reset() {
	for _, n := range []*int64{
		&s.TotalFilesFound, &s.TotalFilesProcessed, &s.FilesCompressed,
		&s.FilesFailed, &s.FilesAborted, &s.FilesCanceled, &s.MetadataStamped,
		&s.BytesIn, &s.BytesOut, &s.Workers, &s.AvailableMB, &s.CPUCores,
	} {
		atomic.StoreInt64(n, 0)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.StartTime = time.Now()
	s.EndTime = time.Time{}
	s.Duration = 0
	s.FilesPerSecond = 0
	s.Errors = make([]StatError, 0)
	s.FileTypeStats = make(map[string]int64)
}

// SetFilesFound records the batch size.
func (s *Statistics) SetFilesFound(n int) {
	atomic.StoreInt64(&s.TotalFilesFound, int64(n))
}

// SetHost records the host snapshot and the planned worker count.
func (s *Statistics) SetHost(availableMB uint64, cpuCores, workers int) {
	atomic.StoreInt64(&s.AvailableMB, int64(availableMB))
	atomic.StoreInt64(&s.CPUCores, int64(cpuCores))
	atomic.StoreInt64(&s.Workers, int64(workers))
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
}

// RecordCompressed counts a successful job and its byte sizes.
func (s *Statistics) RecordCompressed(originalSize, compressedSize int64) {
	atomic.AddInt64(&s.FilesCompressed, 1)
	atomic.AddInt64(&s.BytesIn, originalSize)
	atomic.AddInt64(&s.BytesOut, compressedSize)
}

// IncrementFilesFailed increases the count of failed files by 1.
func (s *Statistics) IncrementFilesFailed() {
	atomic.AddInt64(&s.FilesFailed, 1)
}

// IncrementFilesAborted increases the count of files skipped by the failure threshold.
func (s *Statistics) IncrementFilesAborted() {
	atomic.AddInt64(&s.FilesAborted, 1)
}

// IncrementFilesCanceled increases the count of files skipped after cancellation.
func (s *Statistics) IncrementFilesCanceled() {
	atomic.AddInt64(&s.FilesCanceled, 1)
}

// IncrementMetadataStamped increases the count of outputs with carried-over metadata.
func (s *Statistics) IncrementMetadataStamped() {
	atomic.AddInt64(&s.MetadataStamped, 1)
}

// IncrementFileType increases the count for a specific file type by 1.
func (s *Statistics) IncrementFileType(fileType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FileTypeStats[fileType]++
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	totalProcessed := atomic.LoadInt64(&s.TotalFilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(totalProcessed) / s.Duration.Seconds()
	}
}

// SavedPercent returns the aggregate size reduction of successful jobs.
func (s *Statistics) SavedPercent() float64 {
	in := atomic.LoadInt64(&s.BytesIn)
	out := atomic.LoadInt64(&s.BytesOut)
	if in == 0 {
		return 0
	}
	return float64(in-out) * 100 / float64(in)
}

// Snapshot returns a copy of the current counters.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		TotalFilesFound:     atomic.LoadInt64(&s.TotalFilesFound),
		TotalFilesProcessed: atomic.LoadInt64(&s.TotalFilesProcessed),
		FilesCompressed:     atomic.LoadInt64(&s.FilesCompressed),
		FilesFailed:         atomic.LoadInt64(&s.FilesFailed),
		FilesAborted:        atomic.LoadInt64(&s.FilesAborted),
		FilesCanceled:       atomic.LoadInt64(&s.FilesCanceled),
		MetadataStamped:     atomic.LoadInt64(&s.MetadataStamped),
		BytesIn:             atomic.LoadInt64(&s.BytesIn),
		BytesOut:            atomic.LoadInt64(&s.BytesOut),
		SavedPercent:        s.SavedPercent(),
		Workers:             atomic.LoadInt64(&s.Workers),
		Duration:            s.GetDuration().String(),
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	return fmt.Sprintf(`imgpress Statistics Summary:

Files:
		Total Found: %d
		Total Processed: %d
		Compressed: %d
		Failed: %d
		Aborted: %d
		Canceled: %d
		Metadata Stamped: %d

Size:
		Original: %s
		Compressed: %s
		Saved: %.2f%%

Host:
		Available Memory: %d MB
		CPU Cores: %d
		Workers: %d

Performance:
		Duration: %v
		Files/Second: %.2f`,
		atomic.LoadInt64(&s.TotalFilesFound),
		atomic.LoadInt64(&s.TotalFilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesFailed),
		atomic.LoadInt64(&s.FilesAborted),
		atomic.LoadInt64(&s.FilesCanceled),
		atomic.LoadInt64(&s.MetadataStamped),
		FormatBytes(atomic.LoadInt64(&s.BytesIn)),
		FormatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.SavedPercent(),
		atomic.LoadInt64(&s.AvailableMB),
		atomic.LoadInt64(&s.CPUCores),
		atomic.LoadInt64(&s.Workers),
		s.GetDuration(),
		s.GetFilesPerSecond())
}

// GetFileTypeBreakdown returns a formatted breakdown of input file types.
func (s *Statistics) GetFileTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FileTypeStats) == 0 {
		return "No file type statistics available"
	}

	types := make([]string, 0, len(s.FileTypeStats))
	for t := range s.FileTypeStats {
		types = append(types, t)
	}
	sort.Strings(types)

	result := "File Type Breakdown:\n"
	for _, fileType := range types {
		result += fmt.Sprintf("  %s: %d\n", fileType, s.FileTypeStats[fileType])
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// GetErrors returns a copy of the recorded errors.
func (s *Statistics) GetErrors() []StatError {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]StatError(nil), s.Errors...)
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// GetDuration returns the total duration of the batch.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}

// GetFilesPerSecond returns the average number of files processed per second.
func (s *Statistics) GetFilesPerSecond() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.FilesPerSecond
}
