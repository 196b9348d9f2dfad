package compressor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Format is the target encoding of a compression job.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ParseFormat normalizes a user supplied format name. Unknown names are kept
// verbatim so the encoder can report them as unsupported.
func ParseFormat(s string) Format {
	f := strings.ToLower(strings.TrimSpace(s))
	if f == "jpg" {
		return FormatJPEG
	}
	return Format(f)
}

// Supported reports whether the format can be encoded.
func (f Format) Supported() bool {
	return f == FormatJPEG || f == FormatPNG
}

// Extension returns the file extension (without dot) used for outputs.
func (f Format) Extension() string {
	return string(f)
}

// Job describes the compression of a single file.
type Job struct {
	Path         string
	Quality      int
	Format       Format
	TargetSizeKB *int
}

// BatchRequest describes a batch of files sharing the same settings.
type BatchRequest struct {
	ID           string // generated when empty
	Paths        []string
	Quality      int
	TargetSizeKB *int
	Format       Format
}

// Result describes a successfully compressed file.
type Result struct {
	OriginalPath   string `json:"original_path"`
	CompressedPath string `json:"compressed_path"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize int64  `json:"compressed_size"`
}

// SavedPercent returns how much smaller the output is, in percent.
// Negative values mean the output grew.
func (r Result) SavedPercent() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.OriginalSize-r.CompressedSize) * 100 / float64(r.OriginalSize)
}

// Outcome is the result of one batch entry. Exactly one of Result and Err is set.
type Outcome struct {
	Index  int
	Path   string
	Result *Result
	Err    error
}

// OK reports whether the job succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Result != nil
}

// Message returns the failure message, or "" on success.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Failure kinds. Use errors.Is on a job error to classify it.
var (
	ErrIO                = errors.New("io error")
	ErrFormat            = errors.New("format error")
	ErrEncode            = errors.New("encode error")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrAborted           = errors.New("batch aborted")
	ErrCanceled          = errors.New("batch canceled")
)

// JobError is the failure of one job. Its message names the failing stage.
type JobError struct {
	Kind error
	Path string
	Msg  string
	Err  error
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *JobError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newJobError(kind error, path, msg string, cause error) *JobError {
	return &JobError{Kind: kind, Path: path, Msg: msg, Err: cause}
}

// Stage returns a short label for the failure kind of err, for logs and stats.
func Stage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrFormat):
		return "decode"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "unknown"
	}
}

// ProgressFunc is called once for every finished batch entry.
type ProgressFunc func(o Outcome)

// Compressor defines the interface for image compression.
type Compressor interface {
	// CompressSingle compresses one file synchronously.
	CompressSingle(path string, quality int, format Format) (Result, error)
	// CompressBatch compresses every path in parallel and returns one outcome
	// per input path, in input order.
	CompressBatch(ctx context.Context, req BatchRequest) []Outcome
}
