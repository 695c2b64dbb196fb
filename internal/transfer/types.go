package transfer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/vharsh/s3par/internal/planner"
)

var (
	ErrDestinationExists = errors.New("destination file exists, use --force to overwrite")
	ErrRetriesExhausted  = errors.New("part download retries exhausted")
	ErrCancelled         = errors.New("download cancelled")
)

// ObjectStore is the remote-object collaborator. *s3client.Store is the
// production implementation.
type ObjectStore interface {
	StatObject(ctx context.Context, bucket, key string) (int64, error)
	OpenRange(ctx context.Context, bucket, key string, start, end int64) (io.ReadCloser, error)
	DownloadSmall(ctx context.Context, bucket, key string, w io.WriterAt, report func(int64)) (int64, error)
}

// Task is one byte range to fetch. A task is created once by the
// coordinator and owned by exactly one worker until it terminates.
type Task struct {
	Range      planner.ByteRange
	Bucket     string
	Key        string
	MaxRetries int
}

// Options configures a download.
type Options struct {
	Workers    int
	PartSize   int64
	MaxRetries int
	Force      bool // overwrite an existing destination
	Clean      bool // remove the partial file on abort or failure
	Progress   bool // render the live progress bar
}

type Status int

const (
	StatusCompleted Status = iota
	StatusAborted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	default:
		return "failed"
	}
}

// Result is the terminal outcome of one download.
type Result struct {
	Status  Status
	Elapsed time.Duration
	Bytes   int64
	Err     error
	// PartialPath names the incomplete file left on disk after an abort
	// or failure without cleanup. Empty otherwise.
	PartialPath string
}

func (r Result) AvgBytesPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Elapsed.Seconds()
}
