// Package transfer implements the parallel range-download engine: the
// shared transfer state, the part workers, and the coordinator that
// drives one download from validation to a terminal result.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vharsh/s3par/internal/planner"
	"github.com/vharsh/s3par/internal/progress"
	"github.com/vharsh/s3par/internal/s3client"
	"github.com/vharsh/s3par/internal/utils"
)

const (
	defaultWorkers    = 4
	defaultPartSize   = 64 * 1024 * 1024
	defaultMaxRetries = 5
)

// Coordinator owns the destination file lifecycle and orchestrates the
// worker pool for one download at a time.
type Coordinator struct {
	store ObjectStore
	opts  Options
}

func New(store ObjectStore, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.PartSize <= 0 {
		opts.PartSize = defaultPartSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Coordinator{store: store, opts: opts}
}

// Download fetches src (an s3://bucket/key URL) into dest. External
// interruption arrives through ctx; the shared cancel flag fans it out
// to the workers and the progress monitor.
func (c *Coordinator) Download(ctx context.Context, src, dest string) Result {
	start := time.Now()
	log := utils.GetLogger("transfer").With().Str("transfer", uuid.NewString()[:8]).Logger()

	bucket, key, err := s3client.ParseURL(src)
	if err != nil {
		return Result{Status: StatusFailed, Elapsed: time.Since(start), Err: err}
	}

	dest, err = resolveDestination(dest, key, c.opts.Force)
	if err != nil {
		return Result{Status: StatusFailed, Elapsed: time.Since(start), Err: err}
	}

	size, err := c.store.StatObject(ctx, bucket, key)
	if err != nil {
		return Result{Status: StatusFailed, Elapsed: time.Since(start), Err: err}
	}
	log.Info().Msgf("Source: s3://%s/%s", bucket, key)
	log.Info().Msgf("Dest:   %s", dest)
	log.Info().Msgf("Size:   %s", utils.FormatBytes(uint64(size)))
	if c.opts.Clean {
		log.Info().Msg("Clean:  enabled, partial file removed on abort")
	}

	state := NewState(size)

	// Fan the external interrupt into the shared cancel flag. The watcher
	// exits once the download settles so it never outlives the call.
	settled := make(chan struct{})
	defer close(settled)
	go func() {
		select {
		case <-ctx.Done():
			state.Cancel()
		case <-settled:
		}
	}()

	var mon *progress.Monitor
	if c.opts.Progress {
		mon = progress.NewMonitor(progress.Config{
			Total:     size,
			Current:   state.Written,
			Cancelled: state.Cancelled,
		})
		mon.Start()
	}

	var downloadErr error
	if size < planner.SmallObjectThreshold {
		log.Info().Msgf("Downloading small object (<%s) directly", utils.FormatBytes(planner.SmallObjectThreshold))
		downloadErr = c.downloadDirect(ctx, bucket, key, dest, state)
	} else {
		downloadErr = c.downloadRanged(ctx, bucket, key, dest, size, state, log)
	}

	// Unblock the monitor regardless of how the download ended, then wait
	// for its final render. On success the written counter already covers
	// the total, so the cancel only matters on the error paths.
	state.Cancel()
	if mon != nil {
		mon.Wait()
	}

	return c.settle(dest, state.Written(), downloadErr, start, log)
}

// downloadDirect is the single-stream path for objects below the
// small-object threshold. No range plan, no worker pool.
func (c *Coordinator) downloadDirect(ctx context.Context, bucket, key, dest string, state *State) error {
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}
	defer file.Close()
	_, err = c.store.DownloadSmall(ctx, bucket, key, file, state.Add)
	return err
}

// downloadRanged pre-sizes the destination, splits the object into parts,
// and drains them through a bounded worker pool.
func (c *Coordinator) downloadRanged(ctx context.Context, bucket, key, dest string, size int64, state *State, log zerolog.Logger) error {
	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}
	defer file.Close()
	// Pre-allocate so workers can write their offsets concurrently.
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("error pre-sizing destination file: %w", err)
	}

	ranges := planner.Plan(size, c.opts.PartSize)
	numWorkers := min(c.opts.Workers, len(ranges))
	log.Debug().Int("parts", len(ranges)).Int("workers", numWorkers).
		Int64("partSize", c.opts.PartSize).Msg("Dispatching range plan")

	taskCh := make(chan Task, len(ranges))
	for _, r := range ranges {
		taskCh <- Task{Range: r, Bucket: bucket, Key: key, MaxRetries: c.opts.MaxRetries}
	}
	close(taskCh)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				if state.Cancelled() {
					return
				}
				if err := runTask(ctx, c.store, task, file, state, log); err != nil {
					if errors.Is(err, ErrCancelled) {
						return
					}
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					// A fatal part failure sinks the whole download.
					state.Cancel()
					return
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if state.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// settle turns the raw download error into a terminal Result and applies
// the partial-file disposition policy.
func (c *Coordinator) settle(dest string, written int64, downloadErr error, start time.Time, log zerolog.Logger) Result {
	elapsed := time.Since(start)
	if downloadErr == nil {
		log.Info().Msgf("Finished in %.2fs (avg %s)", elapsed.Seconds(), utils.FormatSpeed(written, elapsed.Seconds()))
		return Result{Status: StatusCompleted, Elapsed: elapsed, Bytes: written}
	}

	result := Result{Elapsed: elapsed, Bytes: written}
	if errors.Is(downloadErr, ErrCancelled) || errors.Is(downloadErr, context.Canceled) {
		result.Status = StatusAborted
		log.Warn().Msg("Download aborted by user")
	} else {
		result.Status = StatusFailed
		result.Err = downloadErr
		log.Error().Err(downloadErr).Msg("Download failed")
	}

	if c.opts.Clean {
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			log.Error().Err(err).Msgf("Could not remove partial file %s", dest)
			result.PartialPath = dest
		} else {
			log.Warn().Msgf("Removed incomplete file: %s", dest)
		}
	} else if utils.FileExists(dest) {
		result.PartialPath = dest
		log.Warn().Msgf("Incomplete file kept: %s (use --clean to auto-delete)", dest)
	}
	return result
}

// resolveDestination derives the final file path: directory destinations
// get the key's base name appended, and an existing file is only
// overwritten when force is set.
func resolveDestination(dest, key string, force bool) (string, error) {
	if dest == "" {
		dest = filepath.Base(key)
	} else if utils.DirectoryExists(dest) {
		dest = filepath.Join(dest, filepath.Base(key))
	}
	if utils.FileExists(dest) {
		if !force {
			return "", fmt.Errorf("%w: %s", ErrDestinationExists, dest)
		}
		if err := os.Remove(dest); err != nil {
			return "", fmt.Errorf("error removing existing destination: %w", err)
		}
	}
	return dest, nil
}
