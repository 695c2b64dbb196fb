package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Workers stream their range in fixed-size chunks so memory use stays
// bounded regardless of part size and cancellation latency stays at one
// chunk read.
const readChunkSize = 1024 * 1024

// Range requests are independent and bucket-side throttling is the usual
// transient cause, so the wait is a flat interval rather than exponential.
var retryWait = 3 * time.Second

type rangeOpener interface {
	OpenRange(ctx context.Context, bucket, key string, start, end int64) (io.ReadCloser, error)
}

// runTask downloads one byte range into dest, retrying the whole range
// from its original offset on transient errors. Progress credited during
// a failed attempt is backed out before the re-fetch.
func runTask(ctx context.Context, store rangeOpener, task Task, dest io.WriterAt, state *State, log zerolog.Logger) error {
	var lastErr error
	for attempt := 0; attempt <= task.MaxRetries; attempt++ {
		if state.Cancelled() {
			return ErrCancelled
		}
		if attempt > 0 {
			log.Debug().Int("attempt", attempt+1).Int("maxRetries", task.MaxRetries+1).
				Int64("start", task.Range.Start).Msg("Retrying part download")
			select {
			case <-time.After(retryWait):
			case <-state.Done():
				return ErrCancelled
			case <-ctx.Done():
				return ErrCancelled
			}
		}
		credited, err := fetchPart(ctx, store, task, dest, state)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || state.Cancelled() {
			return ErrCancelled
		}
		state.Discard(credited)
		log.Debug().Err(err).Int("attempt", attempt+1).Int64("start", task.Range.Start).Msg("Error downloading part")
		lastErr = err
	}
	return fmt.Errorf("part %d-%d: %w after %d attempts: %w",
		task.Range.Start, task.Range.End, ErrRetriesExhausted, task.MaxRetries+1, lastErr)
}

// fetchPart performs one attempt: a single ranged GET streamed to the
// destination at the correct offsets. It returns how many bytes were
// credited to the shared counter during this attempt so the caller can
// back them out on retry.
func fetchPart(ctx context.Context, store rangeOpener, task Task, dest io.WriterAt, state *State) (int64, error) {
	body, err := store.OpenRange(ctx, task.Bucket, task.Key, task.Range.Start, task.Range.End)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	var credited int64
	buffer := make([]byte, readChunkSize)
	offset := task.Range.Start
	for {
		if state.Cancelled() {
			return credited, ErrCancelled
		}
		n, readErr := body.Read(buffer)
		if n > 0 {
			if _, writeErr := dest.WriteAt(buffer[:n], offset); writeErr != nil {
				return credited, fmt.Errorf("error writing at offset %d: %w", offset, writeErr)
			}
			offset += int64(n)
			state.Add(int64(n))
			credited += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return credited, readErr
		}
	}
	if got := offset - task.Range.Start; got != task.Range.Length() {
		return credited, fmt.Errorf("size mismatch: expected %d bytes, got %d", task.Range.Length(), got)
	}
	return credited, nil
}
