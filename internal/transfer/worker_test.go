package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vharsh/s3par/internal/planner"
)

func shortRetryWait(t *testing.T) {
	t.Helper()
	old := retryWait
	retryWait = 5 * time.Millisecond
	t.Cleanup(func() { retryWait = old })
}

// memWriter is an in-memory positioned-write sink standing in for the
// pre-allocated destination file.
type memWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *memWriter) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if need := off + int64(len(p)); int64(len(w.data)) < need {
		grown := make([]byte, need)
		copy(grown, w.data)
		w.data = grown
	}
	copy(w.data[off:], p)
	return len(p), nil
}

// scriptedOpener serves each OpenRange call from a queue of behaviors,
// then keeps serving the last one.
type scriptedOpener struct {
	mu    sync.Mutex
	calls int
	serve []func(start, end int64) (io.ReadCloser, error)
}

func (o *scriptedOpener) OpenRange(_ context.Context, _, _ string, start, end int64) (io.ReadCloser, error) {
	o.mu.Lock()
	idx := o.calls
	o.calls++
	if idx >= len(o.serve) {
		idx = len(o.serve) - 1
	}
	fn := o.serve[idx]
	o.mu.Unlock()
	return fn(start, end)
}

func (o *scriptedOpener) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func serveBytes(data []byte) func(start, end int64) (io.ReadCloser, error) {
	return func(start, end int64) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data[start : end+1])), nil
	}
}

func serveError(err error) func(start, end int64) (io.ReadCloser, error) {
	return func(_, _ int64) (io.ReadCloser, error) {
		return nil, err
	}
}

// servePartial yields the first n bytes of the range and then fails.
func servePartial(data []byte, n int64, err error) func(start, end int64) (io.ReadCloser, error) {
	return func(start, end int64) (io.ReadCloser, error) {
		partial := data[start : start+n]
		return io.NopCloser(io.MultiReader(bytes.NewReader(partial), &failReader{err: err})), nil
	}
}

type failReader struct{ err error }

func (r *failReader) Read([]byte) (int, error) { return 0, r.err }

func testPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 31)
	}
	return data
}

func TestRunTaskWritesRange(t *testing.T) {
	data := testPattern(4096)
	opener := &scriptedOpener{serve: []func(int64, int64) (io.ReadCloser, error){serveBytes(data)}}
	dest := &memWriter{}
	state := NewState(int64(len(data)))
	task := Task{Range: planner.ByteRange{Start: 1024, End: 3071}, Bucket: "b", Key: "k", MaxRetries: 3}

	err := runTask(context.Background(), opener, task, dest, state, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, opener.callCount())
	assert.Equal(t, int64(2048), state.Written())
	assert.Equal(t, data[1024:3072], dest.data[1024:3072])
}

func TestRunTaskRetriesThenSucceeds(t *testing.T) {
	shortRetryWait(t)
	data := testPattern(2048)
	transient := errors.New("connection reset")
	opener := &scriptedOpener{serve: []func(int64, int64) (io.ReadCloser, error){
		serveError(transient),
		serveError(transient),
		serveBytes(data),
	}}
	dest := &memWriter{}
	state := NewState(int64(len(data)))
	task := Task{Range: planner.ByteRange{Start: 0, End: 2047}, Bucket: "b", Key: "k", MaxRetries: 5}

	err := runTask(context.Background(), opener, task, dest, state, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, opener.callCount())
	assert.Equal(t, data, dest.data)
	assert.Equal(t, int64(len(data)), state.Written())
}

func TestRunTaskMidStreamFailureDoesNotDoubleCount(t *testing.T) {
	shortRetryWait(t)
	data := testPattern(4096)
	opener := &scriptedOpener{serve: []func(int64, int64) (io.ReadCloser, error){
		servePartial(data, 1000, errors.New("stream broke")),
		serveBytes(data),
	}}
	dest := &memWriter{}
	state := NewState(int64(len(data)))
	task := Task{Range: planner.ByteRange{Start: 0, End: 4095}, Bucket: "b", Key: "k", MaxRetries: 2}

	err := runTask(context.Background(), opener, task, dest, state, zerolog.Nop())
	require.NoError(t, err)
	// Credit from the failed attempt must be backed out: the counter ends
	// at exactly the range length, not length + 1000.
	assert.Equal(t, int64(4096), state.Written())
	assert.Equal(t, data, dest.data)
}

func TestRunTaskCancelledBeforeStart(t *testing.T) {
	opener := &scriptedOpener{serve: []func(int64, int64) (io.ReadCloser, error){serveBytes(testPattern(64))}}
	state := NewState(64)
	state.Cancel()
	task := Task{Range: planner.ByteRange{Start: 0, End: 63}, Bucket: "b", Key: "k", MaxRetries: 3}

	err := runTask(context.Background(), opener, task, &memWriter{}, state, zerolog.Nop())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, opener.callCount(), "cancelled worker must not touch the network")
}

func TestRunTaskCancelledMidStream(t *testing.T) {
	data := testPattern(4 * readChunkSize)
	state := NewState(int64(len(data)))
	opener := &scriptedOpener{serve: []func(int64, int64) (io.ReadCloser, error){
		func(start, end int64) (io.ReadCloser, error) {
			return io.NopCloser(&cancellingReader{r: bytes.NewReader(data), state: state}), nil
		},
	}}
	task := Task{Range: planner.ByteRange{Start: 0, End: int64(len(data)) - 1}, Bucket: "b", Key: "k", MaxRetries: 3}

	err := runTask(context.Background(), opener, task, &memWriter{}, state, zerolog.Nop())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, opener.callCount())
}

// cancellingReader flips the shared cancel flag after the first read so
// the worker observes it at the next chunk boundary.
type cancellingReader struct {
	r     io.Reader
	state *State
	reads int
}

func (c *cancellingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.reads++
	if c.reads == 1 {
		c.state.Cancel()
	}
	return n, err
}

func TestRunTaskRetriesExhausted(t *testing.T) {
	shortRetryWait(t)
	opener := &scriptedOpener{serve: []func(int64, int64) (io.ReadCloser, error){
		serveError(errors.New("throttled")),
	}}
	state := NewState(1024)
	task := Task{Range: planner.ByteRange{Start: 0, End: 1023}, Bucket: "b", Key: "k", MaxRetries: 2}

	err := runTask(context.Background(), opener, task, &memWriter{}, state, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, opener.callCount(), "initial attempt plus two retries")
	assert.Equal(t, int64(0), state.Written())
}

func TestRunTaskShortRangeFails(t *testing.T) {
	shortRetryWait(t)
	data := testPattern(100)
	opener := &scriptedOpener{serve: []func(int64, int64) (io.ReadCloser, error){
		// Server keeps returning fewer bytes than the range asked for.
		func(start, end int64) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data[start : end-9])), nil
		},
	}}
	state := NewState(int64(len(data)))
	task := Task{Range: planner.ByteRange{Start: 0, End: 99}, Bucket: "b", Key: "k", MaxRetries: 1}

	err := runTask(context.Background(), opener, task, &memWriter{}, state, zerolog.Nop())
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int64(0), state.Written(), "short attempts must not leave stale credit")
}
