package transfer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateCounter(t *testing.T) {
	state := NewState(1000)
	assert.Equal(t, int64(1000), state.Total())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				state.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), state.Written())

	state.Discard(250)
	assert.Equal(t, int64(750), state.Written())
	state.Discard(-5) // negative discards are ignored
	assert.Equal(t, int64(750), state.Written())
}

func TestStateCancelIdempotent(t *testing.T) {
	state := NewState(10)
	assert.False(t, state.Cancelled())

	state.Cancel()
	state.Cancel()
	assert.True(t, state.Cancelled())

	select {
	case <-state.Done():
	default:
		t.Fatal("done channel should be closed after cancel")
	}
}
