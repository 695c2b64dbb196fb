package progress

import (
	"bytes"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeedZeroElapsed(t *testing.T) {
	m := NewMonitor(Config{Total: 100})
	now := time.Now()
	m.observe(sample{at: now, bytes: 0})
	m.observe(sample{at: now, bytes: 50})
	assert.Equal(t, float64(0), m.speed())
}

func TestSpeedMovingAverage(t *testing.T) {
	m := NewMonitor(Config{Total: 1000})
	now := time.Now()
	m.observe(sample{at: now, bytes: 0})
	m.observe(sample{at: now.Add(time.Second), bytes: 100})
	m.observe(sample{at: now.Add(2 * time.Second), bytes: 300})
	// 300 bytes over 2 seconds between oldest and newest
	assert.InDelta(t, 150.0, m.speed(), 0.001)
}

func TestSpeedSingleSample(t *testing.T) {
	m := NewMonitor(Config{Total: 100})
	m.observe(sample{at: time.Now(), bytes: 10})
	assert.Equal(t, float64(0), m.speed())
}

func TestWindowBounded(t *testing.T) {
	m := NewMonitor(Config{Total: 100, Window: 5})
	now := time.Now()
	for i := 0; i < 50; i++ {
		m.observe(sample{at: now.Add(time.Duration(i) * time.Second), bytes: int64(i)})
	}
	require.Len(t, m.samples, 5)
	assert.Equal(t, int64(45), m.samples[0].bytes)
}

func TestRenderLine(t *testing.T) {
	m := NewMonitor(Config{Total: 10 * 1024 * 1024})
	line := m.renderLine(5*1024*1024, 1024*1024)
	assert.Contains(t, line, "50.0%")
	assert.Contains(t, line, "5.00 MB")
	assert.Contains(t, line, "10.00 MB")
	assert.Contains(t, line, "1.00 MB/s")
}

func TestMonitorStopsOnCompletion(t *testing.T) {
	var buf bytes.Buffer
	var current atomic.Int64
	current.Store(100)
	m := NewMonitor(Config{
		Total:     100,
		Current:   current.Load,
		Cancelled: func() bool { return false },
		Out:       &buf,
		Interval:  time.Millisecond,
	})
	m.Start()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after reaching total")
	}
	assert.True(t, strings.Contains(buf.String(), "100.0%"))
}

func TestMonitorStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	var cancelled atomic.Bool
	m := NewMonitor(Config{
		Total:     1 << 30,
		Current:   func() int64 { return 0 },
		Cancelled: cancelled.Load,
		Out:       &buf,
		Interval:  time.Millisecond,
	})
	m.Start()
	cancelled.Store(true)

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}
