// Package progress renders a live status line for an in-flight download.
// The monitor only observes the shared transfer state; it never changes
// the course of the download.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vharsh/s3par/internal/utils"
)

const (
	defaultInterval = 100 * time.Millisecond
	defaultWindow   = 20
	defaultBarWidth = 30
)

type sample struct {
	at    time.Time
	bytes int64
}

// Config wires the monitor to a download. Current and Cancelled are read
// on every tick.
type Config struct {
	Total     int64
	Current   func() int64
	Cancelled func() bool
	Out       io.Writer
	Interval  time.Duration
	Window    int
	BarWidth  int
}

type Monitor struct {
	cfg     Config
	samples []sample
	doneCh  chan struct{}
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.BarWidth <= 0 {
		cfg.BarWidth = defaultBarWidth
	}
	return &Monitor{
		cfg:    cfg,
		doneCh: make(chan struct{}),
	}
}

// Start launches the render loop. Call Wait to join it.
func (m *Monitor) Start() {
	go m.loop()
}

// Wait blocks until the monitor has performed its final render and
// stopped.
func (m *Monitor) Wait() {
	<-m.doneCh
}

func (m *Monitor) loop() {
	defer close(m.doneCh)
	fmt.Fprint(m.cfg.Out, "\033[?25l") // hide cursor
	defer fmt.Fprint(m.cfg.Out, "\033[?25h\n")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for range ticker.C {
		current := m.cfg.Current()
		m.observe(sample{at: time.Now(), bytes: current})
		fmt.Fprintf(m.cfg.Out, "\r%s", m.renderLine(current, m.speed()))
		if m.cfg.Cancelled() {
			return
		}
		if current >= m.cfg.Total && m.cfg.Total > 0 {
			return
		}
	}
}

// observe appends a sample, keeping the window bounded.
func (m *Monitor) observe(s sample) {
	m.samples = append(m.samples, s)
	if len(m.samples) > m.cfg.Window {
		m.samples = m.samples[len(m.samples)-m.cfg.Window:]
	}
}

// speed computes the moving-average throughput in bytes per second
// between the oldest and newest window samples. Zero elapsed time
// reports zero, never a division error.
func (m *Monitor) speed() float64 {
	if len(m.samples) < 2 {
		return 0
	}
	oldest := m.samples[0]
	newest := m.samples[len(m.samples)-1]
	elapsed := newest.at.Sub(oldest.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(newest.bytes-oldest.bytes) / elapsed
}

func (m *Monitor) renderLine(current int64, speed float64) string {
	return fmt.Sprintf("%s %s / %s | %s/s   ",
		utils.ProgressBar(current, m.cfg.Total, m.cfg.BarWidth),
		utils.FormatBytes(uint64(max(current, 0))),
		utils.FormatBytes(uint64(m.cfg.Total)),
		utils.FormatBytes(uint64(speed)),
	)
}
