// Package progress renders transfer progress for interactive runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
)

// Options configures the progress reporter.
type Options struct {
	// TotalBytes is the estimated size of the run, 0 when unknown.
	TotalBytes int64

	// TotalFiles is the number of resolved entries.
	TotalFiles int

	// Output is where progress lines go.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often a progress line is written.
	// Default: 5s
	UpdateInterval time.Duration
}

// Reporter counts bytes from every worker and periodically prints a summary
// line. Counters are atomics so workers never wait on the printer.
type Reporter struct {
	opts   Options
	logger *zap.Logger

	bytes     atomic.Int64
	active    atomic.Int32
	finished  atomic.Int32
	startTime time.Time

	mu        sync.Mutex
	lastBytes int64
	lastTick  time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options, logger *zap.Logger) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = 5 * time.Second
	}
	return &Reporter{
		opts:   opts,
		logger: logger.Named("progress"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Expect sets the totals shown in progress lines. Call it before Start.
func (r *Reporter) Expect(files int, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.opts.TotalFiles = files
	r.opts.TotalBytes = bytes
}

// Start begins periodic output.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastTick = r.startTime

	if r.opts.TotalBytes > 0 {
		fmt.Fprintf(r.opts.Output, "[tlcfetch] %d files, about %s\n",
			r.opts.TotalFiles, humanize.IBytes(uint64(r.opts.TotalBytes)))
	}
	go r.loop()
}

// Stop prints the final line and waits for the printer to exit.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// Started marks a file transfer as in progress.
func (r *Reporter) Started(entry catalog.Entry, offset, total int64) {
	r.active.Add(1)
	r.logger.Debug("transfer started",
		zap.String("path", entry.RelPath),
		zap.String("offset", humanize.IBytes(uint64(offset))),
		zap.Int64("total", total),
	)
}

// Add records n more bytes received.
func (r *Reporter) Add(n int64) {
	r.bytes.Add(n)
}

// Finished marks a file transfer as done, successful or not.
func (r *Reporter) Finished(entry catalog.Entry) {
	r.active.Add(-1)
	r.finished.Add(1)
}

// Bytes returns the number of bytes received so far.
func (r *Reporter) Bytes() int64 {
	return r.bytes.Load()
}

func (r *Reporter) loop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinal()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	now := time.Now()
	received := r.bytes.Load()

	r.mu.Lock()
	elapsed := now.Sub(r.lastTick).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(received-r.lastBytes) / elapsed
	r.lastTick = now
	r.lastBytes = received
	r.mu.Unlock()

	line := fmt.Sprintf("[tlcfetch] %s received | %s/s | %d active | %d done",
		humanize.IBytes(uint64(received)),
		humanize.IBytes(uint64(speed)),
		r.active.Load(),
		r.finished.Load(),
	)
	if r.opts.TotalBytes > 0 {
		percent := float64(received) / float64(r.opts.TotalBytes) * 100
		line += fmt.Sprintf(" | %.1f%% of %s", percent, humanize.IBytes(uint64(r.opts.TotalBytes)))
	}
	fmt.Fprintln(r.opts.Output, line)
}

func (r *Reporter) printFinal() {
	received := r.bytes.Load()
	duration := time.Since(r.startTime)
	avg := float64(received) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "[tlcfetch] %s received in %s (%s/s average)\n",
		humanize.IBytes(uint64(received)),
		duration.Round(time.Millisecond),
		humanize.IBytes(uint64(avg)),
	)
}
