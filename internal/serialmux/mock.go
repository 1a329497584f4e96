package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/imufusion/internal/monitoring"
	"github.com/banshee-data/imufusion/internal/timeutil"
)

var errPortClosed = errors.New("serial port closed")

// ReplayPort implements SerialPorter by streaming a fixed set of lines,
// one per tick, as if read from a device. Writes are recorded.
type ReplayPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer

	stop     chan struct{}
	stopOnce sync.Once
}

// NewReplayPort starts streaming lines every period. With loop set the
// lines repeat until Close; otherwise reads return io.EOF after the last.
func NewReplayPort(lines []string, period time.Duration, loop bool, clock timeutil.Clock) *ReplayPort {
	r, w := io.Pipe()
	p := &ReplayPort{r: r, w: w, stop: make(chan struct{})}

	go func() {
		defer w.Close()
		if len(lines) == 0 {
			return
		}
		ticker := clock.NewTicker(period)
		defer ticker.Stop()
		for i := 0; ; i++ {
			if i == len(lines) {
				if !loop {
					return
				}
				i = 0
			}
			select {
			case <-p.stop:
				return
			case <-ticker.C():
			}
			if _, err := io.WriteString(w, lines[i]+"\n"); err != nil {
				return
			}
		}
	}()
	return p
}

func (p *ReplayPort) Read(b []byte) (int, error) { return p.r.Read(b) }

// Write records b; commands sent to a replayed device have no effect.
func (p *ReplayPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

// Written returns everything written so far.
func (p *ReplayPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// Close stops the stream.
func (p *ReplayPort) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return p.r.Close()
}

// NewMockSerialMux creates a SerialMux that replays lines every period
// until closed.
func NewMockSerialMux(lines []string, period time.Duration) *SerialMux[*ReplayPort] {
	monitoring.Logf("replaying %d IMU lines every %s", len(lines), period)
	return NewSerialMux(NewReplayPort(lines, period, true, timeutil.RealClock{}))
}

// BufferPort is an in-memory SerialPorter. Reads drain what Feed added,
// returning io.EOF when empty; writes are recorded.
type BufferPort struct {
	mu      sync.Mutex
	in      bytes.Buffer
	written bytes.Buffer
	timeout time.Duration
	closed  bool
}

// NewBufferPort returns an open, empty BufferPort.
func NewBufferPort() *BufferPort { return &BufferPort{} }

// Feed queues data for Read.
func (p *BufferPort) Feed(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.WriteString(data)
}

func (p *BufferPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	return p.in.Read(b)
}

func (p *BufferPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	return p.written.Write(b)
}

// Written returns everything written so far.
func (p *BufferPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// SetReadTimeout implements TimeoutSerialPorter.
func (p *BufferPort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
	return nil
}

// ReadTimeout returns the last timeout set.
func (p *BufferPort) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

func (p *BufferPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
