// Package bufpool provides a fixed-capacity pool of reusable frame buffers.
package bufpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/jmylchreest/brickify/internal/frame"
)

// Policy selects what Acquire does when every buffer is in use.
type Policy string

// Exhaustion policies.
const (
	// PolicyBlock waits for a release or context cancellation.
	PolicyBlock Policy = "block"
	// PolicyFail returns ErrExhausted immediately.
	PolicyFail Policy = "fail"
)

// Pool errors.
var (
	ErrExhausted     = errors.New("pixel buffer pool exhausted")
	ErrClosed        = errors.New("pixel buffer pool closed")
	ErrForeignBuffer = errors.New("buffer does not belong to this pool")
	ErrNotInUse      = errors.New("buffer is not in use")
)

// Config describes the buffers a pool hands out.
type Config struct {
	Width  int
	Height int
	// Size is the number of buffers. It never changes after construction.
	Size   int
	Policy Policy

	// MaxBytes caps the total pixel memory of the pool. Zero means no cap.
	MaxBytes int64
}

// Footprint returns the pixel memory the pool would allocate.
func (c Config) Footprint() int64 {
	return int64(c.Width) * int64(c.Height) * int64(frame.FormatRGBA.BytesPerPixel()) * int64(c.Size)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid buffer geometry %dx%d", c.Width, c.Height)
	}
	if c.Size < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", c.Size)
	}
	switch c.Policy {
	case PolicyBlock, PolicyFail:
	default:
		return fmt.Errorf("unknown exhaustion policy %q", c.Policy)
	}
	if c.MaxBytes > 0 && c.Footprint() > c.MaxBytes {
		return fmt.Errorf("pool of %d %dx%d buffers needs %s, limit is %s",
			c.Size, c.Width, c.Height, humanize.IBytes(uint64(c.Footprint())), humanize.IBytes(uint64(c.MaxBytes)))
	}
	return nil
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Capacity     int
	InUse        int
	Acquisitions uint64
	Exhaustions  uint64
}

// Pool hands out RGBA frames of one geometry. All methods are safe for
// concurrent use.
type Pool struct {
	cfg  Config
	free chan *frame.Frame

	mu     sync.Mutex
	owned  map[*frame.Frame]bool // value is true while checked out
	closed bool
	done   chan struct{}

	acquisitions atomic.Uint64
	exhaustions  atomic.Uint64
}

// New allocates every buffer up front.
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:   cfg,
		free:  make(chan *frame.Frame, cfg.Size),
		owned: make(map[*frame.Frame]bool, cfg.Size),
		done:  make(chan struct{}),
	}
	for i := 0; i < cfg.Size; i++ {
		f := frame.New(cfg.Width, cfg.Height)
		p.owned[f] = false
		p.free <- f
	}
	return p, nil
}

// Config returns the pool configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Acquire checks out a buffer. The buffer's contents are whatever the previous
// holder left behind.
func (p *Pool) Acquire(ctx context.Context) (*frame.Frame, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}

	select {
	case f := <-p.free:
		return p.checkout(f)
	default:
	}

	p.exhaustions.Add(1)
	if p.cfg.Policy == PolicyFail {
		return nil, ErrExhausted
	}

	select {
	case f := <-p.free:
		return p.checkout(f)
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) checkout(f *frame.Frame) (*frame.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	p.owned[f] = true
	p.acquisitions.Add(1)
	return f, nil
}

// Release returns a buffer to the pool. Releasing a buffer the pool did not hand
// out, or releasing one twice, is rejected without affecting the pool.
func (p *Pool) Release(f *frame.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	inUse, ok := p.owned[f]
	if !ok {
		return ErrForeignBuffer
	}
	if !inUse {
		return ErrNotInUse
	}
	p.owned[f] = false
	if p.closed {
		return nil
	}
	// Cannot block: the channel holds every owned buffer.
	p.free <- f
	return nil
}

// Close wakes blocked acquirers with ErrClosed and returns how many buffers were
// still checked out. Later releases are accepted and discarded.
func (p *Pool) Close() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return p.inUseLocked()
}

// Stats returns current usage counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inUse := p.inUseLocked()
	p.mu.Unlock()
	return Stats{
		Capacity:     p.cfg.Size,
		InUse:        inUse,
		Acquisitions: p.acquisitions.Load(),
		Exhaustions:  p.exhaustions.Load(),
	}
}

func (p *Pool) inUseLocked() int {
	n := 0
	for _, inUse := range p.owned {
		if inUse {
			n++
		}
	}
	return n
}
