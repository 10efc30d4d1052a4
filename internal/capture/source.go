// Package capture provides push-based frame sources for the live processor.
//
// A Source delivers frames on its own goroutine. Each delivered frame is newly
// allocated and owned by the receiver.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmylchreest/brickify/internal/config"
	"github.com/jmylchreest/brickify/internal/frame"
)

// ErrUnavailable is returned by Start when the source cannot produce frames.
var ErrUnavailable = errors.New("capture source unavailable")

// Source pushes frames to a callback until stopped.
type Source interface {
	// Start begins delivery. It returns an error, and never calls deliver,
	// if the source cannot start. deliver must not block for long.
	Start(ctx context.Context, deliver func(*frame.Frame)) error
	// Stop ends delivery and waits for the delivering goroutine to exit.
	Stop()
	// Name identifies the source in logs.
	Name() string
}

// FromConfig builds the configured source.
func FromConfig(cfg config.CaptureConfig) (Source, error) {
	switch cfg.Source {
	case "pattern":
		return NewPattern(cfg.Width, cfg.Height, cfg.FrameRate), nil
	case "file":
		return NewFile(cfg.Path, cfg.Loop), nil
	case "none", "":
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
	}
}

// Unavailable is a source that never starts.
type Unavailable struct{}

// Start implements Source.
func (Unavailable) Start(context.Context, func(*frame.Frame)) error { return ErrUnavailable }

// Stop implements Source.
func (Unavailable) Stop() {}

// Name implements Source.
func (Unavailable) Name() string { return "none" }

// loop runs one delivery goroutine and lets Stop wait for it.
type loop struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func (l *loop) start(ctx context.Context, run func(ctx context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return errors.New("capture already started")
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.running = true
	go func(done chan struct{}) {
		defer close(done)
		run(ctx)
	}(l.done)
	return nil
}

func (l *loop) stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	done := l.done
	l.mu.Unlock()
	<-done
}

// sleepUntil waits for deadline or ctx.
func sleepUntil(ctx context.Context, deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
