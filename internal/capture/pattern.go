package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/brickify/internal/frame"
	"github.com/jmylchreest/brickify/internal/testsrc"
)

// Pattern is a synthetic camera producing moving color bars at a fixed rate.
type Pattern struct {
	width     int
	height    int
	frameRate int

	loop loop
}

// NewPattern creates a pattern source.
func NewPattern(width, height, frameRate int) *Pattern {
	return &Pattern{width: width, height: height, frameRate: frameRate}
}

// Name implements Source.
func (p *Pattern) Name() string {
	return fmt.Sprintf("pattern %dx%d@%d", p.width, p.height, p.frameRate)
}

// Start implements Source.
func (p *Pattern) Start(ctx context.Context, deliver func(*frame.Frame)) error {
	if p.width <= 0 || p.height <= 0 || p.frameRate <= 0 {
		return fmt.Errorf("%w: invalid pattern geometry %dx%d@%d", ErrUnavailable, p.width, p.height, p.frameRate)
	}
	interval := time.Second / time.Duration(p.frameRate)
	return p.loop.start(ctx, func(ctx context.Context) {
		start := time.Now()
		for n := 0; ; n++ {
			if !sleepUntil(ctx, start.Add(time.Duration(n)*interval)) {
				return
			}
			f := frame.New(p.width, p.height)
			testsrc.Pattern(f, n)
			f.PTS = time.Duration(n) * interval
			deliver(f)
		}
	})
}

// Stop implements Source.
func (p *Pattern) Stop() { p.loop.stop() }
