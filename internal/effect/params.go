// Package effect implements the brick stud effect applied to every frame.
package effect

import (
	"errors"
	"fmt"
)

// Default block size bounds.
const (
	DefaultMinBlockSize = 10
	DefaultMaxBlockSize = 40
	DefaultStep         = 5
	DefaultBlockSize    = 20
)

// Params holds the parameters of a single render call.
type Params struct {
	BlockSize int
}

// Bounds constrains the block sizes a collaborator can choose.
type Bounds struct {
	Min  int
	Max  int
	Step int
}

// DefaultBounds returns the recognized 10..40 range in steps of 5.
func DefaultBounds() Bounds {
	return Bounds{Min: DefaultMinBlockSize, Max: DefaultMaxBlockSize, Step: DefaultStep}
}

// Validate checks that the bounds describe a non-empty stepped range.
func (b Bounds) Validate() error {
	if b.Min < 1 {
		return fmt.Errorf("minimum block size must be at least 1, got %d", b.Min)
	}
	if b.Max < b.Min {
		return fmt.Errorf("maximum block size %d is below minimum %d", b.Max, b.Min)
	}
	if b.Step < 1 {
		return errors.New("block size step must be at least 1")
	}
	return nil
}

// Clamp forces size into [Min, Max] and snaps it down onto the step grid
// anchored at Min.
func (b Bounds) Clamp(size int) int {
	if size <= b.Min {
		return b.Min
	}
	if size > b.Max {
		size = b.Max
	}
	if b.Step > 1 {
		size = b.Min + (size-b.Min)/b.Step*b.Step
	}
	return size
}

// Increase returns the next larger block size, saturating at Max.
func (b Bounds) Increase(size int) int {
	return b.Clamp(b.Clamp(size) + b.Step)
}

// Decrease returns the next smaller block size, saturating at Min.
func (b Bounds) Decrease(size int) int {
	return b.Clamp(b.Clamp(size) - b.Step)
}

// Params returns render parameters for a clamped block size.
func (b Bounds) Params(size int) Params {
	return Params{BlockSize: b.Clamp(size)}
}
