package container

import "time"

// Timing places one sample on its track's timeline, in track timescale ticks.
// Timings are carried through the pipeline untouched so timestamps are never
// re-quantized.
type Timing struct {
	// DTS is the decode timestamp.
	DTS int64
	// PTSOffset is the presentation offset relative to DTS.
	PTSOffset int32
	// Duration is the sample duration.
	Duration uint32
	// Sync marks a random access point.
	Sync bool
}

// PTS returns the presentation timestamp in ticks.
func (t Timing) PTS() int64 {
	return t.DTS + int64(t.PTSOffset)
}

// Sample is one compressed access unit with its timing.
type Sample struct {
	Timing
	Payload []byte
}

// TicksToDuration converts a tick count to wall-clock time without overflowing
// for long timelines.
func TicksToDuration(ticks int64, timeScale uint32) time.Duration {
	if timeScale == 0 {
		return 0
	}
	ts := int64(timeScale)
	return time.Duration(ticks/ts)*time.Second + time.Duration(ticks%ts)*time.Second/time.Duration(ts)
}

// DurationToTicks converts wall-clock time to ticks, truncating.
func DurationToTicks(d time.Duration, timeScale uint32) int64 {
	ts := int64(timeScale)
	sec := int64(d / time.Second)
	rem := int64(d % time.Second)
	return sec*ts + rem*ts/int64(time.Second)
}
