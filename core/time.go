package core

import (
	"time"

	"github.com/loov/hrtime"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) Time {
	var interval time.Duration
	if cfg.FramesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / (time.Duration)(cfg.FramesPerSecond)
	}

	return Time{
		fps:            cfg.FramesPerSecond,
		fpsTicker:      time.NewTicker(interval),
		eventPollDelay: cfg.EventPollDelay,
		eventTicker:    time.NewTicker(time.Duration(cfg.EventPollDelay) * time.Millisecond),
	}
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	eventPollDelay int
	eventTicker    *time.Ticker
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// NewFrameClock creates a clock for measuring frame durations
func NewFrameClock() *FrameClock {
	return &FrameClock{start: hrtime.Now()}
}

// FrameClock measures wall time per frame with a monotonic high
// resolution source.
type FrameClock struct {
	start  time.Duration
	frames int
	total  time.Duration
}

// Tick records the end of a frame and returns its duration
func (c *FrameClock) Tick() time.Duration {
	now := hrtime.Now()
	elapsed := now - c.start
	c.start = now
	c.frames++
	c.total += elapsed
	return elapsed
}

// Average returns the mean frame duration since the clock was created
func (c *FrameClock) Average() time.Duration {
	if c.frames == 0 {
		return 0
	}
	return c.total / time.Duration(c.frames)
}

// Frames returns the number of frames ticked
func (c *FrameClock) Frames() int {
	return c.frames
}
