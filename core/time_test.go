package core

import (
	"testing"
	"time"
)

func TestNewTimeUncapped(t *testing.T) {
	service := NewTime(TimeConfiguration{FramesPerSecond: 0, EventPollDelay: 50})
	defer service.FpsTicker().Stop()
	defer service.EventTicker().Stop()

	if service.Fps() != 0 {
		t.Errorf("expected fps 0, got %d", service.Fps())
	}

	select {
	case <-service.FpsTicker().C:
	case <-time.After(time.Second):
		t.Error("uncapped ticker did not fire")
	}
}

func TestFrameClock(t *testing.T) {
	clock := NewFrameClock()
	if clock.Frames() != 0 {
		t.Errorf("expected no frames ticked, got %d", clock.Frames())
	}
	if clock.Average() != 0 {
		t.Error("expected zero average before first tick")
	}

	for i := 0; i < 3; i++ {
		if d := clock.Tick(); d < 0 {
			t.Errorf("expected non-negative duration, got %v", d)
		}
	}
	if clock.Frames() != 3 {
		t.Errorf("expected 3 frames, got %d", clock.Frames())
	}
}
