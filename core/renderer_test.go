package core

import (
	"testing"

	"github.com/pkg/errors"
)

type fakeFuture struct {
	id    int
	polls int
	waits int
	frees int
}

func (f *fakeFuture) Wait() error { f.waits++; return nil }
func (f *fakeFuture) Poll()       { f.polls++ }
func (f *fakeFuture) Free()       { f.frees++ }

type fakeSubmit struct {
	imageIndex uint32
	previous   FrameFuture
	returned   FrameFuture
}

// fakeDriver plays the device side of the frame loop. Errors are keyed
// by call number, first call is 1.
type fakeDriver struct {
	imageCount uint32
	nextImage  uint32

	acquireErr map[int]error
	recordErr  map[int]error
	submitErr  map[int]error

	acquires      int
	recordCalls   int
	submitCalls   int
	records       []uint32
	submits       []fakeSubmit
	resolvedCount int
}

func (d *fakeDriver) acquire() (uint32, error) {
	d.acquires++
	if err := d.acquireErr[d.acquires]; err != nil {
		return 0, err
	}
	index := d.nextImage
	d.nextImage = (d.nextImage + 1) % d.imageCount
	return index, nil
}

func (d *fakeDriver) record(imageIndex uint32) (frameSubmission, error) {
	d.recordCalls++
	if err := d.recordErr[d.recordCalls]; err != nil {
		return frameSubmission{}, err
	}
	d.records = append(d.records, imageIndex)
	return frameSubmission{}, nil
}

func (d *fakeDriver) submit(sub frameSubmission, imageIndex uint32, previous FrameFuture) (FrameFuture, error) {
	d.submitCalls++
	if err := d.submitErr[d.submitCalls]; err != nil {
		d.submits = append(d.submits, fakeSubmit{imageIndex: imageIndex, previous: previous})
		return nil, err
	}
	future := &fakeFuture{id: d.submitCalls}
	d.submits = append(d.submits, fakeSubmit{imageIndex: imageIndex, previous: previous, returned: future})
	return future, nil
}

func (d *fakeDriver) resolved() FrameFuture {
	d.resolvedCount++
	return &fakeFuture{id: -d.resolvedCount}
}

func newFakeLoop(driver *fakeDriver) *frameLoop {
	return &frameLoop{driver: driver, previous: driver.resolved()}
}

func TestFrameLoopChainsFutures(t *testing.T) {
	driver := &fakeDriver{imageCount: 2}
	loop := newFakeLoop(driver)
	initial := loop.previous.(*fakeFuture)

	for frame := 0; frame < 4; frame++ {
		if err := loop.renderFrame(); err != nil {
			t.Fatalf("frame %d: unexpected error: %v", frame, err)
		}
	}

	expected := []uint32{0, 1, 0, 1}
	for i, index := range expected {
		if driver.records[i] != index {
			t.Errorf("frame %d: expected image %d, got %d", i, index, driver.records[i])
		}
	}

	// The first submission joins the initial resolved future, every one
	// after it joins the future of the frame before
	if driver.submits[0].previous != initial {
		t.Error("first frame did not join the initial future")
	}
	for i := 1; i < len(driver.submits); i++ {
		if driver.submits[i].previous != driver.submits[i-1].returned {
			t.Errorf("frame %d did not join frame %d's future", i, i-1)
		}
	}

	// Each taken future is polled exactly once before the next frame
	// reuses the slot
	if initial.polls != 1 {
		t.Errorf("expected initial future polled once, got %d", initial.polls)
	}
	if loop.previous != driver.submits[3].returned {
		t.Error("loop does not hold the last frame's future")
	}
}

func TestFrameLoopAcquireOutOfDateDropsFrame(t *testing.T) {
	driver := &fakeDriver{
		imageCount: 2,
		acquireErr: map[int]error{3: ErrSwapchainOutOfDate},
	}
	loop := newFakeLoop(driver)

	for frame := 0; frame < 2; frame++ {
		if err := loop.renderFrame(); err != nil {
			t.Fatalf("frame %d: unexpected error: %v", frame, err)
		}
	}

	err := loop.renderFrame()
	if errors.Cause(err) != ErrSwapchainOutOfDate {
		t.Fatalf("expected out of date error, got %v", err)
	}
	if driver.submitCalls != 2 {
		t.Errorf("dropped frame must not submit, got %d submissions", driver.submitCalls)
	}

	// The dropped frame hands its future back untouched, the next frame
	// joins it as if nothing happened
	kept := loop.previous
	if kept != driver.submits[1].returned {
		t.Error("dropped frame did not preserve the previous future")
	}
	if err := loop.renderFrame(); err != nil {
		t.Fatalf("frame after drop: unexpected error: %v", err)
	}
	if driver.submits[2].previous != kept {
		t.Error("frame after drop did not join the preserved future")
	}
}

func TestFrameLoopPresentOutOfDateResetsChain(t *testing.T) {
	driver := &fakeDriver{
		imageCount: 3,
		submitErr:  map[int]error{2: ErrSwapchainOutOfDate},
	}
	loop := newFakeLoop(driver)

	if err := loop.renderFrame(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := loop.renderFrame()
	if errors.Cause(err) != ErrSwapchainOutOfDate {
		t.Fatalf("expected out of date error, got %v", err)
	}

	// The failed frame's future is gone, the slot holds a fresh
	// resolved future instead
	substitute, ok := loop.previous.(*fakeFuture)
	if !ok || substitute.id >= 0 {
		t.Fatal("expected a resolved substitute future after failed present")
	}
	if err := loop.renderFrame(); err != nil {
		t.Fatalf("frame after reset: unexpected error: %v", err)
	}
	if driver.submits[2].previous != substitute {
		t.Error("frame after reset did not join the substitute future")
	}
}

func TestFrameLoopAbsorbsSubmitFailure(t *testing.T) {
	driver := &fakeDriver{
		imageCount: 2,
		submitErr:  map[int]error{1: errors.New("device lost contact")},
	}
	loop := newFakeLoop(driver)

	if err := loop.renderFrame(); err != nil {
		t.Fatalf("submit failure must be absorbed, got %v", err)
	}
	if substitute, ok := loop.previous.(*fakeFuture); !ok || substitute.id >= 0 {
		t.Error("expected a resolved substitute future after absorbed failure")
	}
	if err := loop.renderFrame(); err != nil {
		t.Fatalf("frame after absorbed failure: unexpected error: %v", err)
	}
}

func TestFrameLoopRecordErrorPreservesPrevious(t *testing.T) {
	driver := &fakeDriver{
		imageCount: 2,
		recordErr:  map[int]error{1: errors.New("allocation failed")},
	}
	loop := newFakeLoop(driver)
	initial := loop.previous

	if err := loop.renderFrame(); err == nil {
		t.Fatal("expected record error to surface")
	}
	if loop.previous != initial {
		t.Error("failed frame did not hand back the previous future")
	}
}

func TestFrameLoopTakePreviousNeverNil(t *testing.T) {
	driver := &fakeDriver{imageCount: 2}
	loop := &frameLoop{driver: driver}

	previous := loop.takePrevious()
	if previous == nil {
		t.Fatal("expected a substitute future, got nil")
	}

	// A loop with an empty slot still renders
	loop = &frameLoop{driver: driver}
	if err := loop.renderFrame(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFrameLoopSettle(t *testing.T) {
	driver := &fakeDriver{imageCount: 2}
	loop := newFakeLoop(driver)

	if err := loop.renderFrame(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	held := loop.previous.(*fakeFuture)

	loop.settle()
	if held.frees != 1 {
		t.Errorf("expected held future freed once, got %d", held.frees)
	}
	if substitute, ok := loop.previous.(*fakeFuture); !ok || substitute.id >= 0 {
		t.Error("expected a resolved future after settle")
	}
}
