package core

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// ErrSwapchainOutOfDate marks a frame that was dropped because the
// swapchain no longer matches the surface. The caller flags a rebuild
// and moves on, the error never reaches a user of Renderer.
var ErrSwapchainOutOfDate = errors.New("swapchain out of date")

// FrameFuture stands for the GPU work of one submitted frame. Exactly
// one owner holds it at a time, the render loop takes it out of its
// slot before using it and a taken future is never reused. Poll lets
// finished per-frame resources go early, Wait blocks until the work is
// done, Free releases whatever is still held.
type FrameFuture interface {
	Wait() error
	Poll()
	Free()
}

// resolvedFuture is a future with no GPU work behind it. It is the
// starting state of the frame chain and the substitute installed after
// a frame fails to flush, so the next frame never waits on work that
// was never submitted.
type resolvedFuture struct{}

func newResolvedFuture() FrameFuture { return resolvedFuture{} }

func (resolvedFuture) Wait() error { return nil }
func (resolvedFuture) Poll()       {}
func (resolvedFuture) Free()       {}

// fenceFuture tracks one frame's submission through its fence. The
// command buffer stays allocated until the fence signals, then Poll or
// Wait hand it back to the pool.
type fenceFuture struct {
	device vk.Device
	fence  vk.Fence
	pool   vk.CommandPool
	buffer vk.CommandBuffer
	done   bool
}

func newFenceFuture(device vk.Device, fence vk.Fence, pool vk.CommandPool, buffer vk.CommandBuffer) FrameFuture {
	return &fenceFuture{
		device: device,
		fence:  fence,
		pool:   pool,
		buffer: buffer,
	}
}

// Wait blocks until the fence signals, then releases the frame's
// resources.
func (f *fenceFuture) Wait() error {
	if f.done {
		return nil
	}
	if err := vk.Error(vk.WaitForFences(f.device, 1, []vk.Fence{f.fence}, vk.True, vk.MaxUint64)); err != nil {
		return errors.Wrap(err, "vk.WaitForFences()")
	}
	f.release()
	return nil
}

// Poll releases the frame's resources if the fence has signaled and is
// a no-op otherwise.
func (f *fenceFuture) Poll() {
	if f.done {
		return
	}
	if vk.GetFenceStatus(f.device, f.fence) == vk.Success {
		f.release()
	}
}

// Free releases the frame's resources without waiting. Only valid once
// the GPU cannot touch them anymore, such as after a device wait.
func (f *fenceFuture) Free() {
	if f.done {
		return
	}
	f.release()
}

func (f *fenceFuture) release() {
	vk.DestroyFence(f.device, f.fence, nil)
	vk.FreeCommandBuffers(f.device, f.pool, 1, []vk.CommandBuffer{f.buffer})
	f.done = true
}
