package core

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// NewVulkanRenderer creates a not yet initialised Vulkan API renderer
func NewVulkanRenderer(instance Instance, configuration RendererConfiguration) (Renderer, error) {
	if instance.Surface() == vk.NullSurface {
		return nil, errors.New("surface is not set on the instance")
	}
	return &VulkanRenderer{
		configuration:    configuration,
		surface:          instance.Surface(),
		availableDevices: instance.AvailableDevices(),
	}, nil
}

// VulkanRenderer is a Vulkan API renderer. It selects a device, owns the
// presentation chain built on it and renders one frame per RenderFrame
// call.
type VulkanRenderer struct {
	configuration RendererConfiguration

	surface          vk.Surface
	availableDevices []vk.PhysicalDevice

	physicalDevice   vk.PhysicalDevice
	device           vk.Device
	queue            vk.Queue
	queueFamilyIndex uint32

	commandPool             vk.CommandPool
	imageAvailableSemaphore vk.Semaphore
	renderFinishedSemaphore vk.Semaphore

	rcx *renderContext

	// needsRebuild is set when a frame observes the swapchain out of
	// date. The next RenderFrame rebuilds the context before acquiring
	needsRebuild bool

	frames frameLoop
}

// Initialise implements interface
func (v *VulkanRenderer) Initialise() error {
	physicalDevice, queueFamilyIndex, err := selectDevice(v.availableDevices, v.surface, v.configuration.DeviceExtensions)
	if err != nil {
		return errors.Wrap(err, "core.selectDevice()")
	}
	v.physicalDevice = physicalDevice
	v.queueFamilyIndex = queueFamilyIndex

	if v.device, v.queue, err = createLogicalDevice(physicalDevice, queueFamilyIndex, v.configuration.DeviceExtensions); err != nil {
		return errors.Wrap(err, "core.createLogicalDevice()")
	}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamilyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	if err := vk.Error(vk.CreateCommandPool(v.device, &poolInfo, nil, &v.commandPool)); err != nil {
		return errors.Wrap(err, "vk.CreateCommandPool()")
	}

	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	if err := vk.Error(vk.CreateSemaphore(v.device, &semaphoreInfo, nil, &v.imageAvailableSemaphore)); err != nil {
		return errors.Wrap(err, "vk.CreateSemaphore()")
	}
	if err := vk.Error(vk.CreateSemaphore(v.device, &semaphoreInfo, nil, &v.renderFinishedSemaphore)); err != nil {
		return errors.Wrap(err, "vk.CreateSemaphore()")
	}

	extent, err := v.currentExtent()
	if err != nil {
		return err
	}
	if v.rcx, err = buildRenderContext(v.device, physicalDevice, v.surface, extent, vk.NullSwapchain); err != nil {
		return errors.Wrap(err, "core.buildRenderContext()")
	}

	log.WithFields(log.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"images": len(v.rcx.images),
	}).Debug("presentation chain ready")

	v.frames = frameLoop{
		driver:   &vulkanFrameDriver{renderer: v},
		previous: newResolvedFuture(),
	}
	return nil
}

// currentExtent reads the drawable size from the surface. When the
// surface leaves the extent up to the swapchain, the configured screen
// size is used instead, clamped to the supported range.
func (v *VulkanRenderer) currentExtent() (vk.Extent2D, error) {
	capabilities, err := surfaceCapabilities(v.physicalDevice, v.surface)
	if err != nil {
		return vk.Extent2D{}, err
	}
	return chooseExtent(capabilities, vk.Extent2D{
		Width:  v.configuration.ScreenWidth,
		Height: v.configuration.ScreenHeight,
	}), nil
}

// DeviceIsSuitable implements interface
func (v VulkanRenderer) DeviceIsSuitable(device vk.PhysicalDevice) (bool, string) {
	extensions, err := deviceExtensionNames(device)
	if err != nil {
		return false, fmt.Sprintf("device extension query failed: %v", err)
	}
	if !supportsExtensions(extensions, v.configuration.DeviceExtensions) {
		return false, "device does not support required extensions"
	}
	for _, family := range queueFamilies(device) {
		if family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			return true, ""
		}
	}
	return false, "device has no graphics capable queue family"
}

// RenderFrame implements interface
func (v *VulkanRenderer) RenderFrame() {
	if v.needsRebuild {
		if err := v.rebuildContext(); err != nil {
			log.WithError(err).Error("presentation chain rebuild failed, frame dropped")
			return
		}
	}

	err := v.frames.renderFrame()
	if err == nil {
		return
	}
	if errors.Cause(err) == ErrSwapchainOutOfDate {
		log.Debug("swapchain out of date, frame dropped")
		v.needsRebuild = true
		return
	}
	log.WithError(err).Fatal("frame rendering failed")
}

// rebuildContext tears down the presentation chain and builds it again
// against the surface's current extent. On failure the old context
// stays live and needsRebuild stays set, the next frame tries again.
func (v *VulkanRenderer) rebuildContext() error {
	vk.DeviceWaitIdle(v.device)
	v.frames.settle()

	extent, err := v.currentExtent()
	if err != nil {
		return err
	}

	rcx, err := buildRenderContext(v.device, v.physicalDevice, v.surface, extent, v.rcx.swapchain)
	if err != nil {
		return err
	}

	v.rcx.destroy(v.device)
	v.rcx = rcx
	v.needsRebuild = false

	log.WithFields(log.Fields{
		"width":  rcx.extent.Width,
		"height": rcx.extent.Height,
	}).Debug("presentation chain rebuilt")
	return nil
}

// Destroy implements interface
func (v *VulkanRenderer) Destroy() {
	if v.device == nil {
		return
	}
	vk.DeviceWaitIdle(v.device)
	v.frames.settle()

	if v.rcx != nil {
		v.rcx.destroy(v.device)
		v.rcx = nil
	}
	if v.renderFinishedSemaphore != vk.NullSemaphore {
		vk.DestroySemaphore(v.device, v.renderFinishedSemaphore, nil)
	}
	if v.imageAvailableSemaphore != vk.NullSemaphore {
		vk.DestroySemaphore(v.device, v.imageAvailableSemaphore, nil)
	}
	if v.commandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(v.device, v.commandPool, nil)
	}
	vk.DestroyDevice(v.device, nil)
	v.device = nil
}

// frameSubmission carries the recorded work of one frame from record
// to submit.
type frameSubmission struct {
	buffer vk.CommandBuffer
}

// frameDriver is the device facing side of the frame loop. The split
// keeps the loop's ordering and failure rules testable without a GPU.
type frameDriver interface {
	acquire() (uint32, error)
	record(imageIndex uint32) (frameSubmission, error)
	submit(sub frameSubmission, imageIndex uint32, previous FrameFuture) (FrameFuture, error)
	resolved() FrameFuture
}

// frameLoop owns the previous frame's future and runs the fixed frame
// sequence: poll the old future, acquire, record, submit, present.
type frameLoop struct {
	driver   frameDriver
	previous FrameFuture
}

// takePrevious moves the previous frame future out of its slot. An
// empty slot yields a resolved future, never a nil.
func (l *frameLoop) takePrevious() FrameFuture {
	previous := l.previous
	l.previous = nil
	if previous == nil {
		previous = l.driver.resolved()
	}
	return previous
}

// renderFrame runs one frame. It returns ErrSwapchainOutOfDate when the
// frame is dropped over an invalidated swapchain and a plain error only
// for failures the caller cannot continue past. Submission failures
// that are frame local are logged and absorbed here.
func (l *frameLoop) renderFrame() error {
	previous := l.takePrevious()
	previous.Poll()

	imageIndex, err := l.driver.acquire()
	if err != nil {
		l.previous = previous
		return err
	}

	sub, err := l.driver.record(imageIndex)
	if err != nil {
		l.previous = previous
		return err
	}

	future, err := l.driver.submit(sub, imageIndex, previous)
	if err != nil {
		l.previous = l.driver.resolved()
		if errors.Cause(err) == ErrSwapchainOutOfDate {
			return err
		}
		log.WithError(err).Error("frame submission failed")
		return nil
	}

	l.previous = future
	return nil
}

// settle drops the frame chain back to its starting state. The caller
// guarantees the GPU is idle first.
func (l *frameLoop) settle() {
	if l.driver == nil {
		return
	}
	if l.previous != nil {
		l.previous.Free()
	}
	l.previous = l.driver.resolved()
}

// vulkanFrameDriver backs the frame loop with the renderer's live
// device state. It reads the render context through the renderer so a
// rebuild is picked up without rewiring.
type vulkanFrameDriver struct {
	renderer *VulkanRenderer
}

func (d *vulkanFrameDriver) acquire() (uint32, error) {
	v := d.renderer

	var imageIndex uint32
	result := vk.AcquireNextImage(v.device, v.rcx.swapchain, vk.MaxUint64, v.imageAvailableSemaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success, vk.Suboptimal:
		return imageIndex, nil
	case vk.ErrorOutOfDate:
		return 0, ErrSwapchainOutOfDate
	default:
		return 0, errors.Wrap(vk.Error(result), "vk.AcquireNextImage()")
	}
}

// record allocates and records the frame's command buffer: a render
// pass that clears the target and nothing else.
func (d *vulkanFrameDriver) record(imageIndex uint32) (frameSubmission, error) {
	v := d.renderer

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        v.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(v.device, &allocateInfo, buffers)); err != nil {
		return frameSubmission{}, errors.Wrap(err, "vk.AllocateCommandBuffers()")
	}
	buffer := buffers[0]

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(buffer, &beginInfo)); err != nil {
		d.freeBuffer(buffer)
		return frameSubmission{}, errors.Wrap(err, "vk.BeginCommandBuffer()")
	}

	var clearValue vk.ClearValue
	clearValue.SetColor(v.configuration.ClearColor[:])

	renderPassBeginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  v.rcx.renderPass,
		Framebuffer: v.rcx.framebuffers[imageIndex],
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: v.rcx.extent,
		},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{clearValue},
	}
	vk.CmdBeginRenderPass(buffer, &renderPassBeginInfo, vk.SubpassContentsInline)
	vk.CmdEndRenderPass(buffer)

	if err := vk.Error(vk.EndCommandBuffer(buffer)); err != nil {
		d.freeBuffer(buffer)
		return frameSubmission{}, errors.Wrap(err, "vk.EndCommandBuffer()")
	}

	return frameSubmission{buffer: buffer}, nil
}

// submit joins the previous frame, submits the recorded work and
// presents the image. The returned future resolves when the GPU is done
// with this frame.
func (d *vulkanFrameDriver) submit(sub frameSubmission, imageIndex uint32, previous FrameFuture) (FrameFuture, error) {
	v := d.renderer

	if err := previous.Wait(); err != nil {
		d.freeBuffer(sub.buffer)
		return nil, err
	}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(v.device, &fenceInfo, nil, &fence)); err != nil {
		d.freeBuffer(sub.buffer)
		return nil, errors.Wrap(err, "vk.CreateFence()")
	}

	submitInfo := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{v.imageAvailableSemaphore},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{sub.buffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{v.renderFinishedSemaphore},
	}}
	if err := vk.Error(vk.QueueSubmit(v.queue, 1, submitInfo, fence)); err != nil {
		vk.DestroyFence(v.device, fence, nil)
		d.freeBuffer(sub.buffer)
		return nil, errors.Wrap(err, "vk.QueueSubmit()")
	}

	future := newFenceFuture(v.device, fence, v.commandPool, sub.buffer)

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{v.renderFinishedSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{v.rcx.swapchain},
		PImageIndices:      []uint32{imageIndex},
	}
	result := vk.QueuePresent(v.queue, &presentInfo)
	switch result {
	case vk.Success, vk.Suboptimal:
		return future, nil
	case vk.ErrorOutOfDate:
		// The work was already submitted, let it finish before the
		// resources go
		if err := future.Wait(); err != nil {
			log.WithError(err).Error("wait after failed present")
		}
		return nil, ErrSwapchainOutOfDate
	default:
		if err := future.Wait(); err != nil {
			log.WithError(err).Error("wait after failed present")
		}
		return nil, errors.Wrap(vk.Error(result), "vk.QueuePresent()")
	}
}

func (d *vulkanFrameDriver) resolved() FrameFuture {
	return newResolvedFuture()
}

func (d *vulkanFrameDriver) freeBuffer(buffer vk.CommandBuffer) {
	v := d.renderer
	vk.FreeCommandBuffers(v.device, v.commandPool, 1, []vk.CommandBuffer{buffer})
}
