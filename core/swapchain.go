package core

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// preferredFormat is used when the surface reports it, otherwise the
// first reported format wins.
const preferredFormat = vk.FormatB8g8r8a8Srgb

// chooseSurfaceFormat picks the surface format the swapchain is created
// with. The match is on the pixel format alone, color space is taken as
// reported. An empty list yields the zero format, callers query the
// surface first so that does not come up in practice.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == preferredFormat {
			return format
		}
	}
	if len(formats) > 0 {
		return formats[0]
	}
	return vk.SurfaceFormat{}
}

// chooseCompositeAlpha returns the first composite alpha mode the
// surface supports, probed in a fixed preference order.
func chooseCompositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	candidates := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for _, candidate := range candidates {
		if supported&vk.CompositeAlphaFlags(candidate) != 0 {
			return candidate
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

// chooseExtent resolves the swapchain extent from the surface
// capabilities. A defined current extent wins; surfaces that leave the
// extent to the swapchain get the fallback size clamped to the
// supported range.
func chooseExtent(capabilities vk.SurfaceCapabilities, fallback vk.Extent2D) vk.Extent2D {
	if capabilities.CurrentExtent.Width != vk.MaxUint32 {
		return capabilities.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clampUint32(fallback.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clampUint32(fallback.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func clampUint32(value, min, max uint32) uint32 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func surfaceFormats(physicalDevice vk.PhysicalDevice, surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceFormats()")
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &count, formats)); err != nil {
		return nil, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceFormats()")
	}
	for idx := range formats {
		formats[idx].Deref()
	}
	return formats, nil
}

func surfaceCapabilities(physicalDevice vk.PhysicalDevice, surface vk.Surface) (vk.SurfaceCapabilities, error) {
	var capabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &capabilities)); err != nil {
		return capabilities, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceCapabilities()")
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()
	return capabilities, nil
}

// renderContext holds everything that has to be rebuilt together when
// the swapchain invalidates: the swapchain itself, its images and
// views, the render pass and the framebuffers. Framebuffers are
// index-aligned with imageViews.
type renderContext struct {
	swapchain    vk.Swapchain
	images       []vk.Image
	imageViews   []vk.ImageView
	format       vk.SurfaceFormat
	extent       vk.Extent2D
	renderPass   vk.RenderPass
	framebuffers []vk.Framebuffer
}

// buildRenderContext creates a swapchain for the surface at the given
// extent and derives the full presentation chain from it. oldSwapchain
// may be nil on the first build; on a rebuild it is handed to the
// swapchain create info so the driver can recycle it.
func buildRenderContext(device vk.Device, physicalDevice vk.PhysicalDevice, surface vk.Surface, extent vk.Extent2D, oldSwapchain vk.Swapchain) (*renderContext, error) {
	capabilities, err := surfaceCapabilities(physicalDevice, surface)
	if err != nil {
		return nil, err
	}

	formats, err := surfaceFormats(physicalDevice, surface)
	if err != nil {
		return nil, err
	}
	format := chooseSurfaceFormat(formats)

	transform := capabilities.CurrentTransform
	if capabilities.SupportedTransforms&vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit) != 0 {
		transform = vk.SurfaceTransformIdentityBit
	}

	swapchainInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    capabilities.MinImageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     transform,
		CompositeAlpha:   chooseCompositeAlpha(capabilities.SupportedCompositeAlpha),
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		OldSwapchain:     oldSwapchain,
	}

	var swapchain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(device, &swapchainInfo, nil, &swapchain)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateSwapchain()")
	}

	rcx := &renderContext{
		swapchain: swapchain,
		format:    format,
		extent:    extent,
	}

	if rcx.images, err = swapchainImages(device, swapchain); err != nil {
		rcx.destroy(device)
		return nil, err
	}
	if rcx.imageViews, err = createImageViews(device, rcx.images, format.Format); err != nil {
		rcx.destroy(device)
		return nil, err
	}
	if rcx.renderPass, err = createRenderPass(device, format.Format); err != nil {
		rcx.destroy(device)
		return nil, err
	}
	if rcx.framebuffers, err = createFramebuffers(device, rcx.renderPass, rcx.imageViews, extent); err != nil {
		rcx.destroy(device)
		return nil, err
	}

	return rcx, nil
}

func swapchainImages(device vk.Device, swapchain vk.Swapchain) ([]vk.Image, error) {
	var count uint32
	if err := vk.Error(vk.GetSwapchainImages(device, swapchain, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.GetSwapchainImages()")
	}
	images := make([]vk.Image, count)
	if err := vk.Error(vk.GetSwapchainImages(device, swapchain, &count, images)); err != nil {
		return nil, errors.Wrap(err, "vk.GetSwapchainImages()")
	}
	return images, nil
}

func createImageViews(device vk.Device, images []vk.Image, format vk.Format) ([]vk.ImageView, error) {
	views := make([]vk.ImageView, 0, len(images))
	for _, image := range images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}

		var view vk.ImageView
		if err := vk.Error(vk.CreateImageView(device, &viewInfo, nil, &view)); err != nil {
			for _, created := range views {
				vk.DestroyImageView(device, created, nil)
			}
			return nil, errors.Wrap(err, "vk.CreateImageView()")
		}
		views = append(views, view)
	}
	return views, nil
}

// destroy releases the context members in reverse creation order. Safe
// on a partially built context, members never created are nil.
func (r *renderContext) destroy(device vk.Device) {
	for _, framebuffer := range r.framebuffers {
		vk.DestroyFramebuffer(device, framebuffer, nil)
	}
	r.framebuffers = nil
	if r.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(device, r.renderPass, nil)
		r.renderPass = vk.NullRenderPass
	}
	for _, view := range r.imageViews {
		vk.DestroyImageView(device, view, nil)
	}
	r.imageViews = nil
	r.images = nil
	if r.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(device, r.swapchain, nil)
		r.swapchain = vk.NullSwapchain
	}
}
