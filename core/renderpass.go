package core

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// createRenderPass builds the single subpass render pass the frame is
// recorded against. One color attachment, cleared on load, stored on
// write and left in presentation layout.
func createRenderPass(device vk.Device, format vk.Format) (vk.RenderPass, error) {
	attachments := []vk.AttachmentDescription{{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}

	colorReferences := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}}

	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}}

	renderPassInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(device, &renderPassInfo, nil, &renderPass)); err != nil {
		return vk.NullRenderPass, errors.Wrap(err, "vk.CreateRenderPass()")
	}
	return renderPass, nil
}

// createFramebuffers wraps each image view in a framebuffer bound to
// the render pass. The returned slice is index-aligned with views.
func createFramebuffers(device vk.Device, renderPass vk.RenderPass, views []vk.ImageView, extent vk.Extent2D) ([]vk.Framebuffer, error) {
	framebuffers := make([]vk.Framebuffer, 0, len(views))
	for _, view := range views {
		framebufferInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      renderPass,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           extent.Width,
			Height:          extent.Height,
			Layers:          1,
		}

		var framebuffer vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(device, &framebufferInfo, nil, &framebuffer)); err != nil {
			for _, created := range framebuffers {
				vk.DestroyFramebuffer(device, created, nil)
			}
			return nil, errors.Wrap(err, "vk.CreateFramebuffer()")
		}
		framebuffers = append(framebuffers, framebuffer)
	}
	return framebuffers, nil
}
