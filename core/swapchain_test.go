package core

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestChooseSurfaceFormatPreferred(t *testing.T) {
	formats := []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}

	chosen := chooseSurfaceFormat(formats)
	if chosen.Format != vk.FormatB8g8r8a8Srgb {
		t.Errorf("expected preferred format, got %d", chosen.Format)
	}
}

func TestChooseSurfaceFormatFallsBackToFirst(t *testing.T) {
	formats := []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatR8g8b8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}

	chosen := chooseSurfaceFormat(formats)
	if chosen.Format != vk.FormatR8g8b8a8Unorm {
		t.Errorf("expected first reported format, got %d", chosen.Format)
	}
}

func TestChooseSurfaceFormatMatchIgnoresColorSpace(t *testing.T) {
	formats := []vk.SurfaceFormat{
		{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpace(1000104002)},
	}

	chosen := chooseSurfaceFormat(formats)
	if chosen.Format != vk.FormatB8g8r8a8Srgb {
		t.Errorf("expected preferred format, got %d", chosen.Format)
	}
	if chosen.ColorSpace != vk.ColorSpace(1000104002) {
		t.Error("expected color space to be taken as reported")
	}
}

func TestChooseExtent(t *testing.T) {
	undefined := uint32(vk.MaxUint32)
	cases := []struct {
		name         string
		capabilities vk.SurfaceCapabilities
		fallback     vk.Extent2D
		expected     vk.Extent2D
	}{
		{
			"defined extent wins",
			vk.SurfaceCapabilities{
				CurrentExtent:  vk.Extent2D{Width: 1024, Height: 768},
				MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
			},
			vk.Extent2D{Width: 800, Height: 600},
			vk.Extent2D{Width: 1024, Height: 768},
		},
		{
			"undefined extent falls back",
			vk.SurfaceCapabilities{
				CurrentExtent:  vk.Extent2D{Width: undefined, Height: undefined},
				MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
			},
			vk.Extent2D{Width: 800, Height: 600},
			vk.Extent2D{Width: 800, Height: 600},
		},
		{
			"fallback clamped to maximum",
			vk.SurfaceCapabilities{
				CurrentExtent:  vk.Extent2D{Width: undefined, Height: undefined},
				MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: vk.Extent2D{Width: 640, Height: 480},
			},
			vk.Extent2D{Width: 800, Height: 600},
			vk.Extent2D{Width: 640, Height: 480},
		},
		{
			"fallback clamped to minimum",
			vk.SurfaceCapabilities{
				CurrentExtent:  vk.Extent2D{Width: undefined, Height: undefined},
				MinImageExtent: vk.Extent2D{Width: 320, Height: 240},
				MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
			},
			vk.Extent2D{Width: 100, Height: 100},
			vk.Extent2D{Width: 320, Height: 240},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := chooseExtent(c.capabilities, c.fallback)
			if got != c.expected {
				t.Errorf("expected %dx%d, got %dx%d",
					c.expected.Width, c.expected.Height, got.Width, got.Height)
			}
		})
	}
}

func TestChooseCompositeAlpha(t *testing.T) {
	cases := []struct {
		name      string
		supported vk.CompositeAlphaFlags
		expected  vk.CompositeAlphaFlagBits
	}{
		{
			"opaque preferred",
			vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit | vk.CompositeAlphaInheritBit),
			vk.CompositeAlphaOpaqueBit,
		},
		{
			"premultiplied when opaque missing",
			vk.CompositeAlphaFlags(vk.CompositeAlphaPreMultipliedBit | vk.CompositeAlphaPostMultipliedBit),
			vk.CompositeAlphaPreMultipliedBit,
		},
		{
			"inherit as last resort",
			vk.CompositeAlphaFlags(vk.CompositeAlphaInheritBit),
			vk.CompositeAlphaInheritBit,
		},
		{
			"nothing reported defaults to opaque",
			0,
			vk.CompositeAlphaOpaqueBit,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := chooseCompositeAlpha(c.supported); got != c.expected {
				t.Errorf("expected %d, got %d", c.expected, got)
			}
		})
	}
}
