package core

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Instance describes a Vulkan instance and supporting methods.
// Once created it is ready to use.
type Instance interface {
	// PhysicalDevicesInfo returns a struct for each Physical Device
	// along with info about those devices
	PhysicalDevicesInfo() []PhysicalDeviceInfo

	// AvailableDevices returns handles of Physical Devices
	// from the Vulkan API
	AvailableDevices() []vk.PhysicalDevice

	// SetSurface sets the window surface for rendering
	SetSurface(unsafe.Pointer)

	// Surface returns the window surface, if it's not set
	// it should return a valid but empty surface
	Surface() vk.Surface

	// Extensions returns the instance extensions the instance
	// was created with
	Extensions() []string

	// Instance returns the inner handle of the underlying API
	Instance() interface{}

	// Destroy destroys internal members
	Destroy()
}

// Renderer describes the rendering machinery.
// It's created only with internal values set,
// it needs to be initialised with Initialise() before use.
type Renderer interface {
	// Initialise selects a device and builds the presentation pipeline:
	// logical device, swapchain, render pass, framebuffers and the
	// per-frame synchronization state
	Initialise() error

	// DeviceIsSuitable checks if the device given is suitable
	// for the rendering pipeline. If not suitable string contains the reason.
	// Presentation support is only verified during Initialise, it needs
	// a live surface to query
	DeviceIsSuitable(vk.PhysicalDevice) (bool, string)

	// RenderFrame renders and presents a single frame. Meant to be called
	// once per redraw tick. Frame-local failures (for example the swapchain
	// going out of date under a resize) are absorbed and logged, never
	// returned to the caller
	RenderFrame()

	// Destroy destroys internal members
	Destroy()
}

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Invalid       bool
	Extensions    []string
	Layers        []string
	Memory        uint
}
