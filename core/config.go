package core

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out.
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between event polls, in milliseconds
	EventPollDelay int
}

// InstanceConfiguration is used to configure the Vulkan instance
type InstanceConfiguration struct {
	// DebugMode enables the validation layer and debug reporting
	DebugMode bool

	Extensions []string
	Layers     []string
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	// DeviceExtensions are required of a physical device; devices
	// missing any of them are never selected
	DeviceExtensions []string

	// ScreenWidth and ScreenHeight are the window's inner pixel size
	// at creation time. After the swapchain invalidates, the extent is
	// re-read from the surface instead
	ScreenWidth  uint32
	ScreenHeight uint32

	// ClearColor is the RGBA color the target is cleared to every frame
	ClearColor [4]float32
}
