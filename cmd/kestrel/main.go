package main

import (
	"runtime"
	"strconv"
	"time"
	"unsafe"

	"github.com/gobuffalo/envy"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/kestrel3d/kestrel/core"
)

func init() {
	runtime.LockOSThread()
}

// Essential globals
var (
	vkInstance core.Instance
	vkRenderer core.Renderer
	sdlWindow  *sdl.Window
	sdlSurface unsafe.Pointer
)

func envUint32(key string, fallback uint32) uint32 {
	value, err := strconv.ParseUint(envy.Get(key, ""), 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(value)
}

func envInt(key string, fallback int) int {
	value, err := strconv.Atoi(envy.Get(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func envBool(key string) bool {
	value, err := strconv.ParseBool(envy.Get(key, "false"))
	if err != nil {
		return false
	}
	return value
}

func configure() core.Configuration {
	return core.Configuration{
		Time: core.TimeConfiguration{
			FramesPerSecond: envInt("KESTREL_FPS", 60),
			EventPollDelay:  envInt("KESTREL_EVENT_POLL_MS", 10),
		},
		Renderer: core.RendererConfiguration{
			ScreenWidth:  envUint32("KESTREL_WIDTH", 800),
			ScreenHeight: envUint32("KESTREL_HEIGHT", 600),
			DeviceExtensions: []string{
				"VK_KHR_swapchain",
			},
			ClearColor: [4]float32{0.1, 0.1, 0.2, 1.0},
		},
	}
}

func newWindow(cfg core.RendererConfiguration) *sdl.Window {
	window, err := sdl.CreateWindow("Kestrel",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		log.WithError(err).Fatal("window creation failed")
	}
	return window
}

func main() {
	debugMode := envBool("KESTREL_DEBUG")
	if debugMode {
		log.SetLevel(log.DebugLevel)
	}
	configuration := configure()

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		log.WithError(err).Fatal("sdl initialisation failed")
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		log.WithError(err).Fatal("vulkan library load failed")
	}
	defer sdl.VulkanUnloadLibrary()

	sdlWindow = newWindow(configuration.Renderer)

	{
		cfg := core.InstanceConfiguration{
			DebugMode:  debugMode,
			Extensions: sdlWindow.VulkanGetInstanceExtensions(),
			Layers:     []string{},
		}

		if vi, err := core.NewVulkanInstance(core.DefaultVulkanApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), cfg); err != nil {
			log.WithError(err).Fatal("instance creation failed")
		} else {
			vkInstance = vi
		}
	}

	if srf, err := sdlWindow.VulkanCreateSurface(vkInstance.Instance()); err != nil {
		log.WithError(err).Fatal("surface creation failed")
	} else {
		sdlSurface = srf
		vkInstance.SetSurface(sdlSurface)
	}

	var rendererErr error
	vkRenderer, rendererErr = core.NewVulkanRenderer(vkInstance, configuration.Renderer)
	if rendererErr != nil {
		log.WithError(rendererErr).Fatal("renderer creation failed")
	}

	for idx, device := range vkInstance.AvailableDevices() {
		if suitable, reason := vkRenderer.DeviceIsSuitable(device); !suitable {
			log.WithField("device", idx).Debugf("not suitable: %s", reason)
		} else {
			log.WithField("device", idx).Debug("suitable")
		}
	}

	if err := vkRenderer.Initialise(); err != nil {
		log.WithError(err).Fatal("renderer initialisation failed")
	}

	timeService := core.NewTime(configuration.Time)
	frameClock := core.NewFrameClock()
	exitC := make(chan struct{}, 2)

EventLoop:
	for {
		select {
		case <-exitC:
			log.Info("event loop exited")
			break EventLoop
		case <-timeService.FpsTicker().C:
			var event sdl.Event
			for event = sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						exitC <- struct{}{}
						continue EventLoop
					}
				case *sdl.WindowEvent:
					// The renderer notices the stale swapchain on its
					// own, nothing to do here but log
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						log.WithFields(log.Fields{
							"width":  et.Data1,
							"height": et.Data2,
						}).Debug("window resized")
					}
				case *sdl.QuitEvent:
					exitC <- struct{}{}
					continue EventLoop
				}
			}

			vkRenderer.RenderFrame()
			frameClock.Tick()
			if frameClock.Frames()%120 == 0 {
				log.WithField("avgFrame", frameClock.Average().Round(time.Microsecond)).
					Debug("frame timing")
			}
		}
	}

	vkRenderer.Destroy()
	vkInstance.Destroy()
	sdlWindow.Destroy()
}
