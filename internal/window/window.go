// Package window is the SDL2 windowing collaborator: it loads the Vulkan loader, owns the
// window, implements surface.Provider and runs the event poll loop.
package window

import (
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/vkencoder/internal/config"
	"github.com/vkngwrapper/vkencoder/internal/logging"
	"github.com/vkngwrapper/vkencoder/internal/surface"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

var _ surface.Provider = (*Window)(nil)

// LoadVulkan initializes SDL video, loads the system Vulkan loader and returns a global driver
// built from it. The returned release undoes both and must run after the instance is gone.
func LoadVulkan() (core1_0.GlobalDriver, func(), error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, nil, vkerr.Creation(err, "SDL video subsystem")
	}

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		sdl.Quit()
		return nil, nil, vkerr.Creation(err, "vulkan loader")
	}

	release := func() {
		sdl.VulkanUnloadLibrary()
		sdl.Quit()
	}

	globalDriver, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		release()
		return nil, nil, vkerr.Creation(err, "global driver")
	}

	return globalDriver, release, nil
}

type Window struct {
	log    *logging.Logger
	cfg    config.Window
	window *sdl.Window
}

// Open creates a fixed-size Vulkan-capable window. LoadVulkan must have succeeded first.
func Open(cfg config.Window, log *logging.Logger) (*Window, error) {
	log.Infof("Initialising window...")

	window, err := sdl.CreateWindow(cfg.Title,
		sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width), int32(cfg.Height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN)
	if err != nil {
		return nil, vkerr.Creation(err, "window")
	}

	return &Window{log: log, cfg: cfg, window: window}, nil
}

func (w *Window) CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	if w == nil || w.window == nil {
		return khr_surface.Surface{}, vkerr.NullResource("window")
	}

	surface, err := vkng_sdl2.CreateSurface(instance, surfaceDriver, w.window)
	if err != nil {
		return khr_surface.Surface{}, vkerr.Creation(err, "window surface")
	}
	return surface, nil
}

func (w *Window) RequiredInstanceExtensions() []string {
	if w == nil || w.window == nil {
		return nil
	}
	return w.window.VulkanGetInstanceExtensions()
}

func (w *Window) FramebufferSize() (int, int) {
	if w == nil || w.window == nil {
		return 0, 0
	}
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

// Run polls events and calls frame once per iteration until the window is asked to close or
// frame fails. Frames are skipped while the window is minimized.
func (w *Window) Run(frame func() error) error {
	if w == nil || w.window == nil {
		return vkerr.NullResource("window")
	}

	clock := newFrameClock(w.log, statsInterval)
	rendering := true

	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				clock.report()
				return nil
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				}
			}
		}

		if !rendering {
			sdl.Delay(10)
			continue
		}

		clock.begin()
		if err := frame(); err != nil {
			return err
		}
		clock.end()
	}
}

func (w *Window) Close() {
	if w == nil || w.window == nil {
		return
	}
	w.log.Infof("Shutting down window.")
	w.window.Destroy()
	w.window = nil
}
