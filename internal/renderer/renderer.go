// Package renderer brings up a Vulkan instance, device and, when a surface is available, the
// swapchain, pipeline and per-frame resources needed to draw a triangle.
//
// Every handle the renderer creates is registered with a scope. The scopes form a tree
// (instance, device, swapchain, pipeline, frames) and closing the root releases everything in
// reverse creation order, children first.
package renderer

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/vkencoder/internal/config"
	"github.com/vkngwrapper/vkencoder/internal/gpu"
	"github.com/vkngwrapper/vkencoder/internal/logging"
	"github.com/vkngwrapper/vkencoder/internal/scope"
	"github.com/vkngwrapper/vkencoder/internal/surface"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

type Renderer struct {
	log          *logging.Logger
	cfg          config.Renderer
	globalDriver core1_0.GlobalDriver
	provider     surface.Provider

	relay         *debugRelay
	instanceScope *scope.Scope

	instanceDriver   core1_0.CoreInstanceDriver
	surfaceExtension khr_surface.ExtensionDriver
	// surface is zero when headless.
	surface  khr_surface.Surface
	probe    deviceProbe[core1_0.PhysicalDevice]
	selected candidate[core1_0.PhysicalDevice]
	open     openDevice

	device    *DeviceContext
	swapchain *SwapchainContext
	pipeline  *PipelineContext
	frames    *FrameContext
	capturer  Capturer
	lastFrame *Frame
}

// New initializes Vulkan against provider. A nil provider renders headless: no surface,
// swapchain or pipeline is created. On failure everything created so far is released.
func New(globalDriver core1_0.GlobalDriver, provider surface.Provider, cfg config.Renderer, log *logging.Logger) (*Renderer, error) {
	if globalDriver == nil {
		return nil, vkerr.NullResource("global driver")
	}
	if cfg.ShaderDir == "" {
		cfg.ShaderDir = config.DefaultShaderDir
	}

	r := &Renderer{
		log:           log,
		cfg:           cfg,
		globalDriver:  globalDriver,
		provider:      provider,
		relay:         newDebugRelay(log, cfg.DebugContext),
		instanceScope: scope.New("instance"),
	}
	r.open = func(physical core1_0.PhysicalDevice, info core1_0.DeviceCreateInfo) (gpu.Device, error) {
		return gpu.Open(r.instanceDriver, physical, info)
	}
	// Registered first so it is released last, after the instance has stopped calling back
	r.instanceScope.Defer("debug relay", r.relay.Close)

	if err := r.init(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init() error {
	steps := []func() error{
		r.createInstance,
		r.setupDebugMessenger,
		r.createSurface,
		r.pickPhysicalDevice,
		r.createLogicalDevice,
	}
	if r.provider != nil {
		steps = append(steps, r.createSwapchain, r.createPipeline, r.createFrames)
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	if r.provider == nil {
		r.log.Infof("Renderer ready on %s (headless)", r.device.Name)
	} else {
		r.log.Infof("Renderer ready on %s", r.device.Name)
	}
	return nil
}

// requiredDeviceExtensions is the configured list, or the default for the current mode.
func (r *Renderer) requiredDeviceExtensions() []string {
	return r.cfg.DeviceExtensions(r.provider != nil)
}

func (r *Renderer) Headless() bool {
	return r.provider == nil
}

// Device returns the logical device context. It is nil until New succeeds.
func (r *Renderer) Device() *DeviceContext {
	return r.device
}

// Swapchain is nil when headless.
func (r *Renderer) Swapchain() *SwapchainContext {
	return r.swapchain
}

func (r *Renderer) Pipeline() *PipelineContext {
	return r.pipeline
}

// Close waits for the device to go idle and then releases every handle. Safe to call more
// than once.
func (r *Renderer) Close() {
	if r.instanceScope.Closed() {
		return
	}

	if err := r.WaitIdle(); err != nil {
		r.log.Warnf("device did not go idle before teardown: %v", err)
	}
	r.instanceScope.Close()
	r.device, r.swapchain, r.pipeline, r.frames, r.lastFrame = nil, nil, nil, nil, nil
	r.capturer = nil
}
