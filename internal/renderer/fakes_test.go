package renderer

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/vkencoder/internal/config"
	"github.com/vkngwrapper/vkencoder/internal/gpu"
	"github.com/vkngwrapper/vkencoder/internal/gpu/gputest"
	"github.com/vkngwrapper/vkencoder/internal/logging"
	"github.com/vkngwrapper/vkencoder/internal/scope"
)

type fakeDevice struct {
	name       string
	families   []core1_0.QueueFlags
	present    map[int]bool
	extensions []string
	support    SwapchainSupport
	extErr     error
}

type fakeProbe struct {
	surface      bool
	presentCalls []int
}

var _ deviceProbe[*fakeDevice] = (*fakeProbe)(nil)

func (p *fakeProbe) SurfaceAttached() bool { return p.surface }

func (p *fakeProbe) DeviceName(device *fakeDevice) string { return device.name }

func (p *fakeProbe) QueueFamilies(device *fakeDevice) []core1_0.QueueFlags { return device.families }

func (p *fakeProbe) SupportsPresent(device *fakeDevice, queueFamily int) (bool, error) {
	if !p.surface {
		return false, errors.New("present queried without a surface")
	}
	p.presentCalls = append(p.presentCalls, queueFamily)
	return device.present[queueFamily], nil
}

func (p *fakeProbe) DeviceExtensions(device *fakeDevice) (nameSet, error) {
	if device.extErr != nil {
		return nil, device.extErr
	}
	return newNameSet(device.extensions...), nil
}

func (p *fakeProbe) SwapchainSupport(device *fakeDevice) (SwapchainSupport, error) {
	if !p.surface {
		return SwapchainSupport{}, nil
	}
	return device.support, nil
}

type fakeProvider struct {
	extensions    []string
	width, height int
}

func (p *fakeProvider) CreateSurface(core1_0.Instance, khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return khr_surface.Surface{}, errors.New("fake provider cannot create native surfaces")
}

func (p *fakeProvider) RequiredInstanceExtensions() []string { return p.extensions }

func (p *fakeProvider) FramebufferSize() (int, int) { return p.width, p.height }

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLog logs everything into one buffer.
func captureLog() (*logging.Logger, *logBuffer) {
	var buf logBuffer
	return logging.New(logging.Verbose, &buf, &buf), &buf
}

func adequateSupport() SwapchainSupport {
	return SwapchainSupport{
		Capabilities: &khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
	}
}

// attachedSurface answers for one native device that presents from every family.
type attachedSurface struct {
	support SwapchainSupport
}

var _ deviceProbe[core1_0.PhysicalDevice] = (*attachedSurface)(nil)

func (p *attachedSurface) SurfaceAttached() bool { return true }

func (p *attachedSurface) DeviceName(core1_0.PhysicalDevice) string { return "gpu" }

func (p *attachedSurface) QueueFamilies(core1_0.PhysicalDevice) []core1_0.QueueFlags {
	return []core1_0.QueueFlags{core1_0.QueueGraphics, core1_0.QueueTransfer}
}

func (p *attachedSurface) SupportsPresent(core1_0.PhysicalDevice, int) (bool, error) {
	return true, nil
}

func (p *attachedSurface) DeviceExtensions(core1_0.PhysicalDevice) (nameSet, error) {
	return newNameSet(config.SwapchainExtension), nil
}

func (p *attachedSurface) SwapchainSupport(core1_0.PhysicalDevice) (SwapchainSupport, error) {
	return p.support, nil
}

// recordingCapturer logs into the device's call log so captures can be ordered against
// submits and presents.
type recordingCapturer struct {
	dev      *gputest.Device
	skip     bool
	err      error
	captured []Frame
}

func (c *recordingCapturer) CaptureFrame(frame Frame, rendered, captured core1_0.Semaphore) (bool, error) {
	c.dev.Record("CaptureFrame")
	if c.err != nil {
		return false, c.err
	}
	if c.skip {
		return false, nil
	}
	c.captured = append(c.captured, frame)
	return true, nil
}

// newTestRenderer is a windowed renderer past device selection, with the logical device
// answered by dev. Graphics and present use families 0 and 1.
func newTestRenderer(c *qt.C, dev *gputest.Device, capture bool) (*Renderer, *logBuffer) {
	log, buf := captureLog()

	cfg := config.Default().Renderer
	cfg.ShaderDir = writeShaders(c, spirvMagic, spirvMagic)
	cfg.CaptureFrames = capture

	support := adequateSupport()
	support.Capabilities.CurrentExtent = core1_0.Extent2D{Width: 800, Height: 600}

	r := &Renderer{
		log:           log,
		cfg:           cfg,
		provider:      &fakeProvider{width: 800, height: 600},
		instanceScope: scope.New("instance"),
		probe:         &attachedSurface{support: support},
		selected: candidate[core1_0.PhysicalDevice]{
			Name:       "gpu",
			Queues:     QueueFamilyIndices{GraphicsFamily: intPtr(0), PresentFamily: intPtr(1)},
			Extensions: newNameSet(config.SwapchainExtension),
			Swapchain:  support,
		},
		open: func(core1_0.PhysicalDevice, core1_0.DeviceCreateInfo) (gpu.Device, error) {
			return dev, nil
		},
	}
	c.Cleanup(r.Close)
	return r, buf
}

// bringUp runs the windowed init steps after device selection.
func bringUp(c *qt.C, r *Renderer) {
	c.Assert(r.createLogicalDevice(), qt.IsNil)
	c.Assert(r.createSwapchain(), qt.IsNil)
	c.Assert(r.createPipeline(), qt.IsNil)
	c.Assert(r.createFrames(), qt.IsNil)
}
