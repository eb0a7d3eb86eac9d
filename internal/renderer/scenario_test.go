package renderer

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/vkencoder/internal/config"
	"github.com/vkngwrapper/vkencoder/internal/gpu/gputest"
	"github.com/vkngwrapper/vkencoder/internal/logging"
)

// These walk the decision path New takes, with the native queries answered by fakes.

func TestHeadlessBringUp(t *testing.T) {
	c := qt.New(t)
	cfg := config.Default().Renderer
	required := cfg.DeviceExtensions(false)

	extensions, _, err := requiredInstanceExtensions(nil, false, newNameSet())
	c.Assert(err, qt.IsNil)
	c.Assert(extensions, qt.HasLen, 0)

	transferOnly := &fakeDevice{name: "dma", families: []core1_0.QueueFlags{core1_0.QueueTransfer}, extensions: required}
	gpu := &fakeDevice{
		name:       "gpu",
		families:   []core1_0.QueueFlags{core1_0.QueueCompute, core1_0.QueueGraphics | core1_0.QueueCompute},
		extensions: append([]string{"VK_KHR_swapchain"}, required...),
	}

	probe := &fakeProbe{}
	selected, err := selectPhysicalDevice[*fakeDevice](logging.Discard(), probe, []*fakeDevice{transferOnly, gpu}, required)
	c.Assert(err, qt.IsNil)
	c.Assert(selected.Device, qt.Equals, gpu)
	c.Assert(*selected.Queues.GraphicsFamily, qt.Equals, 1)
	c.Assert(selected.Queues.PresentFamily, qt.IsNil)
	c.Assert(selected.Swapchain.Adequate(), qt.IsFalse)

	infos := queueCreateInfos(selected.Queues, probe.SurfaceAttached())
	c.Assert(infos, qt.DeepEquals, []core1_0.DeviceQueueCreateInfo{
		{QueueFamilyIndex: 1, QueuePriorities: []float32{1.0}},
	})
}

func TestWindowedBringUp(t *testing.T) {
	c := qt.New(t)
	provider := &fakeProvider{extensions: []string{"VK_KHR_surface", "VK_KHR_win32_surface"}, width: 800, height: 600}
	required := config.Default().Renderer.DeviceExtensions(true)

	extensions, _, err := requiredInstanceExtensions(provider, false, newNameSet("VK_KHR_surface", "VK_KHR_win32_surface"))
	c.Assert(err, qt.IsNil)
	c.Assert(extensions, qt.DeepEquals, []string{"VK_KHR_surface", "VK_KHR_win32_surface"})

	support := SwapchainSupport{
		Capabilities: &khr_surface.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
			MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: core1_0.Extent2D{Width: 16384, Height: 16384},
		},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
	}
	gpu := &fakeDevice{
		name:       "gpu",
		families:   []core1_0.QueueFlags{core1_0.QueueGraphics, core1_0.QueueTransfer},
		present:    map[int]bool{1: true},
		extensions: required,
		support:    support,
	}

	probe := &fakeProbe{surface: true}
	selected, err := selectPhysicalDevice[*fakeDevice](logging.Discard(), probe, []*fakeDevice{gpu}, required)
	c.Assert(err, qt.IsNil)
	c.Assert(queueCreateInfos(selected.Queues, true), qt.HasLen, 2)

	plan := planSwapchain(selected.Swapchain, provider, logging.Discard())
	c.Assert(plan.ImageCount, qt.Equals, 3)
	c.Assert(plan.Extent, qt.Equals, core1_0.Extent2D{Width: 800, Height: 600})
	c.Assert(plan.PresentMode, qt.Equals, khr_surface.PresentModeMailbox)
	c.Assert(plan.Format.Format, qt.Equals, core1_0.FormatB8G8R8A8SRGB)

	dev := gputest.NewDevice()
	dev.SwapchainImageCount = plan.ImageCount
	r, _ := newTestRenderer(c, dev, false)
	r.probe = &attachedSurface{support: selected.Swapchain}
	r.selected.Queues = selected.Queues
	c.Assert(r.createLogicalDevice(), qt.IsNil)
	c.Assert(r.createSwapchain(), qt.IsNil)

	c.Assert(dev.Queues, qt.DeepEquals, []int{0, 1})
	c.Assert(dev.Swapchains, qt.HasLen, 1)
	c.Assert(dev.Swapchains[0].ImageSharingMode, qt.Equals, core1_0.SharingModeConcurrent)
	c.Assert(dev.Swapchains[0].ImageExtent, qt.Equals, plan.Extent)
	c.Assert(dev.Swapchains[0].PresentMode, qt.Equals, khr_surface.PresentModeMailbox)

	// One view per swap image, in the chosen format
	c.Assert(r.Swapchain().Views, qt.HasLen, 3)
	c.Assert(dev.Views, qt.HasLen, 3)
	for _, view := range dev.Views {
		c.Assert(view.Format, qt.Equals, plan.Format.Format)
	}
}
