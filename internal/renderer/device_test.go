package renderer

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"

	"github.com/vkngwrapper/vkencoder/internal/logging"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

func intPtr(i int) *int { return &i }

func TestIsComplete(t *testing.T) {
	c := qt.New(t)

	c.Assert(QueueFamilyIndices{}.IsComplete(false), qt.IsFalse)
	c.Assert(QueueFamilyIndices{}.IsComplete(true), qt.IsFalse)

	graphicsOnly := QueueFamilyIndices{GraphicsFamily: intPtr(0)}
	c.Assert(graphicsOnly.IsComplete(false), qt.IsTrue)
	c.Assert(graphicsOnly.IsComplete(true), qt.IsFalse)

	presentOnly := QueueFamilyIndices{PresentFamily: intPtr(1)}
	c.Assert(presentOnly.IsComplete(true), qt.IsFalse)

	both := QueueFamilyIndices{GraphicsFamily: intPtr(0), PresentFamily: intPtr(1)}
	c.Assert(both.IsComplete(true), qt.IsTrue)
	c.Assert(both.IsComplete(false), qt.IsTrue)
}

func TestFindQueueFamiliesPicksLowestIndices(t *testing.T) {
	c := qt.New(t)

	device := &fakeDevice{
		families: []core1_0.QueueFlags{
			core1_0.QueueTransfer,
			core1_0.QueueCompute,
			core1_0.QueueGraphics | core1_0.QueueCompute,
			core1_0.QueueGraphics,
		},
		present: map[int]bool{1: true, 3: true},
	}

	c.Run("windowed", func(c *qt.C) {
		probe := &fakeProbe{surface: true}
		indices, err := findQueueFamilies[*fakeDevice](probe, device)
		c.Assert(err, qt.IsNil)
		c.Assert(*indices.GraphicsFamily, qt.Equals, 2)
		c.Assert(*indices.PresentFamily, qt.Equals, 1)
		// Present is not asked again once a family is found
		c.Assert(probe.presentCalls, qt.DeepEquals, []int{0, 1})
	})

	c.Run("stops once complete", func(c *qt.C) {
		probe := &fakeProbe{surface: true}
		indices, err := findQueueFamilies[*fakeDevice](probe, &fakeDevice{
			families: []core1_0.QueueFlags{core1_0.QueueGraphics, core1_0.QueueGraphics},
			present:  map[int]bool{0: true, 1: true},
		})
		c.Assert(err, qt.IsNil)
		c.Assert(*indices.GraphicsFamily, qt.Equals, 0)
		c.Assert(*indices.PresentFamily, qt.Equals, 0)
		c.Assert(probe.presentCalls, qt.DeepEquals, []int{0})
	})

	c.Run("headless", func(c *qt.C) {
		probe := &fakeProbe{}
		indices, err := findQueueFamilies[*fakeDevice](probe, device)
		c.Assert(err, qt.IsNil)
		c.Assert(*indices.GraphicsFamily, qt.Equals, 2)
		c.Assert(indices.PresentFamily, qt.IsNil)
		c.Assert(probe.presentCalls, qt.HasLen, 0)
	})
}

func TestMissingExtensions(t *testing.T) {
	c := qt.New(t)
	available := newNameSet("VK_KHR_swapchain", "VK_KHR_maintenance1", "VK_KHR_video_queue")

	c.Assert(missingExtensions(nil, available), qt.HasLen, 0)
	c.Assert(missingExtensions([]string{"VK_KHR_swapchain", "VK_KHR_video_queue"}, available), qt.HasLen, 0)

	missing := missingExtensions([]string{"VK_KHR_swapchain", "VK_KHR_video_encode_queue", "VK_KHR_video_encode_h264"}, available)
	c.Assert(missing, qt.DeepEquals, []string{"VK_KHR_video_encode_queue", "VK_KHR_video_encode_h264"})

	c.Assert(missingExtensions([]string{"VK_KHR_swapchain"}, newNameSet()), qt.DeepEquals, []string{"VK_KHR_swapchain"})
}

func TestSelectPhysicalDeviceEmptyList(t *testing.T) {
	c := qt.New(t)

	_, err := selectPhysicalDevice[*fakeDevice](logging.Discard(), &fakeProbe{}, nil, nil)
	c.Assert(errors.Is(err, vkerr.ErrNoDevice), qt.IsTrue)
	c.Assert(errors.Is(err, vkerr.ErrNoSuitableDevice), qt.IsTrue)
}

func TestSelectPhysicalDeviceReportsRejections(t *testing.T) {
	c := qt.New(t)
	log, buf := captureLog()

	noGraphics := &fakeDevice{name: "compute-only", families: []core1_0.QueueFlags{core1_0.QueueCompute}, extensions: []string{"VK_KHR_swapchain"}}
	noPresent := &fakeDevice{name: "offscreen", families: []core1_0.QueueFlags{core1_0.QueueGraphics}, extensions: []string{"VK_KHR_swapchain"}}
	noExtension := &fakeDevice{name: "old", families: []core1_0.QueueFlags{core1_0.QueueGraphics}, present: map[int]bool{0: true}}
	noFormats := &fakeDevice{
		name: "formatless", families: []core1_0.QueueFlags{core1_0.QueueGraphics}, present: map[int]bool{0: true},
		extensions: []string{"VK_KHR_swapchain"},
		support:    SwapchainSupport{PresentModes: adequateSupport().PresentModes},
	}

	_, err := selectPhysicalDevice[*fakeDevice](log, &fakeProbe{surface: true},
		[]*fakeDevice{noGraphics, noPresent, noExtension, noFormats}, []string{"VK_KHR_swapchain"})
	c.Assert(errors.Is(err, vkerr.ErrNoSuitableDevice), qt.IsTrue)
	c.Assert(errors.Is(err, vkerr.ErrNoDevice), qt.IsFalse)

	out := buf.String()
	c.Assert(out, qt.Contains, "[Warn] device rejected: no graphics queue family device=compute-only")
	c.Assert(out, qt.Contains, "[Warn] device rejected: no present queue family for the surface device=offscreen")
	c.Assert(out, qt.Contains, "[Warn] device rejected: missing extensions VK_KHR_swapchain device=old")
	c.Assert(out, qt.Contains, "[Warn] device rejected: no surface formats device=formatless")
}

func TestSelectPhysicalDeviceFirstSuitableWins(t *testing.T) {
	c := qt.New(t)

	broken := &fakeDevice{name: "broken", families: []core1_0.QueueFlags{core1_0.QueueGraphics}, extErr: errors.New("lost")}
	first := &fakeDevice{
		name: "first", families: []core1_0.QueueFlags{core1_0.QueueGraphics}, present: map[int]bool{0: true},
		extensions: []string{"VK_KHR_swapchain"}, support: adequateSupport(),
	}
	second := &fakeDevice{
		name: "second", families: []core1_0.QueueFlags{core1_0.QueueGraphics}, present: map[int]bool{0: true},
		extensions: []string{"VK_KHR_swapchain"}, support: adequateSupport(),
	}

	selected, err := selectPhysicalDevice[*fakeDevice](logging.Discard(), &fakeProbe{surface: true},
		[]*fakeDevice{broken, first, second}, []string{"VK_KHR_swapchain"})
	c.Assert(err, qt.IsNil)
	c.Assert(selected.Device, qt.Equals, first)
	c.Assert(selected.Name, qt.Equals, "first")
	c.Assert(*selected.Queues.GraphicsFamily, qt.Equals, 0)
	c.Assert(*selected.Queues.PresentFamily, qt.Equals, 0)
}

func TestQueueCreateInfos(t *testing.T) {
	c := qt.New(t)

	shared := QueueFamilyIndices{GraphicsFamily: intPtr(0), PresentFamily: intPtr(0)}
	c.Assert(queueCreateInfos(shared, true), qt.DeepEquals, []core1_0.DeviceQueueCreateInfo{
		{QueueFamilyIndex: 0, QueuePriorities: []float32{1.0}},
	})

	split := QueueFamilyIndices{GraphicsFamily: intPtr(0), PresentFamily: intPtr(2)}
	infos := queueCreateInfos(split, true)
	c.Assert(infos, qt.HasLen, 2)
	c.Assert(infos[0].QueueFamilyIndex, qt.Equals, 0)
	c.Assert(infos[1].QueueFamilyIndex, qt.Equals, 2)

	c.Assert(queueCreateInfos(split, false), qt.HasLen, 1)
}

func TestDeviceExtensionNamesAddsPortabilitySubset(t *testing.T) {
	c := qt.New(t)
	required := []string{"VK_KHR_swapchain"}

	c.Assert(deviceExtensionNames(required, newNameSet("VK_KHR_swapchain")), qt.DeepEquals, required)
	c.Assert(deviceExtensionNames(required, newNameSet("VK_KHR_swapchain", khr_portability_subset.ExtensionName)),
		qt.DeepEquals, []string{"VK_KHR_swapchain", khr_portability_subset.ExtensionName})
	// The caller's slice is never appended to in place
	c.Assert(required, qt.HasLen, 1)
}
