package renderer

import (
	"sort"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// nameSet is a set of layer or extension names.
type nameSet map[string]struct{}

func newNameSet(names ...string) nameSet {
	set := make(nameSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func (s nameSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s nameSet) sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SwapchainSupport is what a surface offers on one device. It is empty in headless mode.
type SwapchainSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

// Adequate means a swapchain can be built: at least one format and one present mode.
func (s SwapchainSupport) Adequate() bool {
	return len(s.Formats) > 0 && len(s.PresentModes) > 0
}

// deviceProbe answers per-device capability questions. D is the device handle type, so the
// selection logic runs unchanged against the native driver and against test doubles.
type deviceProbe[D any] interface {
	SurfaceAttached() bool
	DeviceName(device D) string
	QueueFamilies(device D) []core1_0.QueueFlags
	SupportsPresent(device D, queueFamily int) (bool, error)
	DeviceExtensions(device D) (nameSet, error)
	SwapchainSupport(device D) (SwapchainSupport, error)
}

// vkProbe queries the native driver.
type vkProbe struct {
	instanceDriver   core1_0.CoreInstanceDriver
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface
}

var _ deviceProbe[core1_0.PhysicalDevice] = (*vkProbe)(nil)

func (p *vkProbe) SurfaceAttached() bool {
	return p.surface.Initialized()
}

func (p *vkProbe) DeviceName(device core1_0.PhysicalDevice) string {
	properties, err := p.instanceDriver.GetPhysicalDeviceProperties(device)
	if err != nil {
		return "<unknown device>"
	}
	return properties.DeviceName
}

func (p *vkProbe) QueueFamilies(device core1_0.PhysicalDevice) []core1_0.QueueFlags {
	var flags []core1_0.QueueFlags
	for _, queueFamily := range p.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device) {
		flags = append(flags, queueFamily.QueueFlags)
	}
	return flags
}

func (p *vkProbe) SupportsPresent(device core1_0.PhysicalDevice, queueFamily int) (bool, error) {
	if !p.SurfaceAttached() {
		return false, nil
	}
	supported, _, err := p.surfaceExtension.GetPhysicalDeviceSurfaceSupport(p.surface, device, queueFamily)
	return supported, err
}

func (p *vkProbe) DeviceExtensions(device core1_0.PhysicalDevice) (nameSet, error) {
	extensions, _, err := p.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return nil, err
	}

	available := make(nameSet, len(extensions))
	for name := range extensions {
		available[name] = struct{}{}
	}
	return available, nil
}

func (p *vkProbe) SwapchainSupport(device core1_0.PhysicalDevice) (SwapchainSupport, error) {
	var details SwapchainSupport
	if !p.SurfaceAttached() {
		return details, nil
	}

	var err error
	details.Capabilities, _, err = p.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(p.surface, device)
	if err != nil {
		return details, err
	}

	details.Formats, _, err = p.surfaceExtension.GetPhysicalDeviceSurfaceFormats(p.surface, device)
	if err != nil {
		return details, err
	}

	details.PresentModes, _, err = p.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(p.surface, device)
	return details, err
}

// availableLayers lists the instance layers the loader reports.
func availableLayers(globalDriver core1_0.GlobalDriver) (nameSet, error) {
	layers, _, err := globalDriver.AvailableLayers()
	if err != nil {
		return nil, err
	}

	available := make(nameSet, len(layers))
	for name := range layers {
		available[name] = struct{}{}
	}
	return available, nil
}

// availableInstanceExtensions lists the instance extensions the loader reports.
func availableInstanceExtensions(globalDriver core1_0.GlobalDriver) (nameSet, error) {
	extensions, _, err := globalDriver.AvailableExtensions()
	if err != nil {
		return nil, err
	}

	available := make(nameSet, len(extensions))
	for name := range extensions {
		available[name] = struct{}{}
	}
	return available, nil
}
