package renderer

import (
	"fmt"
	"strings"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"

	"github.com/vkngwrapper/vkencoder/internal/gpu"
	"github.com/vkngwrapper/vkencoder/internal/logging"
	"github.com/vkngwrapper/vkencoder/internal/scope"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

// IsComplete is true once a graphics family is known and, when presenting, a present family.
func (i QueueFamilyIndices) IsComplete(surfaceAttached bool) bool {
	if !surfaceAttached {
		return i.GraphicsFamily != nil
	}
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// UniqueFamilies lists graphics then present, without duplicates.
func (i QueueFamilyIndices) UniqueFamilies(surfaceAttached bool) []int {
	var families []int
	if i.GraphicsFamily != nil {
		families = append(families, *i.GraphicsFamily)
	}
	if surfaceAttached && i.PresentFamily != nil && (i.GraphicsFamily == nil || *i.PresentFamily != *i.GraphicsFamily) {
		families = append(families, *i.PresentFamily)
	}
	return families
}

func findQueueFamilies[D any](probe deviceProbe[D], device D) (QueueFamilyIndices, error) {
	indices := QueueFamilyIndices{}
	surfaceAttached := probe.SurfaceAttached()

	for queueFamilyIdx, flags := range probe.QueueFamilies(device) {
		if indices.GraphicsFamily == nil && (flags&core1_0.QueueGraphics) != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = queueFamilyIdx
		}

		if surfaceAttached && indices.PresentFamily == nil {
			supported, err := probe.SupportsPresent(device, queueFamilyIdx)
			if err != nil {
				return indices, err
			}

			if supported {
				indices.PresentFamily = new(int)
				*indices.PresentFamily = queueFamilyIdx
			}
		}

		if indices.IsComplete(surfaceAttached) {
			break
		}
	}

	return indices, nil
}

// missingExtensions is required minus available, in required order.
func missingExtensions(required []string, available nameSet) []string {
	var missing []string
	for _, extension := range required {
		if !available.has(extension) {
			missing = append(missing, extension)
		}
	}
	return missing
}

// candidate is everything learned about a device while judging it.
type candidate[D any] struct {
	Device     D
	Name       string
	Queues     QueueFamilyIndices
	Extensions nameSet
	Swapchain  SwapchainSupport
}

// evaluateDevice probes one device and returns every reason it cannot be used.
func evaluateDevice[D any](probe deviceProbe[D], device D, requiredExtensions []string) (candidate[D], []string) {
	c := candidate[D]{Device: device, Name: probe.DeviceName(device)}
	surfaceAttached := probe.SurfaceAttached()
	var problems []string

	queues, err := findQueueFamilies(probe, device)
	c.Queues = queues
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("queue family query failed: %v", err))
	case queues.GraphicsFamily == nil:
		problems = append(problems, "no graphics queue family")
	case !queues.IsComplete(surfaceAttached):
		problems = append(problems, "no present queue family for the surface")
	}

	extensionsSupported := false
	c.Extensions, err = probe.DeviceExtensions(device)
	if err != nil {
		problems = append(problems, fmt.Sprintf("extension query failed: %v", err))
	} else if missing := missingExtensions(requiredExtensions, c.Extensions); len(missing) > 0 {
		problems = append(problems, "missing extensions "+strings.Join(missing, ", "))
	} else {
		extensionsSupported = true
	}

	if surfaceAttached && extensionsSupported {
		c.Swapchain, err = probe.SwapchainSupport(device)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("swapchain support query failed: %v", err))
		case len(c.Swapchain.Formats) == 0:
			problems = append(problems, "no surface formats")
		case len(c.Swapchain.PresentModes) == 0:
			problems = append(problems, "no present modes")
		}
	}

	return c, problems
}

// selectPhysicalDevice returns the first device passing every suitability check.
func selectPhysicalDevice[D any](log *logging.Logger, probe deviceProbe[D], devices []D, requiredExtensions []string) (candidate[D], error) {
	if len(devices) == 0 {
		return candidate[D]{}, vkerr.NoDevice()
	}

	for _, device := range devices {
		c, problems := evaluateDevice(probe, device, requiredExtensions)
		if len(problems) == 0 {
			log.Infof("Selected physical device %s", c.Name)
			return c, nil
		}

		for _, problem := range problems {
			log.With(logging.Fields{"device": c.Name}).Warnf("device rejected: %s", problem)
		}
	}

	return candidate[D]{}, vkerr.NoSuitableDevice(len(devices))
}

// queueCreateInfos builds one record per unique family so a family serving both graphics and
// present is only requested once.
func queueCreateInfos(indices QueueFamilyIndices, surfaceAttached bool) []core1_0.DeviceQueueCreateInfo {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range indices.UniqueFamilies(surfaceAttached) {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}
	return queueFamilyOptions
}

// deviceExtensionNames is the required list plus portability subset when the device has it.
func deviceExtensionNames(required []string, available nameSet) []string {
	extensionNames := append([]string(nil), required...)
	if available.has(khr_portability_subset.ExtensionName) {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}
	return extensionNames
}

// DeviceContext is the logical device and the queues retrieved from it.
type DeviceContext struct {
	Driver         gpu.Device
	PhysicalDevice core1_0.PhysicalDevice
	Name           string
	Queues         QueueFamilyIndices

	GraphicsQueue core1_0.Queue
	// PresentQueue is zero in headless mode.
	PresentQueue core1_0.Queue

	// Scope owns the device. Anything created from Driver belongs in a child of it.
	Scope *scope.Scope
}

func (d *DeviceContext) GraphicsFamily() int {
	return *d.Queues.GraphicsFamily
}

func (r *Renderer) pickPhysicalDevice() error {
	physicalDevices, _, err := r.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return vkerr.Failed(err, "physical device enumeration")
	}

	r.selected, err = selectPhysicalDevice[core1_0.PhysicalDevice](r.log, r.probe, physicalDevices, r.requiredDeviceExtensions())
	return err
}

// openDevice creates the logical device on physical.
type openDevice func(physical core1_0.PhysicalDevice, info core1_0.DeviceCreateInfo) (gpu.Device, error)

func (r *Renderer) createLogicalDevice() error {
	surfaceAttached := r.probe.SurfaceAttached()

	deviceDriver, err := r.open(r.selected.Device, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueCreateInfos(r.selected.Queues, surfaceAttached),
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: deviceExtensionNames(r.requiredDeviceExtensions(), r.selected.Extensions),
	})
	if err != nil {
		return vkerr.Creation(err, "logical device")
	}

	deviceScope := r.instanceScope.Child("device")
	deviceScope.Defer("device", deviceDriver.DestroyDevice)

	device := &DeviceContext{
		Driver:         deviceDriver,
		PhysicalDevice: r.selected.Device,
		Name:           r.selected.Name,
		Queues:         r.selected.Queues,
		GraphicsQueue:  deviceDriver.GetQueue(*r.selected.Queues.GraphicsFamily),
		Scope:          deviceScope,
	}
	if surfaceAttached {
		device.PresentQueue = deviceDriver.GetQueue(*r.selected.Queues.PresentFamily)
	}

	r.device = device
	r.log.Debugf("Created logical device on %s", device.Name)
	return nil
}
