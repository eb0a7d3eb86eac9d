package renderer

import (
	"strings"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/vkencoder/internal/surface"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

// checkValidationLayers fails naming every requested layer the loader does not offer.
func checkValidationLayers(requested []string, available nameSet) error {
	missing := missingExtensions(requested, available)
	if len(missing) > 0 {
		return vkerr.Configurationf("validation layers requested, but not available: %s", strings.Join(missing, ", "))
	}
	return nil
}

// requiredInstanceExtensions collects the surface provider's extensions, debug utils when
// diagnostics are on, and portability enumeration when the loader offers it. The second
// result reports whether portability enumeration was added.
func requiredInstanceExtensions(provider surface.Provider, diagnostics bool, available nameSet) ([]string, bool, error) {
	var extensions []string

	if provider != nil {
		var missing []string
		for _, ext := range provider.RequiredInstanceExtensions() {
			if !available.has(ext) {
				missing = append(missing, ext)
				continue
			}
			extensions = append(extensions, ext)
		}
		if len(missing) > 0 {
			return nil, false, vkerr.Configurationf("surface requires unavailable instance extensions: %s", strings.Join(missing, ", "))
		}
	}

	if diagnostics {
		if !available.has(ext_debug_utils.ExtensionName) {
			return nil, false, vkerr.Configurationf("diagnostics require %s", ext_debug_utils.ExtensionName)
		}
		extensions = append(extensions, ext_debug_utils.ExtensionName)
	}

	portability := available.has(khr_portability_enumeration.ExtensionName)
	if portability {
		extensions = append(extensions, khr_portability_enumeration.ExtensionName)
	}

	return extensions, portability, nil
}

func (r *Renderer) instanceCreateInfo() (core1_0.InstanceCreateInfo, error) {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    r.cfg.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, err := availableInstanceExtensions(r.globalDriver)
	if err != nil {
		return instanceOptions, vkerr.Failed(err, "instance extension enumeration")
	}

	var portability bool
	instanceOptions.EnabledExtensionNames, portability, err = requiredInstanceExtensions(r.provider, r.cfg.EnableDiagnostics, extensions)
	if err != nil {
		return instanceOptions, err
	}
	if portability {
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if r.cfg.EnableDiagnostics {
		layers, err := availableLayers(r.globalDriver)
		if err != nil {
			return instanceOptions, vkerr.Failed(err, "instance layer enumeration")
		}

		if err := checkValidationLayers(r.cfg.RequiredValidationLayers, layers); err != nil {
			return instanceOptions, err
		}
		instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, r.cfg.RequiredValidationLayers...)

		// Covers messages emitted by instance creation and destruction themselves
		instanceOptions.Next = debugMessengerCreateInfo(r.relay)
	}

	return instanceOptions, nil
}

func (r *Renderer) createInstance() error {
	instanceOptions, err := r.instanceCreateInfo()
	if err != nil {
		return err
	}

	r.instanceDriver, _, err = r.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return vkerr.Creation(err, "instance")
	}

	instanceDriver := r.instanceDriver
	r.instanceScope.Defer("instance", func() { instanceDriver.DestroyInstance(nil) })
	r.log.Debugf("Created instance with extensions [%s]", strings.Join(instanceOptions.EnabledExtensionNames, ", "))
	return nil
}

func (r *Renderer) setupDebugMessenger() error {
	if !r.cfg.EnableDiagnostics {
		return nil
	}

	debugDriver := ext_debug_utils.CreateExtensionDriverFromCoreDriver(r.instanceDriver)
	messenger, _, err := debugDriver.CreateDebugUtilsMessenger(nil, debugMessengerCreateInfo(r.relay))
	if err != nil {
		return vkerr.Creation(err, "debug messenger")
	}

	r.instanceScope.Defer("debug messenger", func() { debugDriver.DestroyDebugUtilsMessenger(messenger, nil) })
	return nil
}

func (r *Renderer) createSurface() error {
	r.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(r.instanceDriver)
	probe := &vkProbe{instanceDriver: r.instanceDriver, surfaceExtension: r.surfaceExtension}
	r.probe = probe

	if r.provider == nil {
		r.log.Infof("No surface provider, rendering headless")
		return nil
	}

	surfaceHandle, err := r.provider.CreateSurface(r.instanceDriver.Instance(), r.surfaceExtension)
	if err != nil {
		return vkerr.Creation(err, "surface")
	}

	surfaceExtension := r.surfaceExtension
	r.instanceScope.Defer("surface", func() { surfaceExtension.DestroySurface(surfaceHandle, nil) })
	r.surface = surfaceHandle
	probe.surface = surfaceHandle
	return nil
}
