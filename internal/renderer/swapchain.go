package renderer

import (
	"math"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/vkencoder/internal/logging"
	"github.com/vkngwrapper/vkencoder/internal/scope"
	"github.com/vkngwrapper/vkencoder/internal/surface"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

func chooseSwapSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

// chooseSwapPresentMode falls back to FIFO, which every implementation must support.
func chooseSwapPresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// extentUndefined reports the "surface size follows the swapchain" sentinel, which the driver
// returns as 0xFFFFFFFF and vkngwrapper surfaces as -1.
func extentUndefined(extent core1_0.Extent2D) bool {
	return uint32(extent.Width) == math.MaxUint32 || uint32(extent.Height) == math.MaxUint32
}

func clamp(v, min, max int) int {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v
}

func chooseSwapExtent(capabilities *khr_surface.SurfaceCapabilities, provider surface.Provider, log *logging.Logger) core1_0.Extent2D {
	if provider == nil || capabilities == nil {
		log.Warnf("no surface to size the swapchain from, using a zero extent")
		return core1_0.Extent2D{}
	}

	if !extentUndefined(capabilities.CurrentExtent) {
		return capabilities.CurrentExtent
	}

	width, height := provider.FramebufferSize()
	return core1_0.Extent2D{
		Width:  clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// swapImageCount asks for one more than the minimum, capped by a non-zero maximum.
func swapImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

// swapchainPlan is every decision needed to create a swapchain.
type swapchainPlan struct {
	Format      khr_surface.SurfaceFormat
	PresentMode khr_surface.PresentMode
	Extent      core1_0.Extent2D
	ImageCount  int
	Transform   khr_surface.SurfaceTransformFlags
}

func planSwapchain(support SwapchainSupport, provider surface.Provider, log *logging.Logger) swapchainPlan {
	return swapchainPlan{
		Format:      chooseSwapSurfaceFormat(support.Formats),
		PresentMode: chooseSwapPresentMode(support.PresentModes),
		Extent:      chooseSwapExtent(support.Capabilities, provider, log),
		ImageCount:  swapImageCount(support.Capabilities),
		Transform:   support.Capabilities.CurrentTransform,
	}
}

func swapchainCreateInfo(surfaceHandle khr_surface.Surface, plan swapchainPlan, queues QueueFamilyIndices, capture bool) khr_swapchain.SwapchainCreateInfo {
	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int

	if *queues.GraphicsFamily != *queues.PresentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, *queues.GraphicsFamily, *queues.PresentFamily)
	}

	usage := core1_0.ImageUsageColorAttachment
	if capture {
		usage |= core1_0.ImageUsageTransferSrc
	}

	return khr_swapchain.SwapchainCreateInfo{
		Surface: surfaceHandle,

		MinImageCount:    plan.ImageCount,
		ImageFormat:      plan.Format.Format,
		ImageColorSpace:  plan.Format.ColorSpace,
		ImageExtent:      plan.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       usage,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   plan.Transform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    plan.PresentMode,
		Clipped:        true,
	}
}

// imageViewCreateInfo describes a 2D color view of one mip level and one layer. Zero-valued
// component mappings are the identity swizzle.
func imageViewCreateInfo(image core1_0.Image, format core1_0.Format) core1_0.ImageViewCreateInfo {
	return core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
}

type SwapchainContext struct {
	Swapchain khr_swapchain.Swapchain
	// Images belong to the swapchain and are never destroyed directly.
	Images      []core1_0.Image
	Views       []core1_0.ImageView
	Format      core1_0.Format
	Extent      core1_0.Extent2D
	PresentMode khr_surface.PresentMode

	Scope *scope.Scope
}

func (r *Renderer) createSwapchain() error {
	support, err := r.probe.SwapchainSupport(r.device.PhysicalDevice)
	if err != nil {
		return vkerr.Failed(err, "swapchain support query")
	}
	if !support.Adequate() {
		return vkerr.Configurationf("surface offers no formats or present modes on %s", r.device.Name)
	}

	plan := planSwapchain(support, r.provider, r.log)
	deviceDriver := r.device.Driver

	swapchainHandle, err := deviceDriver.CreateSwapchain(swapchainCreateInfo(r.surface, plan, r.device.Queues, r.cfg.CaptureFrames))
	if err != nil {
		return vkerr.Creation(err, "swapchain")
	}

	swapchainScope := r.device.Scope.Child("swapchain")
	swapchainScope.Defer("swapchain", func() { deviceDriver.DestroySwapchain(swapchainHandle) })

	sc := &SwapchainContext{
		Swapchain:   swapchainHandle,
		Format:      plan.Format.Format,
		Extent:      plan.Extent,
		PresentMode: plan.PresentMode,
		Scope:       swapchainScope,
	}
	r.swapchain = sc

	sc.Images, err = deviceDriver.SwapchainImages(swapchainHandle)
	if err != nil {
		return vkerr.Creation(err, "swapchain image list")
	}

	for _, image := range sc.Images {
		view, err := deviceDriver.CreateImageView(imageViewCreateInfo(image, sc.Format))
		if err != nil {
			return vkerr.Creation(err, "swapchain image view")
		}

		swapchainScope.Defer("image view", func() { deviceDriver.DestroyImageView(view) })
		sc.Views = append(sc.Views, view)
	}

	r.log.Debugf("Created swapchain: %d images %dx%d, present mode %s",
		len(sc.Images), sc.Extent.Width, sc.Extent.Height, sc.PresentMode)
	return nil
}

// recreateSwapchain rebuilds everything sized by the swapchain after the surface changed. A
// zero-area surface is skipped until it is restored.
func (r *Renderer) recreateSwapchain() error {
	if r.provider != nil {
		if w, h := r.provider.FramebufferSize(); w == 0 || h == 0 {
			return nil
		}
	}

	if err := r.device.Driver.DeviceWaitIdle(); err != nil {
		return vkerr.Failed(err, "device idle wait")
	}

	r.swapchain.Scope.Close()
	r.swapchain, r.pipeline, r.frames = nil, nil, nil

	if err := r.createSwapchain(); err != nil {
		return err
	}
	if err := r.createPipeline(); err != nil {
		return err
	}
	return r.createFrames()
}
