// Package surface defines what the renderer needs from a windowing collaborator.
package surface

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// Provider supplies a presentation surface. A nil Provider means headless rendering.
type Provider interface {
	// CreateSurface creates the platform surface for instance. The caller owns the result.
	CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error)
	// RequiredInstanceExtensions lists the instance extensions CreateSurface depends on.
	RequiredInstanceExtensions() []string
	// FramebufferSize is the drawable size in pixels.
	FramebufferSize() (width, height int)
}
