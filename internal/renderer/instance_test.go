package renderer

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"

	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

func TestCheckValidationLayers(t *testing.T) {
	c := qt.New(t)
	available := newNameSet("VK_LAYER_KHRONOS_validation", "VK_LAYER_LUNARG_api_dump")

	c.Assert(checkValidationLayers([]string{"VK_LAYER_KHRONOS_validation"}, available), qt.IsNil)
	c.Assert(checkValidationLayers(nil, available), qt.IsNil)

	err := checkValidationLayers([]string{"VK_LAYER_KHRONOS_validation", "VK_LAYER_A", "VK_LAYER_B"}, available)
	c.Assert(errors.Is(err, vkerr.ErrConfiguration), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, "validation layers requested, but not available: VK_LAYER_A, VK_LAYER_B")
}

func TestRequiredInstanceExtensions(t *testing.T) {
	c := qt.New(t)
	provider := &fakeProvider{extensions: []string{"VK_KHR_surface", "VK_KHR_xlib_surface"}}
	available := newNameSet("VK_KHR_surface", "VK_KHR_xlib_surface", ext_debug_utils.ExtensionName)

	c.Run("windowed with diagnostics", func(c *qt.C) {
		extensions, portability, err := requiredInstanceExtensions(provider, true, available)
		c.Assert(err, qt.IsNil)
		c.Assert(portability, qt.IsFalse)
		c.Assert(extensions, qt.DeepEquals, []string{"VK_KHR_surface", "VK_KHR_xlib_surface", ext_debug_utils.ExtensionName})
	})

	c.Run("headless without diagnostics", func(c *qt.C) {
		extensions, _, err := requiredInstanceExtensions(nil, false, available)
		c.Assert(err, qt.IsNil)
		c.Assert(extensions, qt.HasLen, 0)
	})

	c.Run("portability", func(c *qt.C) {
		withPortability := newNameSet("VK_KHR_surface", "VK_KHR_xlib_surface", khr_portability_enumeration.ExtensionName)
		extensions, portability, err := requiredInstanceExtensions(provider, false, withPortability)
		c.Assert(err, qt.IsNil)
		c.Assert(portability, qt.IsTrue)
		c.Assert(extensions, qt.DeepEquals, []string{"VK_KHR_surface", "VK_KHR_xlib_surface", khr_portability_enumeration.ExtensionName})
	})

	c.Run("surface extension missing", func(c *qt.C) {
		_, _, err := requiredInstanceExtensions(provider, false, newNameSet("VK_KHR_surface"))
		c.Assert(errors.Is(err, vkerr.ErrConfiguration), qt.IsTrue)
		c.Assert(err, qt.ErrorMatches, "surface requires unavailable instance extensions: VK_KHR_xlib_surface")
	})

	c.Run("debug utils missing", func(c *qt.C) {
		_, _, err := requiredInstanceExtensions(nil, true, newNameSet())
		c.Assert(errors.Is(err, vkerr.ErrConfiguration), qt.IsTrue)
	})
}
