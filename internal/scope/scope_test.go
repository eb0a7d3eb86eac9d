package scope

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func recorder(order *[]string, what string) func() {
	return func() { *order = append(*order, what) }
}

func TestReverseOrder(t *testing.T) {
	c := qt.New(t)
	var order []string

	s := New("instance")
	s.Defer("instance", recorder(&order, "instance"))
	s.Defer("messenger", recorder(&order, "messenger"))
	s.Defer("surface", recorder(&order, "surface"))

	c.Assert(s.Pending(), qt.DeepEquals, []string{"surface", "messenger", "instance"})
	s.Close()
	c.Assert(order, qt.DeepEquals, []string{"surface", "messenger", "instance"})
	c.Assert(s.Closed(), qt.IsTrue)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := qt.New(t)
	var order []string

	s := New("device")
	s.Defer("device", recorder(&order, "device"))
	s.Close()
	s.Close()
	c.Assert(order, qt.DeepEquals, []string{"device"})
}

func TestChildrenCloseBeforeParent(t *testing.T) {
	c := qt.New(t)
	var order []string

	instance := New("instance")
	instance.Defer("instance", recorder(&order, "instance"))

	device := instance.Child("device")
	device.Defer("device", recorder(&order, "device"))

	swapchain := device.Child("swapchain")
	swapchain.Defer("swapchain", recorder(&order, "swapchain"))
	swapchain.Defer("views", recorder(&order, "views"))

	encoder := device.Child("encoder")
	encoder.Defer("command pool", recorder(&order, "command pool"))
	encoder.Defer("buffer", recorder(&order, "buffer"))

	instance.Close()
	c.Assert(order, qt.DeepEquals, []string{
		"buffer", "command pool",
		"views", "swapchain",
		"device",
		"instance",
	})
	c.Assert(encoder.Closed(), qt.IsTrue)

	// the child's own owner closing later is harmless
	encoder.Close()
	c.Assert(order, qt.HasLen, 6)
}

func TestClosedChildDetaches(t *testing.T) {
	c := qt.New(t)
	var order []string

	device := New("device")
	device.Defer("device", recorder(&order, "device"))

	first := device.Child("swapchain")
	first.Defer("old swapchain", recorder(&order, "old swapchain"))
	first.Close()

	second := device.Child("swapchain")
	second.Defer("new swapchain", recorder(&order, "new swapchain"))

	c.Assert(device.Pending(), qt.DeepEquals, []string{"new swapchain", "device"})
	device.Close()
	c.Assert(order, qt.DeepEquals, []string{"old swapchain", "new swapchain", "device"})
}

func TestLateRegistrationReleasesImmediately(t *testing.T) {
	c := qt.New(t)
	var order []string

	s := New("device")
	s.Close()

	s.Defer("late", recorder(&order, "late"))
	c.Assert(order, qt.DeepEquals, []string{"late"})

	child := s.Child("child")
	c.Assert(child.Closed(), qt.IsTrue)
	child.Defer("orphan", recorder(&order, "orphan"))
	c.Assert(order, qt.DeepEquals, []string{"late", "orphan"})
}
