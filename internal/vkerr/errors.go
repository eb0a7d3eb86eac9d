// Package vkerr holds the error taxonomy shared by the renderer, encoder and window.
//
// Every error raised by this module carries exactly one of the marks below, so callers can
// classify failures with errors.Is regardless of how much context was wrapped around them.
package vkerr

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration marks missing validation layers, extensions or invalid settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrResourceCreation marks a failed native creation call.
	ErrResourceCreation = errors.New("resource creation failed")
	// ErrNoSuitableDevice marks device selection failures.
	ErrNoSuitableDevice = errors.New("no suitable physical device")
	// ErrNoDevice marks an empty physical device enumeration. Errors carrying it also carry
	// ErrNoSuitableDevice.
	ErrNoDevice = errors.New("no physical device")
	// ErrIO marks file open/read/write failures.
	ErrIO = errors.New("i/o error")
	// ErrNullResource marks an operation attempted on something that was never created.
	ErrNullResource = errors.New("null resource")
)

// Configurationf builds a configuration error.
func Configurationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// Creation wraps a native failure while creating what.
func Creation(err error, what string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "failed to create %s", what), ErrResourceCreation)
}

// Failed wraps a native failure outside of creation, such as a wait or a submit. It carries
// the same mark as Creation.
func Failed(err error, what string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "%s failed", what), ErrResourceCreation)
}

// NoDevice reports an empty physical device list.
func NoDevice() error {
	err := errors.New("failed to find GPUs with Vulkan support")
	return errors.Mark(errors.Mark(err, ErrNoDevice), ErrNoSuitableDevice)
}

// NoSuitableDevice reports that no candidate passed the suitability predicate.
func NoSuitableDevice(candidates int) error {
	return errors.Mark(errors.Newf("failed to find a suitable GPU among %d candidates", candidates), ErrNoSuitableDevice)
}

// IO wraps a file system failure.
func IO(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIO)
}

// NullResource reports use of an uninitialized resource.
func NullResource(what string) error {
	return errors.Mark(errors.Newf("%s is not initialized", what), ErrNullResource)
}

// ExitCode maps an error returned from the top level to a process status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
