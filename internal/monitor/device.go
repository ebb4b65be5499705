// Package monitor provides access to brightness-controllable displays over
// DDC/CI and USB HID.
package monitor

//go:generate mockgen -source=device.go -destination=mocks/device_mock.go -package=mocks

// DeviceInfo describes one brightness-controllable display device.
type DeviceInfo struct {
	// ID uniquely identifies the device among those currently connected
	// (an I2C bus path or a USB serial number). Not stable across runs.
	ID string

	// Name is the human-readable product name.
	Name string

	// Backend names the hardware channel, "ddc" or "asd".
	Backend string
}

// Device is the raw hardware channel for one display. A single call may
// transiently fail; callers are expected to retry. Implementations need not
// be safe for concurrent use, Monitor serializes access.
type Device interface {
	// Brightness reads the current brightness level from the hardware.
	Brightness() (uint32, error)

	// SetBrightness writes a brightness level to the hardware. The level
	// must already be within the device's bounds.
	SetBrightness(level uint32) error

	// Bounds returns the inclusive brightness range supported by the
	// device, as reported at enumeration time.
	Bounds() (min, max uint32)

	// Close releases the device handle.
	Close() error

	// Info returns static information about the device.
	Info() DeviceInfo
}
