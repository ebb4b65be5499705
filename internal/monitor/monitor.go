package monitor

import (
	"errors"
	"sync"
)

// ErrMonitorClosed is returned when an operation is attempted on a closed monitor.
var ErrMonitorClosed = errors.New("monitor is closed")

// Monitor wraps a Device with the per-target state the coordinator needs:
// the brightness bounds captured at enumeration and serialized hardware
// access. All methods are safe for concurrent use.
type Monitor struct {
	device   Device
	min, max uint32
	mu       sync.Mutex
	closed   bool
}

// NewMonitor wraps the given device, capturing its brightness bounds.
func NewMonitor(device Device) *Monitor {
	min, max := device.Bounds()
	if max < min {
		max = min
	}
	return &Monitor{device: device, min: min, max: max}
}

// Name returns the display's product name.
func (m *Monitor) Name() string {
	return m.device.Info().Name
}

// Info returns static information about the underlying device.
func (m *Monitor) Info() DeviceInfo {
	return m.device.Info()
}

// Bounds returns the inclusive brightness range supported by the display.
func (m *Monitor) Bounds() (min, max uint32) {
	return m.min, m.max
}

// Clamp constrains level to the display's supported range. Pure min/max, so
// re-applying it never changes the value further.
func (m *Monitor) Clamp(level uint32) uint32 {
	if level < m.min {
		return m.min
	}
	if level > m.max {
		return m.max
	}
	return level
}

// ReadBrightness reads the current level from the hardware.
func (m *Monitor) ReadBrightness() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrMonitorClosed
	}
	return m.device.Brightness()
}

// WriteBrightness writes a level to the hardware. The caller is responsible
// for clamping; the level is passed through unchanged.
func (m *Monitor) WriteBrightness(level uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMonitorClosed
	}
	return m.device.SetBrightness(level)
}

// Close releases the underlying device handle.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.device.Close()
}
