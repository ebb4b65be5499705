package monitor

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrNoDisplays is returned when enumeration finds no controllable displays.
var ErrNoDisplays = errors.New("no brightness-controllable displays found")

// Enumerator discovers displays behind one hardware channel and returns an
// open Device per display. A single enumerator failing is not fatal as long
// as another one finds displays.
type Enumerator func() ([]Device, error)

// Manager owns the ordered set of displays for the process lifetime.
// Displays are enumerated once at startup; their index in the resulting
// sequence is the target identity used everywhere else.
type Manager struct {
	enumerators []Enumerator
	monitors    []*Monitor
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithEnumerator adds an enumerator, replacing the default hardware
// backends. Used for testing and for restricting the daemon to one channel.
func WithEnumerator(fn Enumerator) ManagerOption {
	return func(m *Manager) {
		m.enumerators = append(m.enumerators, fn)
	}
}

// NewManager creates a manager. Without options it enumerates DDC/CI
// displays and Apple Studio Displays.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.enumerators) == 0 {
		m.enumerators = []Enumerator{EnumerateDDC, EnumerateAppleStudioDisplays}
	}
	return m
}

// Enumerate discovers and opens all displays. It returns ErrNoDisplays if
// nothing controllable was found; the daemon cannot run in a degraded mode
// with zero targets.
func (m *Manager) Enumerate() error {
	var errs []error
	for _, enumerate := range m.enumerators {
		devices, err := enumerate()
		if err != nil {
			log.Warn().Err(err).Msg("Display enumeration failed for one backend")
			errs = append(errs, err)
			continue
		}
		for _, device := range devices {
			info := device.Info()
			log.Info().
				Str("id", info.ID).
				Str("name", info.Name).
				Str("backend", info.Backend).
				Msg("Display found")
			m.monitors = append(m.monitors, NewMonitor(device))
		}
	}

	if len(m.monitors) == 0 {
		if len(errs) > 0 {
			return errors.Join(append([]error{ErrNoDisplays}, errs...)...)
		}
		return ErrNoDisplays
	}
	return nil
}

// Monitors returns the enumerated displays in stable order.
func (m *Manager) Monitors() []*Monitor {
	return m.monitors
}

// Count returns the number of enumerated displays.
func (m *Manager) Count() int {
	return len(m.monitors)
}

// Close releases all display handles.
func (m *Manager) Close() error {
	var errs []error
	for _, mon := range m.monitors {
		if err := mon.Close(); err != nil {
			log.Error().Err(err).Str("name", mon.Name()).Msg("Failed to close display")
			errs = append(errs, err)
		}
	}
	m.monitors = nil
	return errors.Join(errs...)
}
