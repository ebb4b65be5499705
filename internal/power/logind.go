package power

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	logindInterface       = "org.freedesktop.login1.Manager"
	prepareForSleepSignal = logindInterface + ".PrepareForSleep"
)

// StateHandler is called with every power-state transition observed.
type StateHandler func(State)

// busConn is the subset of dbus.Conn the monitor uses, split out so tests
// can substitute a fake bus.
type busConn interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// Monitor subscribes to systemd-logind sleep notifications on the system bus
// and translates them into display power states: entering sleep reads as the
// display turning off, resuming as it turning on.
type Monitor struct {
	handler StateHandler
	connect func() (busConn, error)

	mu      sync.Mutex
	conn    busConn
	signals chan *dbus.Signal
	stopped bool
}

// NewMonitor creates a power monitor with the given state handler.
func NewMonitor(handler StateHandler) *Monitor {
	return &Monitor{
		handler: handler,
		connect: systemBus,
	}
}

func systemBus() (busConn, error) {
	return dbus.ConnectSystemBus()
}

// Start subscribes to sleep notifications. Non-blocking; signals are handled
// on a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("power monitor already started")
	}

	conn, err := m.connect()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to subscribe to sleep notifications: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	m.conn = conn
	m.signals = signals
	m.stopped = false

	go m.processSignals(signals)

	log.Info().Msg("Power monitor started")
	return nil
}

// Stop unsubscribes and closes the bus connection.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}
	m.stopped = true

	m.conn.RemoveSignal(m.signals)
	err := m.conn.Close()
	m.conn = nil

	log.Info().Msg("Power monitor stopped")
	if err != nil {
		return fmt.Errorf("failed to close system bus connection: %w", err)
	}
	return nil
}

func (m *Monitor) processSignals(signals chan *dbus.Signal) {
	for sig := range signals {
		if sig.Name != prepareForSleepSignal || len(sig.Body) != 1 {
			continue
		}
		entering, ok := sig.Body[0].(bool)
		if !ok {
			continue
		}

		if entering {
			log.Debug().Msg("System entering sleep")
			m.handler(StateOff)
		} else {
			log.Debug().Msg("System resumed from sleep")
			m.handler(StateOn)
		}
	}
}
