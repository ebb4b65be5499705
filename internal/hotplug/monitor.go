// Package hotplug watches for display connect events via netlink/udev. A
// display that just came up (or came back) may have reverted to a factory
// brightness, so hot-plug events feed the same debounced re-apply path as
// wake-from-sleep.
package hotplug

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

// netlinkBufferSize is the receive buffer for the netlink socket. Display
// hot-plug can generate many uevents in a burst; a larger buffer avoids
// ENOBUFS drops.
const netlinkBufferSize = 2 * 1024 * 1024

// Event is one display hot-plug notification.
type Event struct {
	Action  string
	DevPath string
}

// EventHandler is called when a display connect event occurs. It runs on the
// monitor's goroutine and must not block.
type EventHandler func(Event)

// Monitor watches the drm subsystem for connector changes.
type Monitor struct {
	conn    *netlink.UEventConn
	handler EventHandler
	quit    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewMonitor creates a hotplug monitor with the given event handler.
func NewMonitor(handler EventHandler) *Monitor {
	return &Monitor{handler: handler}
}

// Start begins monitoring. Non-blocking; events are processed in a
// background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("hotplug monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Msg("Failed to set netlink buffer size")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	m.quit = m.conn.Monitor(queue, errs, drmMatcher())
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Msg("Hotplug monitor started")
	return nil
}

// Stop stops the monitor and releases the netlink socket.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}
	m.stopped = true

	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}
	m.conn = nil

	log.Info().Msg("Hotplug monitor stopped")
	return nil
}

// drmMatcher matches add and change uevents on the drm subsystem. Connector
// state changes (plug, unplug, DPMS wake on some drivers) arrive as change
// events with HOTPLUG=1.
func drmMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}
	for _, action := range []string{"add", "change"} {
		action := action
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env: map[string]string{
				"SUBSYSTEM": "^drm$",
			},
		})
	}
	return rules
}

func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case uevent, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(uevent)
		case err, ok := <-errs:
			if !ok {
				return
			}

			m.mu.Lock()
			stopped := m.stopped
			m.mu.Unlock()
			if stopped {
				return
			}

			// A buffer overflow means events may have been dropped. A
			// missed hot-plug only costs a re-apply, so synthesize one.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow, synthesizing display change event")
				m.dispatch(Event{Action: "change"})
				continue
			}

			log.Error().Err(err).Msg("Hotplug monitor error")
		}
	}
}

// handleEvent filters one uevent. Change events without HOTPLUG=1 are
// routine property updates and ignored.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	if uevent.Action == netlink.CHANGE && uevent.Env["HOTPLUG"] != "1" {
		return
	}

	log.Debug().
		Str("action", string(uevent.Action)).
		Str("devpath", uevent.KObj).
		Msg("Display hot-plug event")

	m.dispatch(Event{
		Action:  string(uevent.Action),
		DevPath: uevent.KObj,
	})
}

func (m *Monitor) dispatch(ev Event) {
	if m.handler != nil {
		m.handler(ev)
	}
}

// setSocketBufferSize tries SO_RCVBUFFORCE first (needs CAP_NET_ADMIN), then
// falls back to SO_RCVBUF, which the kernel caps at rmem_max.
func setSocketBufferSize(fd int, size int) error {
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size); err == nil {
		return nil
	}
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks for a netlink receive buffer overflow.
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// The udev library does not always wrap the errno.
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}
