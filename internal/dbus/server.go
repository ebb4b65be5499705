// Package dbus exposes the daemon's control surface on the session bus.
// Frontends (a shell extension, a tray applet, a CLI) drive brightness
// through it; the server itself never touches hardware. Every change is
// forwarded as an intent into the coordination mailbox, so a burst of slider
// events costs the caller nothing while the worker coalesces it.
package dbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/JRF63/monitor-brightness-controller/internal/event"
)

// ErrUnknownDisplay is returned when a display index is out of range.
var ErrUnknownDisplay = errors.New("unknown display index")

// ErrRateLimitExceeded is returned when brightness requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrInvalidStep is returned when a zero step value is provided.
var ErrInvalidStep = errors.New("step must be at least 1")

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.jrf63.MonitorBrightness"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/jrf63/MonitorBrightness"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.jrf63.MonitorBrightness"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="ListDisplays">
      <arg name="displays" type="a(usuuu)" direction="out"/>
    </method>
    <method name="GetBrightness">
      <arg name="index" type="u" direction="in"/>
      <arg name="brightness" type="u" direction="out"/>
    </method>
    <method name="SetBrightness">
      <arg name="index" type="u" direction="in"/>
      <arg name="brightness" type="u" direction="in"/>
    </method>
    <method name="IncreaseBrightness">
      <arg name="index" type="u" direction="in"/>
      <arg name="step" type="u" direction="in"/>
    </method>
    <method name="DecreaseBrightness">
      <arg name="index" type="u" direction="in"/>
      <arg name="step" type="u" direction="in"/>
    </method>
    <method name="SetAllBrightness">
      <arg name="brightness" type="u" direction="in"/>
    </method>
    <signal name="BrightnessChanged">
      <arg name="index" type="u"/>
      <arg name="brightness" type="u"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// Sender delivers intents toward the brightness coordinator without
// blocking. It reports whether the intent was accepted; a drop is not an
// error for the caller.
type Sender interface {
	Send(event.Intent) bool
}

// DisplayState is the daemon's cached view of one display: the product name,
// the brightness bounds from enumeration, and the level of the most recent
// request. It mirrors what the worker will converge the hardware to; reading
// it never blocks on a hardware write.
type DisplayState struct {
	Name  string
	Level uint32
	Min   uint32
	Max   uint32
}

// DisplayInfo is the per-display struct returned by ListDisplays.
// Serializes to D-Bus type (usuuu).
type DisplayInfo struct {
	Index uint32
	Name  string
	Level uint32
	Min   uint32
	Max   uint32
}

// Server implements the control surface.
//
// Thread safety: connMu protects the connection field for signal emission,
// mu protects the cached display view. Intent delivery goes through the
// mailbox, which is safe for concurrent producers.
type Server struct {
	conn        *dbus.Conn
	connMu      sync.RWMutex // protects conn field only
	sender      Sender
	rateLimiter *rate.Limiter

	mu       sync.Mutex
	displays []DisplayState
}

// NewServer creates a server over the given intent sender and initial
// display view.
func NewServer(sender Sender, displays []DisplayState, limit rate.Limit, burst int) *Server {
	return &Server{
		sender:      sender,
		displays:    displays,
		rateLimiter: rate.NewLimiter(limit, burst),
	}
}

// Start connects to the session bus and exports the service.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ListDisplays returns the cached view of every display.
func (s *Server) ListDisplays() ([]DisplayInfo, *dbus.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]DisplayInfo, len(s.displays))
	for i, d := range s.displays {
		result[i] = DisplayInfo{
			Index: uint32(i),
			Name:  d.Name,
			Level: d.Level,
			Min:   d.Min,
			Max:   d.Max,
		}
	}

	log.Debug().Int("count", len(result)).Msg("Listed displays")
	return result, nil
}

// GetBrightness returns the cached brightness level of a display.
func (s *Server) GetBrightness(index uint32) (uint32, *dbus.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(index) >= len(s.displays) {
		return 0, dbus.MakeFailedError(ErrUnknownDisplay)
	}
	return s.displays[index].Level, nil
}

// SetBrightness requests a new level for one display. The request is
// forwarded to the worker and this call returns immediately; the hardware
// write happens asynchronously.
func (s *Server) SetBrightness(index, brightness uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetBrightness")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if int(index) >= len(s.displays) {
		return dbus.MakeFailedError(ErrUnknownDisplay)
	}

	s.requestLocked(index, brightness)
	return nil
}

// IncreaseBrightness raises a display's level by step, saturating at its
// maximum.
func (s *Server) IncreaseBrightness(index, step uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for IncreaseBrightness")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}
	if step == 0 {
		return dbus.MakeFailedError(ErrInvalidStep)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if int(index) >= len(s.displays) {
		return dbus.MakeFailedError(ErrUnknownDisplay)
	}

	current := s.displays[index].Level
	next := current + step
	if next < current { // overflow
		next = s.displays[index].Max
	}
	s.requestLocked(index, next)
	return nil
}

// DecreaseBrightness lowers a display's level by step, saturating at its
// minimum.
func (s *Server) DecreaseBrightness(index, step uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for DecreaseBrightness")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}
	if step == 0 {
		return dbus.MakeFailedError(ErrInvalidStep)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if int(index) >= len(s.displays) {
		return dbus.MakeFailedError(ErrUnknownDisplay)
	}

	current := s.displays[index].Level
	var next uint32
	if current > step {
		next = current - step
	}
	s.requestLocked(index, next)
	return nil
}

// SetAllBrightness requests the same level for every display, clamped to
// each display's own range.
func (s *Server) SetAllBrightness(brightness uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetAllBrightness")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.displays {
		s.requestLocked(uint32(i), brightness)
	}

	log.Debug().Uint32("brightness", brightness).Int("count", len(s.displays)).Msg("Set all brightness")
	return nil
}

// requestLocked clamps the level to the display's cached bounds, forwards a
// change intent and updates the cached view. Must be called with mu held.
func (s *Server) requestLocked(index, brightness uint32) {
	d := &s.displays[index]
	if brightness < d.Min {
		brightness = d.Min
	}
	if brightness > d.Max {
		brightness = d.Max
	}

	if !s.sender.Send(event.Change(int(index), brightness)) {
		// The mailbox absorbed more input than it can hold; the next
		// accepted intent carries the newest level, so this is harmless.
		log.Warn().Uint32("index", index).Msg("Brightness change dropped, mailbox full")
	}

	d.Level = brightness
	log.Debug().Uint32("index", index).Uint32("brightness", brightness).Msg("Brightness change requested")

	s.emitBrightnessChanged(index, brightness)
}

// emitBrightnessChanged emits the BrightnessChanged signal.
func (s *Server) emitBrightnessChanged(index, brightness uint32) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, InterfaceName+".BrightnessChanged", index, brightness); err != nil {
		log.Error().Err(err).Msg("Failed to emit BrightnessChanged signal")
	}
}
