// Package power reacts to display power transitions. Some monitors silently
// fall back to a factory brightness after waking from sleep, so an off-to-on
// transition schedules a delayed re-apply of the last known levels.
package power

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is a raw display power state reported by the notification source.
type State int

const (
	// StateOn means the display turned on.
	StateOn State = iota
	// StateOff means the display turned off.
	StateOff
	// StateDimmed means the display was dimmed by power management.
	StateDimmed
)

// Scheduler arms a one-shot delayed reset when a display comes back from an
// off or dimmed state. Re-arming before the timer fires cancels the previous
// one, so repeated wake cycles inside the delay window produce a single
// reset timed from the last cycle.
type Scheduler struct {
	delay  time.Duration
	notify func()

	mu    sync.Mutex
	timer *time.Timer
	off   bool
}

// NewScheduler creates a scheduler that calls notify once per armed window,
// delay after the last arming.
func NewScheduler(delay time.Duration, notify func()) *Scheduler {
	return &Scheduler{delay: delay, notify: notify}
}

// Observe feeds one power-state notification. Only a transition from an
// observed off or dimmed state to on arms the reset; a flat on notification
// is inert.
func (s *Scheduler) Observe(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state {
	case StateOff, StateDimmed:
		s.off = true
	case StateOn:
		if !s.off {
			return
		}
		s.off = false
		log.Debug().Dur("delay", s.delay).Msg("Display woke up, scheduling brightness reset")
		s.arm()
	}
}

// Trigger arms or re-arms the reset directly, bypassing the off-to-on state
// tracking. Used for hot-plug events, which imply the display just came up.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Debug().Dur("delay", s.delay).Msg("Scheduling brightness reset")
	s.arm()
}

// Stop cancels any armed reset. The scheduler can be re-armed afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// arm must be called with the mutex held.
func (s *Scheduler) arm() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.notify)
}
