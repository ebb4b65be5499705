// Package coordinator turns a stream of brightness intents into hardware
// writes. It is the single consumer of the intent mailbox: bursts of changes
// are coalesced to the latest value per target before anything touches
// hardware, because a write is orders of magnitude slower than the UI events
// producing it.
package coordinator

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/JRF63/monitor-brightness-controller/internal/event"
)

// Target is one display under coordination. *monitor.Monitor satisfies it.
type Target interface {
	Name() string
	Bounds() (min, max uint32)
	Clamp(level uint32) uint32
	ReadBrightness() (uint32, error)
	WriteBrightness(level uint32) error
}

// Coordinator drains the mailbox with latest-value-wins semantics and drives
// the retrying writer. All of its state is owned by the goroutine running
// Run; cross-thread communication happens only through the mailbox.
type Coordinator struct {
	mailbox *event.Mailbox
	writer  *Writer
	targets []Target

	// pending is the level each target should have per the most recent
	// intent. applied shadows the last level confirmed written; confirmed
	// is false until a write succeeds, so a failed target is retried on
	// the next pass even without a new intent.
	pending   []uint32
	applied   []uint32
	confirmed []bool
}

// New creates a coordinator over the given targets, seeding each pending
// level from a hardware read. Targets that cannot be read start at full
// brightness so a misread panel stays visible.
func New(mailbox *event.Mailbox, writer *Writer, targets []Target) *Coordinator {
	c := &Coordinator{
		mailbox:   mailbox,
		writer:    writer,
		targets:   targets,
		pending:   make([]uint32, len(targets)),
		applied:   make([]uint32, len(targets)),
		confirmed: make([]bool, len(targets)),
	}
	for i, t := range targets {
		level, err := t.ReadBrightness()
		if err != nil {
			log.Warn().Err(err).Str("name", t.Name()).Msg("Failed to read initial brightness")
			c.pending[i] = t.Clamp(math.MaxUint32)
			continue
		}
		c.pending[i] = t.Clamp(level)
		c.applied[i] = c.pending[i]
		c.confirmed[i] = true
	}
	return c
}

// Levels returns the intended level per target. Only safe to call before Run
// starts; afterwards the slice belongs to the coordination goroutine.
func (c *Coordinator) Levels() []uint32 {
	levels := make([]uint32, len(c.pending))
	copy(levels, c.pending)
	return levels
}

// Run is the coordination loop. It blocks until a Quit intent arrives or the
// mailbox is closed. Intended to be run on its own goroutine; nothing else
// may touch the coordinator while it runs.
func (c *Coordinator) Run() {
	log.Info().Int("targets", len(c.targets)).Msg("Brightness coordinator started")

	for {
		in, ok := c.mailbox.Recv()
		if !ok {
			log.Info().Msg("Mailbox closed, brightness coordinator exiting")
			return
		}

		// Drain everything queued behind the first intent so a burst of
		// slider events collapses into one write per target.
		reset := false
	drain:
		for {
			switch in.Kind {
			case event.KindQuit:
				log.Info().Msg("Quit received, brightness coordinator exiting")
				return
			case event.KindReset:
				// Hardware is suspected to have drifted; stop draining
				// and re-apply everything.
				reset = true
				break drain
			case event.KindChange:
				if in.Target >= 0 && in.Target < len(c.pending) {
					c.pending[in.Target] = in.Level
				} else {
					log.Warn().Int("target", in.Target).Msg("Change intent for unknown target")
				}
			}

			var status event.RecvStatus
			in, status = c.mailbox.TryRecv()
			switch status {
			case event.RecvEmpty:
				break drain
			case event.RecvClosed:
				log.Info().Msg("Mailbox closed, brightness coordinator exiting")
				return
			}
		}

		c.apply(reset)
	}
}

// apply writes pending levels to hardware. With force set every target is
// written; otherwise targets whose clamped pending level matches the last
// confirmed write are skipped. A target whose last write failed is never
// skipped.
func (c *Coordinator) apply(force bool) {
	for i, t := range c.targets {
		if !force && c.confirmed[i] && t.Clamp(c.pending[i]) == c.applied[i] {
			continue
		}

		applied, err := c.writer.Apply(t, c.pending[i])
		if err != nil {
			// Exhausted retries jam neither other targets nor future
			// intents; the unconfirmed shadow retries it next pass.
			c.confirmed[i] = false
			log.Error().Err(err).Str("name", t.Name()).Msg("Brightness write failed after all retries")
			continue
		}

		c.applied[i] = applied
		c.confirmed[i] = true
		log.Debug().Str("name", t.Name()).Uint32("level", applied).Msg("Brightness applied")
	}
}
