// Package event defines the intents exchanged between the UI-facing
// collaborators and the brightness coordinator, and the mailbox that
// carries them.
package event

// Kind discriminates the intent variants.
type Kind int

const (
	// KindChange requests that one target be set to a new level.
	KindChange Kind = iota
	// KindReset requests that the last known levels be re-applied to
	// every target, whether or not they changed.
	KindReset
	// KindQuit requests that the coordinator terminate immediately.
	KindQuit
)

// Intent is the unit of work sent into the coordination mailbox. Target and
// Level are only meaningful for KindChange.
type Intent struct {
	Kind   Kind
	Target int
	Level  uint32
}

// Change builds an intent asking for target to be set to level.
func Change(target int, level uint32) Intent {
	return Intent{Kind: KindChange, Target: target, Level: level}
}

// Reset builds an intent asking for all targets to be re-applied.
func Reset() Intent {
	return Intent{Kind: KindReset}
}

// Quit builds an intent asking the coordinator to terminate.
func Quit() Intent {
	return Intent{Kind: KindQuit}
}
