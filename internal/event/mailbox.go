package event

import "sync"

// RecvStatus is the result of a non-blocking receive.
type RecvStatus int

const (
	// RecvOK means an intent was delivered.
	RecvOK RecvStatus = iota
	// RecvEmpty means no intent was queued.
	RecvEmpty
	// RecvClosed means the mailbox was closed and drained.
	RecvClosed
)

// Mailbox is a multi-producer single-consumer queue of intents. Producers
// never block: a full or closed mailbox drops the intent instead of stalling
// the caller. Intents are delivered in arrival order, which across concurrent
// producers is whatever order their sends happened to interleave in, not
// causal order.
type Mailbox struct {
	ch   chan Intent
	done chan struct{}
	once sync.Once
}

// NewMailbox creates a mailbox holding up to capacity queued intents.
func NewMailbox(capacity int) *Mailbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox{
		ch:   make(chan Intent, capacity),
		done: make(chan struct{}),
	}
}

// Send queues an intent without blocking. It reports whether the intent was
// accepted; false means the mailbox was full or closed and the intent was
// dropped. Callers must treat a drop as non-fatal, coalescing makes the next
// accepted intent carry the newest state anyway.
func (m *Mailbox) Send(in Intent) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.ch <- in:
		return true
	case <-m.done:
		return false
	default:
		return false
	}
}

// Recv blocks until an intent is available or the mailbox is closed with no
// intents left. The second return value is false only in the closed case.
func (m *Mailbox) Recv() (Intent, bool) {
	select {
	case in := <-m.ch:
		return in, true
	case <-m.done:
		// Drain intents that raced with Close.
		select {
		case in := <-m.ch:
			return in, true
		default:
			return Intent{}, false
		}
	}
}

// TryRecv returns immediately with a queued intent, RecvEmpty, or RecvClosed.
// Queued intents are delivered before the closed state is reported.
func (m *Mailbox) TryRecv() (Intent, RecvStatus) {
	select {
	case in := <-m.ch:
		return in, RecvOK
	default:
	}
	select {
	case <-m.done:
		return Intent{}, RecvClosed
	default:
		return Intent{}, RecvEmpty
	}
}

// Close marks the mailbox closed. Safe to call more than once and
// concurrently with Send; pending intents remain receivable.
func (m *Mailbox) Close() {
	m.once.Do(func() {
		close(m.done)
	})
}
