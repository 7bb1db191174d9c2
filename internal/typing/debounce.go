package typing

import (
	"strings"
	"sync"
	"time"
)

// DefaultIdle is how long after the last qualifying keystroke the typing
// state is considered over.
const DefaultIdle = 1000 * time.Millisecond

// SetFunc applies a typing transition, usually Coordinator.SetTyping bound
// to a context.
type SetFunc func(conversationID, userID string, isTyping bool)

// Debouncer collapses a burst of keystrokes into at most one
// setTyping(true) and, after the idle window passes with no further
// keystroke, exactly one setTyping(false). At most one timer is outstanding
// at a time; each keystroke replaces it. Sending a message ends the burst
// immediately, cancelling any pending timer.
type Debouncer struct {
	conversationID string
	userID         string
	idle           time.Duration
	set            SetFunc

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
}

func NewDebouncer(conversationID, userID string, idle time.Duration, set SetFunc) *Debouncer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Debouncer{
		conversationID: conversationID,
		userID:         userID,
		idle:           idle,
		set:            set,
	}
}

// Keystroke registers one input event. Input that trims to empty does not
// qualify and is ignored. Only the first keystroke of a burst issues
// setTyping(true); every qualifying keystroke restarts the idle timer.
func (d *Debouncer) Keystroke(input string) {
	if strings.TrimSpace(input) == "" {
		return
	}

	d.mu.Lock()
	first := !d.typing
	d.typing = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, d.expire)
	d.mu.Unlock()

	if first {
		d.set(d.conversationID, d.userID, true)
	}
}

func (d *Debouncer) expire() {
	d.mu.Lock()
	if !d.typing {
		d.mu.Unlock()
		return
	}
	d.typing = false
	d.timer = nil
	d.mu.Unlock()

	d.set(d.conversationID, d.userID, false)
}

// MessageSent forces setTyping(false) and cancels the pending timer,
// regardless of debounce state.
func (d *Debouncer) MessageSent() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.typing = false
	d.mu.Unlock()

	d.set(d.conversationID, d.userID, false)
}

// Stop cancels the timer and, if a burst was in progress, sends the final
// false. Used when the session goes away.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	wasTyping := d.typing
	d.typing = false
	d.mu.Unlock()

	if wasTyping {
		d.set(d.conversationID, d.userID, false)
	}
}
