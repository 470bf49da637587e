// Package session owns the per-conversation state: the conversation context,
// the active order, and the payment sub-state. The registry hands out
// sessions keyed by opaque IDs and reclaims the ones that go idle.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hanmaum-labs/voicekiosk/internal/intent"
	"github.com/hanmaum-labs/voicekiosk/internal/order"
)

// PaymentState is the per-session payment sub-state. It routes ambiguous
// short utterances while a payment confirmation is outstanding.
type PaymentState string

const (
	PaymentNone       PaymentState = "none"
	PaymentPending    PaymentState = "pending"
	PaymentProcessing PaymentState = "processing"
	PaymentCompleted  PaymentState = "completed"
)

// Message is one turn of the conversation context. OrderID tags the turn with
// the order that was active when it was recorded, so LLM prompts can be
// restricted to the current order's history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	OrderID   string    `json:"order_id,omitempty"`
}

// Session is one conversation. The dialogue state (Order, Payment,
// LastIntent, Preferences, history) must only be touched while holding the
// session's in-flight slot via [Session.Acquire]; the registry guarantees at
// most one dialogue turn per session at a time.
type Session struct {
	ID string

	Order       *order.Order
	Payment     PaymentState
	LastIntent  *intent.Intent
	Preferences map[string]string

	// PendingCancel is set while a full-order cancellation awaits the
	// customer's confirmation; the next turn consumes it.
	PendingCancel bool

	history      []Message
	historyLimit int

	createdAt time.Time
	lastSeen  atomic.Int64 // unix nanos

	inflight chan struct{}
}

func newSession(id string, historyLimit int) *Session {
	s := &Session{
		ID:           id,
		Order:        order.New(),
		Payment:      PaymentNone,
		Preferences:  make(map[string]string),
		historyLimit: historyLimit,
		createdAt:    time.Now(),
		inflight:     make(chan struct{}, 1),
	}
	s.Touch()
	return s
}

// Acquire takes the session's single in-flight slot, blocking until the slot
// is free or ctx is done. Callers must Release when the dialogue turn ends.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.inflight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the in-flight slot taken by [Session.Acquire].
func (s *Session) Release() {
	<-s.inflight
}

// Touch marks the session as recently used, deferring idle eviction.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the most recent Touch.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// AppendTurn records a conversation turn tagged with the current order's ID.
// The history is a FIFO capped at the configured limit.
func (s *Session) AppendTurn(role, content string) {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	if s.Order != nil {
		msg.OrderID = s.Order.ID
	}
	s.history = append(s.history, msg)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// History returns the recorded turns, oldest first.
func (s *Session) History() []Message {
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// OrderHistory returns only the turns tagged with the currently-active
// order, oldest first.
func (s *Session) OrderHistory() []Message {
	if s.Order == nil {
		return nil
	}
	var out []Message
	for _, m := range s.history {
		if m.OrderID == s.Order.ID {
			out = append(out, m)
		}
	}
	return out
}

// ResetOrder attaches a fresh empty order and clears the payment sub-state
// and any pending cancellation. Called after checkout completes or on
// explicit full cancellation.
func (s *Session) ResetOrder() {
	s.Order = order.New()
	s.Payment = PaymentNone
	s.PendingCancel = false
}
