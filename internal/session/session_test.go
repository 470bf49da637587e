package session

import (
	"context"
	"testing"
	"time"
)

func TestGetOrCreate(t *testing.T) {
	t.Parallel()
	r := NewRegistry(30*time.Minute, 20)

	s1 := r.GetOrCreate("")
	if s1.ID == "" {
		t.Fatal("new session must get an ID")
	}
	if s1.Order == nil || !s1.Order.Empty() {
		t.Fatalf("new session order = %+v, want empty order", s1.Order)
	}
	if s1.Payment != PaymentNone {
		t.Errorf("payment = %s, want none", s1.Payment)
	}

	s2 := r.GetOrCreate(s1.ID)
	if s2 != s1 {
		t.Error("existing ID must resolve to the same session")
	}

	s3 := r.GetOrCreate("kiosk-7")
	if s3.ID != "kiosk-7" {
		t.Errorf("client-provided ID not kept: %q", s3.ID)
	}
	if r.Count() != 2 {
		t.Errorf("count = %d, want 2", r.Count())
	}
}

func TestEnd(t *testing.T) {
	t.Parallel()
	r := NewRegistry(30*time.Minute, 20)

	s := r.GetOrCreate("")
	if !r.End(s.ID) {
		t.Fatal("End should report the session removed")
	}
	if r.End(s.ID) {
		t.Error("second End should report unknown")
	}
	if _, ok := r.Get(s.ID); ok {
		t.Error("ended session still resolvable")
	}
}

func TestSweep_EvictsIdleOnly(t *testing.T) {
	t.Parallel()
	r := NewRegistry(10*time.Millisecond, 20)

	idle := r.GetOrCreate("idle")
	fresh := r.GetOrCreate("fresh")

	idle.lastSeen.Store(time.Now().Add(-time.Second).UnixNano())
	fresh.Touch()

	if removed := r.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if _, ok := r.Get("idle"); ok {
		t.Error("idle session survived sweep")
	}
	if _, ok := r.Get("fresh"); !ok {
		t.Error("fresh session evicted")
	}
}

func TestAcquire_SerializesTurns(t *testing.T) {
	t.Parallel()
	r := NewRegistry(30*time.Minute, 20)
	s := r.GetOrCreate("")

	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx); err == nil {
		t.Fatal("second Acquire should block until the slot is free")
	}

	s.Release()
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	s.Release()
}

func TestHistory_CapAndOrderTag(t *testing.T) {
	t.Parallel()
	r := NewRegistry(30*time.Minute, 3)
	s := r.GetOrCreate("")

	firstOrder := s.Order.ID
	s.AppendTurn("user", "빅맥 주세요")
	s.AppendTurn("assistant", "빅맥 1개가 추가되었습니다.")

	s.ResetOrder()
	s.AppendTurn("user", "콜라 주세요")
	s.AppendTurn("assistant", "콜라 1개가 추가되었습니다.")

	hist := s.History()
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want capped at 3", len(hist))
	}
	// Oldest turn dropped; remaining turns keep arrival order.
	if hist[0].Content != "빅맥 1개가 추가되었습니다." {
		t.Errorf("oldest surviving turn = %q", hist[0].Content)
	}

	oh := s.OrderHistory()
	if len(oh) != 2 {
		t.Fatalf("order history = %d turns, want 2 for the new order", len(oh))
	}
	for _, m := range oh {
		if m.OrderID == firstOrder {
			t.Errorf("order history leaked a turn from the previous order: %+v", m)
		}
	}
}

func TestResetOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry(30*time.Minute, 20)
	s := r.GetOrCreate("")

	s.Order.Add("빅맥", 1, 6500, nil)
	s.Payment = PaymentProcessing
	old := s.Order.ID

	s.ResetOrder()
	if s.Order.ID == old {
		t.Error("ResetOrder must attach a fresh order")
	}
	if !s.Order.Empty() || s.Payment != PaymentNone {
		t.Errorf("after reset: order=%+v payment=%s", s.Order, s.Payment)
	}
}
