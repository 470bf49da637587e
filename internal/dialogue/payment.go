package dialogue

import (
	"sync"
	"time"
)

// PaymentSteps is the scripted payment progression. No real payment network
// is involved; the client animates these steps with the published delays.
var PaymentSteps = []string{
	"결제를 진행합니다…",
	"카드를 삽입해 주세요…",
	"결제 승인 중…",
	"결제가 완료되었습니다!",
}

// DefaultStepDelay is the pause between payment steps.
const DefaultStepDelay = time.Second

// progressCapacity bounds how many finished payment schedules are retained
// for polling.
const progressCapacity = 100

// Progress is the observable state of one payment run, polled by the client
// while it animates the steps.
type Progress struct {
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"` // "processing" or "completed"
	Steps       []string  `json:"steps"`
	StepDelays  []float64 `json:"step_delays"` // seconds
	CurrentStep int       `json:"current_step"`
	StartedAt   time.Time `json:"started_at"`
}

// ProgressStore tracks payment progress per order ID. Safe for concurrent
// use.
type ProgressStore struct {
	mu      sync.Mutex
	byOrder map[string]*Progress
	fifo    []string
}

// NewProgressStore returns an empty store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{byOrder: make(map[string]*Progress)}
}

// Begin records a payment schedule for orderID and starts a background
// ticker that advances the current step on the published delays.
func (ps *ProgressStore) Begin(orderID string, stepDelay time.Duration) *Progress {
	if stepDelay <= 0 {
		stepDelay = DefaultStepDelay
	}
	delays := make([]float64, len(PaymentSteps))
	for i := range delays {
		delays[i] = stepDelay.Seconds()
	}
	p := &Progress{
		OrderID:    orderID,
		Status:     "processing",
		Steps:      PaymentSteps,
		StepDelays: delays,
		StartedAt:  time.Now(),
	}

	ps.mu.Lock()
	if _, exists := ps.byOrder[orderID]; !exists {
		ps.fifo = append(ps.fifo, orderID)
		for len(ps.fifo) > progressCapacity {
			delete(ps.byOrder, ps.fifo[0])
			ps.fifo = ps.fifo[1:]
		}
	}
	ps.byOrder[orderID] = p
	ps.mu.Unlock()

	go ps.advance(orderID, stepDelay, len(PaymentSteps))
	return p
}

func (ps *ProgressStore) advance(orderID string, stepDelay time.Duration, steps int) {
	for i := 1; i <= steps; i++ {
		time.Sleep(stepDelay)
		ps.mu.Lock()
		p, ok := ps.byOrder[orderID]
		if !ok {
			ps.mu.Unlock()
			return
		}
		if i < steps {
			p.CurrentStep = i
		} else {
			p.CurrentStep = steps - 1
			p.Status = "completed"
		}
		ps.mu.Unlock()
	}
}

// Get returns a copy of the progress for orderID.
func (ps *ProgressStore) Get(orderID string) (Progress, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.byOrder[orderID]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}
