// Package order implements the per-session order aggregate: an ordered list
// of lines with merging, quantity arithmetic, status transitions and snapshot
// totals.
//
// The aggregate is not safe for concurrent use. The session registry
// guarantees at most one dialogue turn per session at a time, so all access
// happens under the session owner.
package order

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// statusRank orders the forward lifecycle. Transitions must be monotone;
// CANCELLED is reachable from any non-terminal state.
var statusRank = map[Status]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusPreparing: 2,
	StatusReady:     3,
	StatusCompleted: 4,
}

// Line is one entry of an order. UnitPrice is the per-unit price in won at
// the time of ordering, option surcharges included.
type Line struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	UnitPrice int64             `json:"unit_price"`
	Options   map[string]string `json:"options,omitempty"`
}

// Total returns quantity times unit price.
func (l *Line) Total() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

// mergeableWith reports whether two lines collapse into one: same name and
// an equal option map.
func (l *Line) mergeableWith(name string, options map[string]string) bool {
	return l.Name == name && maps.Equal(l.Options, options)
}

// Order is the per-session cart.
type Order struct {
	ID        string    `json:"id"`
	Lines     []*Line   `json:"lines"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty PENDING order with a fresh ID.
func New() *Order {
	now := time.Now()
	return &Order{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Total returns the sum of all line totals in won.
func (o *Order) Total() int64 {
	var total int64
	for _, l := range o.Lines {
		total += l.Total()
	}
	return total
}

// Empty reports whether the order has no lines.
func (o *Order) Empty() bool {
	return len(o.Lines) == 0
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now()
}

// find returns the first line with the given name, or nil.
func (o *Order) find(name string) *Line {
	for _, l := range o.Lines {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// Add inserts qty units of the named item. If a line with the same name and
// an equal option map already exists, the quantities merge; otherwise a new
// line is appended. unitPrice is the per-unit price including option
// surcharges.
func (o *Order) Add(name string, qty int, unitPrice int64, options map[string]string) Result {
	if qty < 1 {
		return failure(CodeInvalidQuantity, "수량은 1개 이상이어야 합니다.")
	}
	if !o.modifiable() {
		return failure(CodeOrderClosed, "이미 처리된 주문은 변경할 수 없습니다.")
	}

	for _, l := range o.Lines {
		if l.mergeableWith(name, options) {
			l.Quantity += qty
			o.touch()
			return success(o, fmt.Sprintf("%s %d개가 추가되었습니다.", name, qty), l)
		}
	}

	line := &Line{
		ID:        uuid.NewString(),
		Name:      name,
		Quantity:  qty,
		UnitPrice: unitPrice,
		Options:   maps.Clone(options),
	}
	o.Lines = append(o.Lines, line)
	o.touch()
	return success(o, fmt.Sprintf("%s %d개가 추가되었습니다.", name, qty), line)
}

// Remove takes qty units off the named line. qty < 1 removes the whole line,
// as does qty at or above the line's current quantity.
func (o *Order) Remove(name string, qty int) Result {
	if !o.modifiable() {
		return failure(CodeOrderClosed, "이미 처리된 주문은 변경할 수 없습니다.")
	}
	l := o.find(name)
	if l == nil {
		return failure(CodeItemNotInOrder, fmt.Sprintf("%s은(는) 주문에 없습니다.", name))
	}

	if qty >= 1 && qty < l.Quantity {
		l.Quantity -= qty
		o.touch()
		return success(o, fmt.Sprintf("%s %d개가 제거되었습니다.", name, qty), nil)
	}

	o.Lines = slices.DeleteFunc(o.Lines, func(x *Line) bool { return x == l })
	o.touch()
	return success(o, fmt.Sprintf("%s이(가) 주문에서 제거되었습니다.", name), nil)
}

// Modify updates a line in place. An empty name targets the first line, which
// covers terse utterances like "세트로 바꿔줘". newQty below 1 leaves the
// quantity unchanged; a nil newOptions leaves the options and unit price
// unchanged, otherwise both are replaced.
func (o *Order) Modify(name string, newQty int, newOptions map[string]string, newUnitPrice int64) Result {
	if !o.modifiable() {
		return failure(CodeOrderClosed, "이미 처리된 주문은 변경할 수 없습니다.")
	}
	if o.Empty() {
		return failure(CodeNoActiveOrder, "변경할 주문이 없습니다.")
	}

	var l *Line
	if name == "" {
		l = o.Lines[0]
	} else if l = o.find(name); l == nil {
		return failure(CodeItemNotInOrder, fmt.Sprintf("%s은(는) 주문에 없습니다.", name))
	}

	if newQty >= 1 {
		l.Quantity = newQty
	}
	if newOptions != nil {
		l.Options = maps.Clone(newOptions)
		l.UnitPrice = newUnitPrice
	}
	o.touch()
	return success(o, fmt.Sprintf("%s이(가) 변경되었습니다.", l.Name), nil)
}

// Clear removes every line. The order stays PENDING.
func (o *Order) Clear() Result {
	if !o.modifiable() {
		return failure(CodeOrderClosed, "이미 처리된 주문은 변경할 수 없습니다.")
	}
	o.Lines = nil
	o.touch()
	return success(o, "주문이 모두 취소되었습니다.", nil)
}

// Validate checks the aggregate invariants before payment: at least one line
// and every quantity at least 1.
func (o *Order) Validate() Result {
	if o.Empty() {
		return failure(CodeEmptyOrder, "주문 내역이 비어 있습니다.")
	}
	for _, l := range o.Lines {
		if l.Quantity < 1 {
			return failure(CodeInvalidQuantity, fmt.Sprintf("%s의 수량이 올바르지 않습니다.", l.Name))
		}
	}
	return success(o, "", nil)
}

// Confirm transitions PENDING to CONFIRMED. Confirming an empty order fails
// with EMPTY_ORDER.
func (o *Order) Confirm() Result {
	if o.Empty() {
		return failure(CodeEmptyOrder, "주문 내역이 비어 있습니다.")
	}
	if err := o.Transition(StatusConfirmed); err != nil {
		return failure(CodeOrderClosed, "이미 처리된 주문입니다.")
	}
	return success(o, "주문이 확정되었습니다.", nil)
}

// Transition moves the order to next, enforcing monotone forward progress.
// CANCELLED is allowed from any non-terminal state.
func (o *Order) Transition(next Status) error {
	if o.Status == next {
		return nil
	}
	if o.Status == StatusCompleted || o.Status == StatusCancelled {
		return fmt.Errorf("order: %s is terminal", o.Status)
	}
	if next == StatusCancelled {
		o.Status = next
		o.touch()
		return nil
	}
	from, ok1 := statusRank[o.Status]
	to, ok2 := statusRank[next]
	if !ok1 || !ok2 || to < from {
		return fmt.Errorf("order: cannot transition %s to %s", o.Status, next)
	}
	o.Status = next
	o.touch()
	return nil
}

// modifiable reports whether line mutations are still allowed.
func (o *Order) modifiable() bool {
	return o.Status == StatusPending
}

// Snapshot returns a deep copy safe to hand across the session boundary.
func (o *Order) Snapshot() *Order {
	cp := *o
	cp.Lines = make([]*Line, len(o.Lines))
	for i, l := range o.Lines {
		lc := *l
		lc.Options = maps.Clone(l.Options)
		cp.Lines[i] = &lc
	}
	return &cp
}
