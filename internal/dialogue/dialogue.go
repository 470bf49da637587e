// Package dialogue implements the policy that interprets a typed intent
// under the current session and order state, mutates the order, and produces
// the reply text and UI hints. It also owns the payment sub-state machine.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/hanmaum-labs/voicekiosk/internal/intent"
	"github.com/hanmaum-labs/voicekiosk/internal/menu"
	"github.com/hanmaum-labs/voicekiosk/internal/order"
	"github.com/hanmaum-labs/voicekiosk/internal/session"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/llm"
)

// Fixed reply surfaces. These exact strings also feed TTS, so they must not
// drift.
const (
	promptConfirmPayment = "결제하시겠어요?"
	promptConfirmCancel  = "전체 주문을 취소하시겠습니까?"
)

// Response is the policy's output for one dialogue turn.
type Response struct {
	Reply                string
	Order                *order.Order // snapshot, never the live aggregate
	RequiresConfirmation bool
	SuggestedActions     []string
	Metadata             map[string]any
}

// Policy is the state-dispatched dialogue function. Safe for concurrent use
// across sessions; per-session serialization is the caller's responsibility.
type Policy struct {
	catalog   *menu.Catalog
	llm       llm.Provider
	progress  *ProgressStore
	stepDelay time.Duration
}

// Option configures a [Policy].
type Option func(*Policy)

// WithStepDelay overrides the payment step delay (default 1 s). Tests use a
// short delay.
func WithStepDelay(d time.Duration) Option {
	return func(p *Policy) { p.stepDelay = d }
}

// NewPolicy builds the dialogue policy. llmProvider handles free-form
// inquiries; progress records payment schedules for client polling.
func NewPolicy(catalog *menu.Catalog, llmProvider llm.Provider, progress *ProgressStore, opts ...Option) *Policy {
	p := &Policy{
		catalog:   catalog,
		llm:       llmProvider,
		progress:  progress,
		stepDelay: DefaultStepDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one dialogue turn. The caller must hold the session's
// in-flight slot.
func (p *Policy) Process(ctx context.Context, it *intent.Intent, sess *session.Session) (*Response, error) {
	if sess.Order == nil {
		sess.Order = order.New()
	}
	sess.AppendTurn(llm.RoleUser, it.RawText)
	sess.LastIntent = it

	var (
		resp *Response
		err  error
	)
	// While a confirmation is outstanding, the confirmation vocabularies
	// override the intent label.
	switch {
	case sess.Payment == session.PaymentProcessing:
		resp = p.processPaymentConfirmation(it, sess)
	case sess.PendingCancel:
		resp = p.processCancelConfirmation(it, sess)
	}
	if resp == nil {
		switch it.Kind {
		case intent.KindOrder:
			resp = p.processOrder(it, sess)
		case intent.KindModify:
			resp = p.processModify(it, sess)
		case intent.KindCancel:
			resp = p.processCancel(it, sess)
		case intent.KindPayment:
			resp = p.processPayment(it, sess)
		case intent.KindInquiry:
			resp, err = p.processInquiry(ctx, it, sess)
		default:
			resp, err = p.processInquiry(ctx, it, sess)
		}
	}
	if err != nil {
		return nil, err
	}

	if resp.Order == nil {
		resp.Order = sess.Order.Snapshot()
	}
	sess.AppendTurn(llm.RoleAssistant, resp.Reply)
	return resp, nil
}

// processPaymentConfirmation resolves the outstanding 결제하시겠어요 prompt.
// Negatives are checked first: refusals like 취소해주세요 contain affirmative
// fragments.
func (p *Policy) processPaymentConfirmation(it *intent.Intent, sess *session.Session) *Response {
	switch {
	case isNegative(it.RawText):
		sess.Payment = session.PaymentPending
		return &Response{
			Reply:            "결제가 취소되었습니다. 주문을 계속하시겠어요?",
			SuggestedActions: []string{"continue_ordering", "confirm_order"},
		}
	case isAffirmative(it.RawText):
		return p.executePayment(sess)
	default:
		return &Response{
			Reply:                promptConfirmPayment,
			RequiresConfirmation: true,
		}
	}
}

// executePayment runs the scripted payment: confirm the order, publish the
// step schedule, and attach a fresh empty order to the session.
func (p *Policy) executePayment(sess *session.Session) *Response {
	total := sess.Order.Total()
	res := sess.Order.Confirm()
	if !res.OK {
		sess.Payment = session.PaymentPending
		return &Response{Reply: res.Message}
	}

	confirmed := sess.Order.Snapshot()
	p.progress.Begin(confirmed.ID, p.stepDelay)

	sess.Payment = session.PaymentCompleted
	sess.Order = order.New()

	delays := make([]float64, len(PaymentSteps))
	for i := range delays {
		delays[i] = p.stepDelay.Seconds()
	}
	// The spoken confirmation narrates every step.
	reply := strings.Join(PaymentSteps, "\n") + fmt.Sprintf("\n총 %d원 결제되었습니다.", total)
	return &Response{
		Reply:            reply,
		Order:            confirmed,
		SuggestedActions: []string{"show_payment"},
		Metadata: map[string]any{
			"order_id":      confirmed.ID,
			"total_amount":  total,
			"payment_steps": PaymentSteps,
			"step_delays":   delays,
		},
	}
}

// processOrder adds each requested line, injecting a default type option and
// resolving fuzzy item names against the catalog.
func (p *Policy) processOrder(it *intent.Intent, sess *session.Session) *Response {
	var added, problems []string
	for _, line := range it.Items {
		name, ok := p.catalog.ResolveName(line.Name)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s 메뉴를 찾을 수 없습니다.", line.Name))
			continue
		}
		item, _ := p.catalog.Get(name)

		opts := maps.Clone(line.Options)
		if opts == nil {
			opts = map[string]string{}
		}
		if _, has := opts["type"]; !has {
			if _, offered := item.AvailableOptions["type"]; offered {
				if line.Category == "세트" || line.Category == "라지세트" || line.Category == "단품" {
					opts["type"] = line.Category
				} else {
					opts["type"] = "단품"
				}
			}
		}

		if err := p.catalog.Validate(name, line.Quantity, opts); err != nil {
			problems = append(problems, validationMessage(name, err))
			continue
		}

		unit := item.Price
		for k, v := range opts {
			unit += p.catalog.OptionSurcharge(k, v)
		}
		res := sess.Order.Add(name, line.Quantity, unit, opts)
		if !res.OK {
			problems = append(problems, res.Message)
			continue
		}
		added = append(added, fmt.Sprintf("%s %s %d개", name, typeLabel(opts), line.Quantity))
	}

	var b strings.Builder
	if len(added) > 0 {
		fmt.Fprintf(&b, "%s가 주문에 추가되었습니다.", strings.Join(added, ", "))
	}
	for _, msg := range problems {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("죄송합니다. " + msg)
	}
	if b.Len() == 0 {
		b.WriteString("주문할 메뉴를 알아듣지 못했습니다. 다시 말씀해 주세요.")
	}
	return &Response{
		Reply:            b.String(),
		SuggestedActions: []string{"continue_ordering", "confirm_order"},
	}
}

// processModify applies each modification; an empty item name targets the
// first order line.
func (p *Policy) processModify(it *intent.Intent, sess *session.Session) *Response {
	if sess.Order.Empty() {
		return &Response{
			Reply:            "변경할 주문이 없습니다. 먼저 메뉴를 주문해 주세요.",
			SuggestedActions: []string{"start_order"},
		}
	}

	var messages []string
	for _, mod := range it.Mods {
		messages = append(messages, p.applyMod(mod, it.RawText, sess))
	}
	if len(messages) == 0 {
		messages = append(messages, "어떻게 변경할지 알아듣지 못했습니다. 다시 말씀해 주세요.")
	}
	return &Response{
		Reply:            strings.Join(messages, "\n"),
		SuggestedActions: []string{"continue_ordering", "confirm_order"},
	}
}

func (p *Policy) applyMod(mod intent.Mod, rawText string, sess *session.Session) string {
	name := mod.ItemName
	if name == "" && !sess.Order.Empty() && mod.Action != intent.ModAdd {
		name = sess.Order.Lines[0].Name
	}

	switch mod.Action {
	case intent.ModAdd:
		line := intent.MenuLine{Name: mod.ItemName, Quantity: mod.NewQuantity, Options: mod.NewOptions}
		if line.Quantity < 1 {
			line.Quantity = 1
		}
		sub := p.processOrder(&intent.Intent{Kind: intent.KindOrder, Items: []intent.MenuLine{line}}, sess)
		return sub.Reply

	case intent.ModRemove:
		res := sess.Order.Remove(name, mod.NewQuantity)
		return res.Message

	case intent.ModChangeQuantity:
		res := sess.Order.Modify(name, mod.NewQuantity, nil, 0)
		return res.Message

	case intent.ModChangeOption:
		opts := mod.NewOptions
		if opts == nil {
			// The LLM often drops the option payload for terse utterances
			// like "세트로 바꿔줘"; recover the type token from the raw text.
			if token := typeTokenIn(rawText); token != "" {
				opts = map[string]string{"type": token}
			}
		}
		if opts == nil {
			return "어떤 옵션으로 변경할지 알아듣지 못했습니다."
		}
		item, ok := p.catalog.Get(name)
		if !ok {
			return fmt.Sprintf("%s 메뉴를 찾을 수 없습니다.", name)
		}
		if err := p.catalog.Validate(name, 1, opts); err != nil {
			return validationMessage(name, err)
		}
		unit := item.Price
		for k, v := range opts {
			unit += p.catalog.OptionSurcharge(k, v)
		}
		res := sess.Order.Modify(name, 0, opts, unit)
		return res.Message

	default:
		return "지원하지 않는 변경 요청입니다."
	}
}

// processCancel removes the named targets, or asks for confirmation before a
// full cancel. A full cancel is never applied on the first utterance; the
// session carries the pending confirmation into the next turn.
func (p *Policy) processCancel(it *intent.Intent, sess *session.Session) *Response {
	if len(it.Targets) == 0 {
		if sess.Order.Empty() {
			return &Response{
				Reply:            "취소할 주문 내역이 없습니다.",
				SuggestedActions: []string{"start_order"},
			}
		}
		sess.PendingCancel = true
		return &Response{
			Reply:                promptConfirmCancel,
			RequiresConfirmation: true,
		}
	}

	removed := 0
	var problems []string
	for _, target := range it.Targets {
		name, ok := p.catalog.ResolveName(target)
		if !ok {
			name = target
		}
		res := sess.Order.Remove(name, 0)
		if res.OK {
			removed++
		} else {
			problems = append(problems, res.Message)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d개 항목이 취소되었습니다.", removed)
	for _, msg := range problems {
		b.WriteString("\n" + msg)
	}
	if !sess.Order.Empty() {
		b.WriteString("\n" + FormatOrderSummary(sess.Order))
	}
	return &Response{
		Reply:            b.String(),
		SuggestedActions: []string{"continue_ordering"},
	}
}

// processCancelConfirmation resolves the outstanding 전체 주문 취소 prompt.
// Unlike the payment prompt, affirmatives win here: the 취소 tokens in a
// confirming utterance would otherwise read as negative. A fresh order or
// modification abandons the pending cancel, and a nil return re-enters the
// normal dispatch.
func (p *Policy) processCancelConfirmation(it *intent.Intent, sess *session.Session) *Response {
	sess.PendingCancel = false

	switch it.Kind {
	case intent.KindOrder, intent.KindModify, intent.KindPayment:
		return nil
	case intent.KindCancel:
		if len(it.Targets) > 0 {
			return nil
		}
		return p.clearOrder(sess)
	}

	switch {
	case isAffirmative(it.RawText):
		return p.clearOrder(sess)
	case isNegative(it.RawText):
		return &Response{
			Reply:            "취소를 중단했습니다.\n" + FormatOrderSummary(sess.Order),
			SuggestedActions: []string{"continue_ordering", "confirm_order"},
		}
	default:
		return nil
	}
}

// clearOrder empties the current order and attaches a fresh one.
func (p *Policy) clearOrder(sess *session.Session) *Response {
	res := sess.Order.Clear()
	if !res.OK {
		return &Response{Reply: res.Message}
	}
	cleared := sess.Order.Snapshot()
	sess.ResetOrder()
	return &Response{
		Reply:            res.Message,
		Order:            cleared,
		SuggestedActions: []string{"start_order"},
	}
}

// processPayment validates the order and asks for confirmation, moving the
// payment sub-state to processing.
func (p *Policy) processPayment(_ *intent.Intent, sess *session.Session) *Response {
	if sess.Order.Empty() {
		return &Response{
			Reply:            "주문 내역이 없습니다. 먼저 메뉴를 주문해 주세요.",
			SuggestedActions: []string{"start_order"},
		}
	}
	if res := sess.Order.Validate(); !res.OK {
		return &Response{Reply: res.Message}
	}

	sess.Payment = session.PaymentProcessing
	return &Response{
		Reply:                FormatOrderSummary(sess.Order) + "\n\n" + promptConfirmPayment,
		RequiresConfirmation: true,
		SuggestedActions:     []string{"show_payment"},
	}
}

// Keywords that route an inquiry to the order summary.
var orderStatusKeywords = []string{"주문", "내역", "확인", "상태", "현재"}

// processInquiry answers menu and order questions directly and delegates
// everything else to the LLM, constrained to a short reply.
func (p *Policy) processInquiry(ctx context.Context, it *intent.Intent, sess *session.Session) (*Response, error) {
	text := it.Text
	if text == "" {
		text = it.RawText
	}

	for _, kw := range orderStatusKeywords {
		if strings.Contains(text, kw) {
			return &Response{
				Reply:            FormatOrderSummary(sess.Order),
				SuggestedActions: []string{"continue_ordering"},
			}, nil
		}
	}
	if strings.Contains(text, "메뉴") {
		return &Response{
			Reply:            FormatMenu(p.catalog),
			SuggestedActions: []string{"show_menu"},
		}, nil
	}

	reply, err := p.freeform(ctx, text, sess)
	if err != nil {
		return nil, err
	}
	return &Response{Reply: reply}, nil
}

// freeform prompts the LLM with the menu, the current order, and this
// order's dialogue turns.
func (p *Policy) freeform(ctx context.Context, text string, sess *session.Session) (string, error) {
	var sys strings.Builder
	sys.WriteString("당신은 음식 주문 키오스크의 친절한 안내원입니다. ")
	sys.WriteString("한두 문장의 짧은 한국어로만 답하세요.\n\n")
	sys.WriteString("메뉴판:\n")
	sys.WriteString(FormatMenu(p.catalog))
	if !sess.Order.Empty() {
		sys.WriteString("\n\n현재 주문:\n")
		sys.WriteString(FormatOrderSummary(sess.Order))
	}

	var messages []llm.Message
	for _, turn := range sess.OrderHistory() {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: sys.String(),
		Messages:     messages,
		Temperature:  0.7,
		MaxTokens:    150,
	})
	if err != nil {
		return "", fmt.Errorf("dialogue: inquiry completion: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		reply = "죄송합니다. 다시 한 번 말씀해 주세요."
	}
	return reply, nil
}

// typeTokenIn finds the first order-line type token in text. 라지세트 is
// checked before 세트, which it contains.
func typeTokenIn(text string) string {
	for _, token := range []string{"라지세트", "세트", "단품"} {
		if strings.Contains(text, token) {
			return token
		}
	}
	return ""
}

func typeLabel(opts map[string]string) string {
	if t := opts["type"]; t != "" {
		return t
	}
	return "단품"
}

// validationMessage maps catalog validation sentinels to user-facing text.
func validationMessage(name string, err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, menu.ErrItemUnavailable):
		return fmt.Sprintf("%s은(는) 지금 주문할 수 없습니다.", name)
	case errors.Is(err, menu.ErrInvalidOption):
		return fmt.Sprintf("%s에는 선택할 수 없는 옵션입니다.", name)
	case errors.Is(err, menu.ErrInvalidQuantity):
		return "수량은 1개 이상이어야 합니다."
	default:
		return fmt.Sprintf("%s 메뉴를 찾을 수 없습니다.", name)
	}
}
