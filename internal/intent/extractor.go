package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hanmaum-labs/voicekiosk/internal/menu"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 512
)

// Extractor turns a transcript into a typed [Intent] by prompting the LLM
// collaborator for a JSON classification. A malformed reply degrades to
// UNKNOWN rather than failing the request; only provider errors propagate.
type Extractor struct {
	provider    llm.Provider
	catalog     *menu.Catalog
	temperature float64
	maxTokens   int
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithTemperature overrides the sampling temperature (default 0.1; intent
// classification wants determinism).
func WithTemperature(t float64) Option {
	return func(e *Extractor) { e.temperature = t }
}

// WithMaxTokens overrides the completion token cap.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) { e.maxTokens = n }
}

// NewExtractor builds an extractor over the given LLM provider and menu
// catalog. The catalog supplies the item names the prompt exposes to the
// model.
func NewExtractor(provider llm.Provider, catalog *menu.Catalog, opts ...Option) *Extractor {
	e := &Extractor{
		provider:    provider,
		catalog:     catalog,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// wireIntent is the JSON shape the model is instructed to emit.
type wireIntent struct {
	Intent     string     `json:"intent"`
	Confidence float64    `json:"confidence"`
	Items      []MenuLine `json:"items,omitempty"`
	Mods       []Mod      `json:"mods,omitempty"`
	Targets    []string   `json:"targets,omitempty"`
	Method     string     `json:"method,omitempty"`
	Text       string     `json:"text,omitempty"`
}

var validKinds = map[Kind]bool{
	KindOrder:   true,
	KindModify:  true,
	KindCancel:  true,
	KindPayment: true,
	KindInquiry: true,
	KindUnknown: true,
}

// Extract classifies text. The returned intent is never nil when err is nil.
func (e *Extractor) Extract(ctx context.Context, text string) (*Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Unknown(text), nil
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: e.systemPrompt(),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: text},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("intent: llm completion: %w", err)
	}

	it, perr := parse(resp.Content, text)
	if perr != nil {
		slog.Warn("intent: unparsable llm reply, falling back to UNKNOWN",
			"err", perr, "reply_len", len(resp.Content))
		return Unknown(text), nil
	}
	return it, nil
}

// parse decodes the model's JSON reply into an Intent.
func parse(reply, rawText string) (*Intent, error) {
	body := stripFences(reply)

	var w wireIntent
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return nil, fmt.Errorf("decode intent json: %w", err)
	}

	kind := Kind(strings.ToUpper(strings.TrimSpace(w.Intent)))
	if !validKinds[kind] {
		return nil, fmt.Errorf("unknown intent kind %q", w.Intent)
	}

	confidence := w.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	it := &Intent{
		Kind:       kind,
		Confidence: confidence,
		RawText:    rawText,
		Items:      w.Items,
		Mods:       w.Mods,
		Targets:    w.Targets,
		Method:     PaymentMethod(w.Method),
		Text:       w.Text,
	}
	if it.Kind == KindInquiry && it.Text == "" {
		it.Text = rawText
	}
	for i := range it.Items {
		if it.Items[i].Quantity < 1 {
			it.Items[i].Quantity = 1
		}
	}
	return it, nil
}

// stripFences removes a surrounding markdown code fence, which chat models
// frequently wrap JSON in despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// systemPrompt builds the classification instructions, listing the current
// menu so the model maps utterances onto real item names.
func (e *Extractor) systemPrompt() string {
	var b strings.Builder
	b.WriteString("당신은 음식 주문 키오스크의 의도 분석기입니다. ")
	b.WriteString("사용자 발화를 분석해 JSON 한 개만 출력하세요. 다른 텍스트는 금지합니다.\n\n")
	b.WriteString("출력 형식:\n")
	b.WriteString(`{"intent":"ORDER|MODIFY|CANCEL|PAYMENT|INQUIRY|UNKNOWN","confidence":0.0,` + "\n")
	b.WriteString(` "items":[{"name":"","quantity":1,"options":{"type":"단품|세트|라지세트"}}],` + "\n")
	b.WriteString(` "mods":[{"item_name":"","action":"add|remove|change_quantity|change_option","new_quantity":0,"new_options":{}}],` + "\n")
	b.WriteString(` "targets":[],"method":"card|cash|mobile","text":""}` + "\n\n")
	b.WriteString("규칙:\n")
	b.WriteString("- ORDER: 새 메뉴 주문. items에 메뉴명과 수량을 넣으세요.\n")
	b.WriteString("- MODIFY: 기존 주문 변경. mods를 채우세요.\n")
	b.WriteString("- CANCEL: 취소. 특정 메뉴만 취소하면 targets에, 전체 취소면 빈 배열.\n")
	b.WriteString("- PAYMENT: 결제 요청.\n")
	b.WriteString("- INQUIRY: 메뉴나 주문에 대한 질문. text에 질문을 넣으세요.\n")
	b.WriteString("- 메뉴명은 아래 메뉴판의 이름과 정확히 일치시키세요.\n\n")
	b.WriteString("메뉴판:\n")
	for _, category := range e.catalog.Categories() {
		for _, it := range e.catalog.ItemsByCategory(category, true) {
			fmt.Fprintf(&b, "- %s (%s) %d원\n", it.Name, it.Category, it.Price)
		}
	}
	return b.String()
}
