// Package intent defines the typed interpretation of a user utterance and the
// LLM-backed extractor that produces it.
package intent

// Kind discriminates the intent variants.
type Kind string

const (
	KindOrder   Kind = "ORDER"
	KindModify  Kind = "MODIFY"
	KindCancel  Kind = "CANCEL"
	KindPayment Kind = "PAYMENT"
	KindInquiry Kind = "INQUIRY"
	KindUnknown Kind = "UNKNOWN"
)

// MenuLine is one requested item of an ORDER intent. Category, when stated,
// is the 단품/세트/라지세트 token and seeds the line's type option.
type MenuLine struct {
	Name     string            `json:"name"`
	Category string            `json:"category,omitempty"`
	Quantity int               `json:"quantity"`
	Options  map[string]string `json:"options,omitempty"`
}

// ModAction is the operation a MODIFY intent requests per item.
type ModAction string

const (
	ModAdd            ModAction = "add"
	ModRemove         ModAction = "remove"
	ModChangeQuantity ModAction = "change_quantity"
	ModChangeOption   ModAction = "change_option"
)

// Mod is one modification of a MODIFY intent. An empty ItemName refers to the
// first line of the order.
type Mod struct {
	ItemName    string            `json:"item_name,omitempty"`
	Action      ModAction         `json:"action"`
	NewQuantity int               `json:"new_quantity,omitempty"`
	NewOptions  map[string]string `json:"new_options,omitempty"`
}

// PaymentMethod is the requested payment instrument, when stated.
type PaymentMethod string

const (
	PayCard   PaymentMethod = "card"
	PayCash   PaymentMethod = "cash"
	PayMobile PaymentMethod = "mobile"
)

// Intent is a tagged variant: Kind selects which payload fields are
// meaningful. Confidence is the extractor's self-reported certainty in [0,1];
// RawText is the original transcript the intent was derived from.
type Intent struct {
	Kind       Kind
	Confidence float64
	RawText    string

	Items   []MenuLine    // ORDER
	Mods    []Mod         // MODIFY
	Targets []string      // CANCEL; empty means the whole order
	Method  PaymentMethod // PAYMENT, optional
	Text    string        // INQUIRY
}

// Unknown returns an UNKNOWN intent carrying the raw utterance, used when
// extraction produced nothing usable.
func Unknown(rawText string) *Intent {
	return &Intent{Kind: KindUnknown, RawText: rawText, Text: rawText}
}
