// Package response assembles the wire-level ServerResponse from dialogue
// output: TTS synthesis through the audio cache, order snapshot conversion,
// and UI action derivation.
package response

import (
	"time"

	"github.com/hanmaum-labs/voicekiosk/internal/faults"
	"github.com/hanmaum-labs/voicekiosk/internal/order"
)

// timestampLayout is ISO-8601 with microsecond precision.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTimestamp renders t in the wire timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// ServerResponse is the top-level reply of /api/voice/process.
type ServerResponse struct {
	Success        bool       `json:"success"`
	Message        string     `json:"message"`
	TTSAudioURL    string     `json:"tts_audio_url,omitempty"`
	OrderData      *OrderData `json:"order_data,omitempty"`
	UIActions      []UIAction `json:"ui_actions"`
	ErrorInfo      *ErrorInfo `json:"error_info,omitempty"`
	ProcessingTime float64    `json:"processing_time"`
	SessionID      string     `json:"session_id,omitempty"`
	Timestamp      string     `json:"timestamp"`
}

// OrderData is the wire form of an order snapshot.
type OrderData struct {
	OrderID              string      `json:"order_id,omitempty"`
	Items                []OrderItem `json:"items"`
	TotalAmount          int64       `json:"total_amount"`
	Status               string      `json:"status"`
	RequiresConfirmation bool        `json:"requires_confirmation"`
	ItemCount            int         `json:"item_count"`
	CreatedAt            string      `json:"created_at"`
	UpdatedAt            string      `json:"updated_at"`
}

// OrderItem is one wire order line. Category carries the 단품/세트/라지세트
// semantic of the line.
type OrderItem struct {
	ItemID     string            `json:"item_id"`
	Name       string            `json:"name"`
	Category   string            `json:"category"`
	Quantity   int               `json:"quantity"`
	Price      int64             `json:"price"`
	Options    map[string]string `json:"options,omitempty"`
	TotalPrice int64             `json:"total_price"`
}

// UIAction instructs the client renderer; the server never interprets it.
type UIAction struct {
	ActionType        string         `json:"action_type"`
	Data              map[string]any `json:"data,omitempty"`
	Priority          int            `json:"priority"`
	RequiresUserInput bool           `json:"requires_user_input"`
	TimeoutSeconds    *int           `json:"timeout_seconds,omitempty"`
}

// ErrorInfo is the classified error surface of a failed request.
type ErrorInfo struct {
	ErrorCode       string         `json:"error_code"`
	ErrorMessage    string         `json:"error_message"`
	RecoveryActions []string       `json:"recovery_actions"`
	Details         map[string]any `json:"details,omitempty"`
	Timestamp       string         `json:"timestamp"`
}

// NewErrorInfo converts a classified fault into its wire form.
func NewErrorInfo(f *faults.Fault) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:       string(f.Kind),
		ErrorMessage:    f.Message,
		RecoveryActions: f.Recovery,
		Timestamp:       FormatTimestamp(time.Now()),
	}
}

// OrderDataFrom converts an order snapshot to the wire schema.
func OrderDataFrom(o *order.Order, requiresConfirmation bool) *OrderData {
	if o == nil {
		return nil
	}
	items := make([]OrderItem, 0, len(o.Lines))
	for _, l := range o.Lines {
		category := l.Options["type"]
		if category == "" {
			category = "단품"
		}
		items = append(items, OrderItem{
			ItemID:     l.ID,
			Name:       l.Name,
			Category:   category,
			Quantity:   l.Quantity,
			Price:      l.UnitPrice,
			Options:    l.Options,
			TotalPrice: l.Total(),
		})
	}
	return &OrderData{
		OrderID:              o.ID,
		Items:                items,
		TotalAmount:          o.Total(),
		Status:               string(o.Status),
		RequiresConfirmation: requiresConfirmation,
		ItemCount:            len(o.Lines),
		CreatedAt:            FormatTimestamp(o.CreatedAt),
		UpdatedAt:            FormatTimestamp(o.UpdatedAt),
	}
}
