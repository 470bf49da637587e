package dialogue

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hanmaum-labs/voicekiosk/internal/menu"
	"github.com/hanmaum-labs/voicekiosk/internal/order"
)

// formatWon renders an amount with thousands separators ("8,500").
func formatWon(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// lineType returns the line's type option, defaulting to 단품. The summary
// surface always names a type because the text also feeds TTS.
func lineType(l *order.Line) string {
	if t, ok := l.Options["type"]; ok && t != "" {
		return t
	}
	return "단품"
}

// FormatOrderSummary renders the order in the fixed kiosk surface: one line
// per item plus the grand total.
//
//	- 빅맥 세트 1개 - 8,500원
//	- 콜라 단품 2개 - 4,000원
//	총 금액: 12,500원
func FormatOrderSummary(o *order.Order) string {
	if o == nil || o.Empty() {
		return "현재 주문 내역이 없습니다."
	}
	var b strings.Builder
	for _, l := range o.Lines {
		fmt.Fprintf(&b, "- %s %s %d개 - %s원\n", l.Name, lineType(l), l.Quantity, formatWon(l.Total()))
	}
	fmt.Fprintf(&b, "총 금액: %s원", formatWon(o.Total()))
	return b.String()
}

// FormatMenu renders the available menu grouped by category, for menu
// inquiries and LLM prompts.
func FormatMenu(catalog *menu.Catalog) string {
	var b strings.Builder
	for _, category := range catalog.Categories() {
		items := catalog.ItemsByCategory(category, true)
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n", category)
		for _, it := range items {
			fmt.Fprintf(&b, "- %s: %s원\n", it.Name, formatWon(it.Price))
		}
	}
	if b.Len() == 0 {
		return "현재 주문 가능한 메뉴가 없습니다."
	}
	return strings.TrimRight(b.String(), "\n")
}
