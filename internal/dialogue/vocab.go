package dialogue

import "strings"

// Closed confirmation vocabularies for the payment sub-state. Short Korean
// confirmations are frequently mislabelled INQUIRY by the LLM, so while a
// payment is awaiting confirmation these token sets take priority over the
// intent label.
var (
	affirmativeVocab = []string{
		"네", "예", "알겠다", "확인", "좋아", "맞아", "그래", "응", "오케이", "ok",
		"결제", "진행", "해주세요", "부탁", "합니다", "결제해", "결제할게", "결제하자",
		"결제진행", "결제해주세요", "맞습니다", "맞아요", "그렇습니다", "그래요",
		"좋습니다", "동의", "승인", "허가", "진행해", "계속", "yes", "y",
	}
	negativeVocab = []string{
		"아니", "안", "취소", "그만", "중단", "멈춰", "stop", "no", "n",
		"아니요", "아니야", "싫어", "안해", "안할래", "취소해", "취소할게",
	}
)

// normalize lowercases the input and strips punctuation and whitespace so
// short confirmations compare against the vocabularies reliably.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch r {
		case ' ', '\t', '\n', '.', ',', '!', '?', '~', '…':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isNegative reports whether the utterance matches the negative vocabulary.
// Checked before isAffirmative: tokens like "취소해주세요" contain affirmative
// fragments, and a refusal must win.
func isNegative(text string) bool {
	return matchesVocab(text, negativeVocab)
}

// isAffirmative reports whether the utterance matches the affirmative
// vocabulary.
func isAffirmative(text string) bool {
	return matchesVocab(text, affirmativeVocab)
}

func matchesVocab(text string, vocab []string) bool {
	n := normalize(text)
	if n == "" {
		return false
	}
	for _, token := range vocab {
		if strings.Contains(n, token) {
			return true
		}
	}
	return false
}
