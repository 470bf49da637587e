// Package faults maps errors crossing the core boundary into a closed
// taxonomy with severities, localized user messages and recovery hints. Stack
// detail stays in the logs; clients only ever see the classified form.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// Kind is the closed error taxonomy.
type Kind string

const (
	NetworkError           Kind = "NETWORK_ERROR"
	TimeoutError           Kind = "TIMEOUT_ERROR"
	ValidationError        Kind = "VALIDATION_ERROR"
	SpeechRecognitionError Kind = "SPEECH_RECOGNITION_ERROR"
	IntentRecognitionError Kind = "INTENT_RECOGNITION_ERROR"
	OrderProcessingError   Kind = "ORDER_PROCESSING_ERROR"
	ServerError            Kind = "SERVER_ERROR"
	AudioProcessingError   Kind = "AUDIO_PROCESSING_ERROR"
	PaymentError           Kind = "PAYMENT_ERROR"
	UnknownError           Kind = "UNKNOWN_ERROR"
)

// Severity grades a fault.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// profile is the fixed per-kind presentation.
type profile struct {
	severity  Severity
	message   string
	recovery  []string
	uiActions []string
}

var profiles = map[Kind]profile{
	NetworkError: {
		severity: SeverityMedium,
		message:  "네트워크 연결에 문제가 발생했습니다. 잠시 후 다시 시도해 주세요.",
		recovery: []string{"네트워크 연결을 확인해 주세요.", "잠시 후 다시 시도해 주세요."},
		uiActions: []string{
			"show_error", "show_retry_button",
		},
	},
	TimeoutError: {
		severity:  SeverityMedium,
		message:   "처리 시간이 초과되었습니다. 다시 시도해 주세요.",
		recovery:  []string{"다시 한 번 시도해 주세요.", "문제가 계속되면 직원을 호출해 주세요."},
		uiActions: []string{"show_error", "show_retry_button"},
	},
	ValidationError: {
		severity:  SeverityLow,
		message:   "입력이 올바르지 않습니다. 다시 확인해 주세요.",
		recovery:  []string{"업로드한 파일을 확인해 주세요."},
		uiActions: []string{"show_error"},
	},
	SpeechRecognitionError: {
		severity:  SeverityMedium,
		message:   "음성을 인식하지 못했습니다. 다시 말씀해 주세요.",
		recovery:  []string{"조금 더 천천히, 명확하게 말씀해 주세요.", "주변 소음을 줄여 주세요."},
		uiActions: []string{"show_error", "show_voice_guide"},
	},
	IntentRecognitionError: {
		severity:  SeverityMedium,
		message:   "말씀을 이해하지 못했습니다. 다시 말씀해 주세요.",
		recovery:  []string{"주문하실 메뉴를 말씀해 주세요.", "화면의 메뉴를 참고해 주세요."},
		uiActions: []string{"show_error", "show_voice_guide"},
	},
	OrderProcessingError: {
		severity:  SeverityMedium,
		message:   "주문 처리 중 문제가 발생했습니다.",
		recovery:  []string{"주문 내역을 확인해 주세요.", "다시 시도해 주세요."},
		uiActions: []string{"show_error", "show_menu"},
	},
	ServerError: {
		severity:  SeverityHigh,
		message:   "서버에 문제가 발생했습니다. 잠시 후 다시 시도해 주세요.",
		recovery:  []string{"잠시 후 다시 시도해 주세요.", "문제가 계속되면 직원을 호출해 주세요."},
		uiActions: []string{"show_error"},
	},
	AudioProcessingError: {
		severity:  SeverityMedium,
		message:   "오디오 처리에 실패했습니다. 다시 녹음해 주세요.",
		recovery:  []string{"다시 녹음해 주세요.", "마이크 상태를 확인해 주세요."},
		uiActions: []string{"show_error", "show_voice_guide"},
	},
	PaymentError: {
		severity:  SeverityHigh,
		message:   "결제 처리 중 문제가 발생했습니다.",
		recovery:  []string{"결제 수단을 확인해 주세요.", "다시 시도해 주세요."},
		uiActions: []string{"show_error"},
	},
	UnknownError: {
		severity:  SeverityMedium,
		message:   "알 수 없는 오류가 발생했습니다. 다시 시도해 주세요.",
		recovery:  []string{"다시 시도해 주세요.", "문제가 계속되면 직원을 호출해 주세요."},
		uiActions: []string{"show_error"},
	},
}

// Fault is a classified error. It wraps the original error for logging while
// exposing only the localized surface to clients.
type Fault struct {
	Kind      Kind
	Severity  Severity
	Message   string
	Recovery  []string
	UIActions []string

	err error
}

// New builds a fault of the given kind with its fixed presentation.
func New(kind Kind, detail string) *Fault {
	f := fromProfile(kind)
	f.err = errors.New(detail)
	return f
}

// Wrap classifies err under a caller-chosen kind, keeping the original error
// in the chain.
func Wrap(kind Kind, err error) *Fault {
	f := fromProfile(kind)
	f.err = err
	return f
}

func fromProfile(kind Kind) *Fault {
	p, ok := profiles[kind]
	if !ok {
		kind = UnknownError
		p = profiles[UnknownError]
	}
	return &Fault{
		Kind:      kind,
		Severity:  p.severity,
		Message:   p.message,
		Recovery:  p.recovery,
		UIActions: p.uiActions,
	}
}

// Error implements error. The text is the internal detail, not the user
// message.
func (f *Fault) Error() string {
	if f.err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.err)
	}
	return string(f.Kind)
}

// Unwrap exposes the wrapped error to errors.Is/As.
func (f *Fault) Unwrap() error { return f.err }

// WithSeverity returns a copy of f at the given severity.
func (f *Fault) WithSeverity(s Severity) *Fault {
	cp := *f
	cp.Severity = s
	return &cp
}

// Classify maps an arbitrary error into the taxonomy. Typed faults pass
// through unchanged; deadline and network errors are detected structurally;
// everything else falls back to the substring table.
func Classify(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return Wrap(TimeoutError, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Wrap(TimeoutError, err)
		}
		return Wrap(NetworkError, err)
	}

	return Wrap(classifyMessage(err.Error()), err)
}

// classifyMessage is the substring fallback for errors no typed adapter
// caught.
func classifyMessage(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "timeout", "deadline", "timed out"):
		return TimeoutError
	case containsAny(m, "connection", "network", "refused", "unreachable"):
		return NetworkError
	case containsAny(m, "validation", "invalid file", "file format"):
		return ValidationError
	case containsAny(m, "whisper", "speech", "audio", "recognition"):
		return SpeechRecognitionError
	case containsAny(m, "llm", "gpt", "intent"):
		return IntentRecognitionError
	case containsAny(m, "order", "menu", "payment"):
		return OrderProcessingError
	case containsAny(m, "permission", "import", "startup"):
		return ServerError
	default:
		return UnknownError
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
