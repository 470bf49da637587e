package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultErrorRateThreshold = 10
	DefaultSlowThreshold      = 5 * time.Second
	alertCooldown             = 5 * time.Minute
)

// classifyErrorMessage buckets an error message for the performance report.
func classifyErrorMessage(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "timeout") || strings.Contains(m, "deadline"):
		return "timeout"
	case strings.Contains(m, "connection") || strings.Contains(m, "network"):
		return "connection"
	case strings.Contains(m, "file"):
		return "file"
	default:
		return "other"
	}
}

// Alert is one raised condition.
type Alert struct {
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
	RaisedAt time.Time `json:"raised_at"`
}

// AlertManager evaluates the monitor against fixed thresholds. Each alert
// type has a cool-down before re-firing.
type AlertManager struct {
	mu        sync.Mutex
	monitor   *Monitor
	lastFired map[string]time.Time

	errorRateThreshold int
	slowThreshold      time.Duration
}

// NewAlertManager builds the manager; non-positive thresholds use defaults.
func NewAlertManager(m *Monitor, errorRateThreshold int, slowThreshold time.Duration) *AlertManager {
	if errorRateThreshold <= 0 {
		errorRateThreshold = DefaultErrorRateThreshold
	}
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowThreshold
	}
	return &AlertManager{
		monitor:            m,
		lastFired:          make(map[string]time.Time),
		errorRateThreshold: errorRateThreshold,
		slowThreshold:      slowThreshold,
	}
}

// Check evaluates both conditions and returns the alerts that fire now.
// An alert inside its cool-down window is suppressed.
func (am *AlertManager) Check() []Alert {
	met := am.monitor.CurrentMetrics()

	am.mu.Lock()
	defer am.mu.Unlock()

	now := time.Now()
	var alerts []Alert
	fire := func(alertType, message, severity string) {
		if last, ok := am.lastFired[alertType]; ok && now.Sub(last) < alertCooldown {
			return
		}
		am.lastFired[alertType] = now
		alerts = append(alerts, Alert{
			Type:     alertType,
			Message:  message,
			Severity: severity,
			RaisedAt: now,
		})
	}

	if met.ErrorsLastHour >= am.errorRateThreshold {
		fire("high_error_rate",
			fmt.Sprintf("%d errors in the last hour (threshold %d)", met.ErrorsLastHour, am.errorRateThreshold),
			"warning")
	}
	if met.MeanTotalTime > am.slowThreshold.Seconds() {
		fire("slow_response",
			fmt.Sprintf("mean total time %.2fs exceeds %.0fs", met.MeanTotalTime, am.slowThreshold.Seconds()),
			"warning")
	}
	return alerts
}
