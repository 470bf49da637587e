// Package monitor keeps rolling in-process request metrics: active requests,
// bounded rings of completions and errors, performance aggregation and alert
// thresholds. Nothing here persists across restarts.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle of one tracked request.
type Status string

const (
	StatusStarted    Status = "started"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

const (
	DefaultCompletedCapacity = 1000
	DefaultErrorsCapacity    = 1000
	systemCapacity           = 100

	// performanceSample is how many recent completions feed the report.
	performanceSample = 100
)

// Record tracks one request through the pipeline.
type Record struct {
	RequestID      string    `json:"request_id"`
	ClientIP       string    `json:"client_ip"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at,omitzero"`
	UploadSize     int64     `json:"upload_size"`
	ResponseSize   int64     `json:"response_size"`
	ProcessingTime float64   `json:"processing_time"` // seconds in the pipeline stages
	TotalTime      float64   `json:"total_time"`      // seconds wall clock
	Status         Status    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// SystemMetric is one sample of process health.
type SystemMetric struct {
	Timestamp      time.Time `json:"timestamp"`
	Goroutines     int       `json:"goroutines"`
	HeapBytes      uint64    `json:"heap_bytes"`
	ActiveRequests int       `json:"active_requests"`
}

// ring is a FIFO bounded at cap; pushing past cap drops the oldest entry.
type ring[T any] struct {
	buf []T
	cap int
}

func newRing[T any](cap int) *ring[T] {
	return &ring[T]{cap: cap}
}

func (r *ring[T]) push(v T) {
	r.buf = append(r.buf, v)
	if len(r.buf) > r.cap {
		r.buf = append(r.buf[:0], r.buf[1:]...)
	}
}

func (r *ring[T]) last(n int) []T {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	out := make([]T, n)
	copy(out, r.buf[len(r.buf)-n:])
	return out
}

// Monitor tracks request metrics. Safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	active    map[string]*Record
	completed *ring[Record]
	errors    *ring[Record]
	system    *ring[SystemMetric]

	totalStarted   int64
	totalCompleted int64
	totalErrors    int64
}

// New returns a monitor with the given ring capacities; zero values use the
// defaults.
func New(completedCap, errorsCap int) *Monitor {
	if completedCap <= 0 {
		completedCap = DefaultCompletedCapacity
	}
	if errorsCap <= 0 {
		errorsCap = DefaultErrorsCapacity
	}
	return &Monitor{
		active:    make(map[string]*Record),
		completed: newRing[Record](completedCap),
		errors:    newRing[Record](errorsCap),
		system:    newRing[SystemMetric](systemCapacity),
	}
}

// StartRequest opens a monitoring span for requestID.
func (m *Monitor) StartRequest(requestID, clientIP string, uploadSize int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[requestID] = &Record{
		RequestID:  requestID,
		ClientIP:   clientIP,
		StartedAt:  time.Now(),
		UploadSize: uploadSize,
		Status:     StatusStarted,
	}
	m.totalStarted++
}

// UpdateStatus moves an active request to a new processing status.
func (m *Monitor) UpdateStatus(requestID string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.active[requestID]; ok {
		r.Status = status
	}
}

// CompleteRequest closes the span successfully. processingTime is the
// stage-execution time in seconds; total time is derived from the span.
func (m *Monitor) CompleteRequest(requestID string, processingTime float64, responseSize int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.active[requestID]
	if !ok {
		return
	}
	delete(m.active, requestID)

	r.EndedAt = time.Now()
	r.TotalTime = r.EndedAt.Sub(r.StartedAt).Seconds()
	r.ProcessingTime = processingTime
	r.ResponseSize = responseSize
	r.Status = StatusCompleted
	m.completed.push(*r)
	m.totalCompleted++
}

// LogError closes the span as failed and records the error message.
func (m *Monitor) LogError(requestID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.active[requestID]
	if ok {
		delete(m.active, requestID)
	} else {
		r = &Record{RequestID: requestID, StartedAt: time.Now()}
	}
	r.EndedAt = time.Now()
	r.TotalTime = r.EndedAt.Sub(r.StartedAt).Seconds()
	r.Status = StatusError
	r.ErrorMessage = message
	m.errors.push(*r)
	m.totalErrors++
}

// SampleSystem appends one process-health sample to the system ring.
func (m *Monitor) SampleSystem() SystemMetric {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	defer m.mu.Unlock()
	s := SystemMetric{
		Timestamp:      time.Now(),
		Goroutines:     runtime.NumGoroutine(),
		HeapBytes:      ms.HeapAlloc,
		ActiveRequests: len(m.active),
	}
	m.system.push(s)
	return s
}

// Metrics is the point-in-time summary served by the monitoring endpoints.
type Metrics struct {
	ActiveRequests    int     `json:"active_requests"`
	TotalStarted      int64   `json:"total_started"`
	TotalCompleted    int64   `json:"total_completed"`
	TotalErrors       int64   `json:"total_errors"`
	ErrorsLastHour    int     `json:"errors_last_hour"`
	MeanTotalTime     float64 `json:"mean_total_time"`
	MeanUploadBytes   float64 `json:"mean_upload_bytes"`
	MeanResponseBytes float64 `json:"mean_response_bytes"`
}

// CurrentMetrics summarizes the monitor's current state. Means are over the
// performance sample window.
func (m *Monitor) CurrentMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	recent := m.completed.last(performanceSample)
	var totalTime, upload, response float64
	for _, r := range recent {
		totalTime += r.TotalTime
		upload += float64(r.UploadSize)
		response += float64(r.ResponseSize)
	}
	met := Metrics{
		ActiveRequests: len(m.active),
		TotalStarted:   m.totalStarted,
		TotalCompleted: m.totalCompleted,
		TotalErrors:    m.totalErrors,
		ErrorsLastHour: m.errorsSinceLocked(time.Now().Add(-time.Hour)),
	}
	if n := float64(len(recent)); n > 0 {
		met.MeanTotalTime = totalTime / n
		met.MeanUploadBytes = upload / n
		met.MeanResponseBytes = response / n
	}
	return met
}

func (m *Monitor) errorsSinceLocked(cutoff time.Time) int {
	n := 0
	for _, r := range m.errors.buf {
		if r.EndedAt.After(cutoff) {
			n++
		}
	}
	return n
}

// Export writes the full monitoring state as JSON to path.
func (m *Monitor) Export(path string) error {
	m.mu.Lock()
	snapshot := struct {
		ExportedAt time.Time      `json:"exported_at"`
		Completed  []Record       `json:"completed"`
		Errors     []Record       `json:"errors"`
		System     []SystemMetric `json:"system"`
	}{
		ExportedAt: time.Now(),
		Completed:  append([]Record{}, m.completed.buf...),
		Errors:     append([]Record{}, m.errors.buf...),
		System:     append([]SystemMetric{}, m.system.buf...),
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(struct {
		Metrics Metrics `json:"current_metrics"`
		Report  Report  `json:"performance_report"`
		State   any     `json:"state"`
	}{m.CurrentMetrics(), m.PerformanceReport(), snapshot}, "", "  ")
	if err != nil {
		return fmt.Errorf("monitor: marshal export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("monitor: write export: %w", err)
	}
	return nil
}

// TimingStats summarizes a duration series in seconds.
type TimingStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Report aggregates the most recent completions and classifies recent error
// messages.
type Report struct {
	SampleSize     int            `json:"sample_size"`
	ProcessingTime TimingStats    `json:"processing_time"`
	TotalTime      TimingStats    `json:"total_time"`
	ErrorClasses   map[string]int `json:"error_classes"`
}

// PerformanceReport aggregates over the last 100 completions and the error
// ring.
func (m *Monitor) PerformanceReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	recent := m.completed.last(performanceSample)
	processing := make([]float64, 0, len(recent))
	total := make([]float64, 0, len(recent))
	for _, r := range recent {
		processing = append(processing, r.ProcessingTime)
		total = append(total, r.TotalTime)
	}

	classes := map[string]int{"timeout": 0, "connection": 0, "file": 0, "other": 0}
	for _, r := range m.errors.buf {
		classes[classifyErrorMessage(r.ErrorMessage)]++
	}

	return Report{
		SampleSize:     len(recent),
		ProcessingTime: timingStats(processing),
		TotalTime:      timingStats(total),
		ErrorClasses:   classes,
	}
}

func timingStats(values []float64) TimingStats {
	if len(values) == 0 {
		return TimingStats{}
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return TimingStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / float64(len(sorted)),
		Median: median,
	}
}
