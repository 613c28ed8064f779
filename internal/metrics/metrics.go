package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType defines types of metrics we track
type MetricType string

const (
	TypeCounter     MetricType = "counter"
	TypeGauge       MetricType = "gauge"
	TypeTimer       MetricType = "timer"
	TypeErrorRate   MetricType = "error_rate"
	TypeHealthCheck MetricType = "health"
)

// Metric names recorded by the document services
const (
	DocumentsRegistered = "documents_registered"
	DocumentsRouted     = "documents_routed"
	DocumentsReceived   = "documents_received"
	RoutingsCancelled   = "routings_cancelled"
	CopiesCreated       = "copies_created"
	ActionsRecorded     = "actions_recorded"
	DocumentsArchived   = "documents_archived"
	RetentionArchived   = "retention_archived"
	RetentionFailures   = "retention_failures"
	ImportRowsCreated   = "import_rows_created"
	ImportRowsFailed    = "import_rows_failed"
	NotificationsSent   = "notifications_sent"
	NotificationsFailed = "notifications_failed"
)

// Database query kinds recorded by the gorm callbacks
const (
	DBQueryTypeSelect = "select"
	DBQueryTypeInsert = "insert"
	DBQueryTypeUpdate = "update"
	DBQueryTypeDelete = "delete"
)

// TimerMetric captures timing information
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// ErrorRateMetric captures error rates
type ErrorRateMetric struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

type timer struct {
	count       int64
	totalTimeMs int64
	minTimeMs   int64
	maxTimeMs   int64
}

type errorRate struct {
	total  int64
	errors int64
}

// Metrics is the in-process metrics collector
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	timers       map[string]*timer
	errorRates   map[string]*errorRate
	healthChecks map[string]*int64
	startTime    time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		timers:       make(map[string]*timer),
		errorRates:   make(map[string]*errorRate),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

// slot returns the value stored under name, creating it with mk on first use
func slot[T any](m *Metrics, store map[string]*T, name string, mk func() *T) *T {
	m.mu.RLock()
	v, ok := store[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = store[name]; !ok {
		v = mk()
		store[name] = v
	}
	return v
}

func newInt() *int64 { return new(int64) }

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	if m == nil {
		return
	}
	atomic.AddInt64(slot(m, m.counters, name, newInt), value)
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	if m == nil {
		return
	}
	atomic.StoreInt64(slot(m, m.gauges, name, newInt), value)
}

// RecordTimer records a timing measurement
func (m *Metrics) RecordTimer(name string, duration time.Duration) {
	if m == nil {
		return
	}
	t := slot(m, m.timers, name, func() *timer { return &timer{minTimeMs: math.MaxInt64} })
	ms := duration.Milliseconds()

	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalTimeMs, ms)

	for {
		cur := atomic.LoadInt64(&t.minTimeMs)
		if ms >= cur || atomic.CompareAndSwapInt64(&t.minTimeMs, cur, ms) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&t.maxTimeMs)
		if ms <= cur || atomic.CompareAndSwapInt64(&t.maxTimeMs, cur, ms) {
			break
		}
	}
}

// RecordSuccess records a successful operation for error rate tracking
func (m *Metrics) RecordSuccess(name string) {
	m.recordErrorRate(name, false)
}

// RecordError records an error for error rate tracking
func (m *Metrics) RecordError(name string) {
	m.recordErrorRate(name, true)
}

// RecordOperation records duration and outcome of a service operation
func (m *Metrics) RecordOperation(name string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.RecordTimer(name, time.Since(started))
	m.recordErrorRate(name, err != nil)
}

// RecordDatabaseQuery records a query issued through gorm
func (m *Metrics) RecordDatabaseQuery(queryType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	name := "db_" + queryType
	m.RecordTimer(name, duration)
	m.recordErrorRate(name, !success)
}

// RecordHTTPRequest records an API request by route. Only 5xx responses
// count as errors.
func (m *Metrics) RecordHTTPRequest(route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	name := "http " + route
	m.IncrementCounter("http_requests")
	m.RecordTimer(name, duration)
	m.recordErrorRate(name, statusCode >= 500)
}

func (m *Metrics) recordErrorRate(name string, isError bool) {
	if m == nil {
		return
	}
	er := slot(m, m.errorRates, name, func() *errorRate { return &errorRate{} })
	atomic.AddInt64(&er.total, 1)
	if isError {
		atomic.AddInt64(&er.errors, 1)
	}
}

// SetHealth sets the health status of a component
func (m *Metrics) SetHealth(component string, isHealthy bool) {
	if m == nil {
		return
	}
	var value int64
	if isHealthy {
		value = 1
	}
	atomic.StoreInt64(slot(m, m.healthChecks, component, newInt), value)
}

// GetCounters returns all counters
func (m *Metrics) GetCounters() map[string]int64 {
	return m.snapshot(m.counters)
}

// GetGauges returns all gauges
func (m *Metrics) GetGauges() map[string]int64 {
	return m.snapshot(m.gauges)
}

func (m *Metrics) snapshot(store map[string]*int64) map[string]int64 {
	out := make(map[string]int64)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, v := range store {
		out[name] = atomic.LoadInt64(v)
	}
	return out
}

// GetTimers returns all timers
func (m *Metrics) GetTimers() map[string]TimerMetric {
	timers := make(map[string]TimerMetric)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, t := range m.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalTimeMs)

		var average float64
		if count > 0 {
			average = float64(total) / float64(count)
		}

		timers[name] = TimerMetric{
			Count:         count,
			TotalTimeMs:   total,
			AverageTimeMs: average,
			MinTimeMs:     atomic.LoadInt64(&t.minTimeMs),
			MaxTimeMs:     atomic.LoadInt64(&t.maxTimeMs),
		}
	}

	return timers
}

// GetErrorRates returns all error rates
func (m *Metrics) GetErrorRates() map[string]ErrorRateMetric {
	rates := make(map[string]ErrorRateMetric)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, er := range m.errorRates {
		total := atomic.LoadInt64(&er.total)
		errs := atomic.LoadInt64(&er.errors)

		var rate float64
		if total > 0 {
			rate = float64(errs) / float64(total) * 100.0
		}

		rates[name] = ErrorRateMetric{Total: total, Errors: errs, ErrorRate: rate}
	}

	return rates
}

// GetHealthChecks returns all health checks
func (m *Metrics) GetHealthChecks() map[string]bool {
	checks := make(map[string]bool)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, h := range m.healthChecks {
		checks[name] = atomic.LoadInt64(h) > 0
	}

	return checks
}

// GetUptimeSeconds returns the service uptime in seconds
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns all metrics in a structured format
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"timers":         m.GetTimers(),
		"error_rates":    m.GetErrorRates(),
		"health_checks":  m.GetHealthChecks(),
	}
}
