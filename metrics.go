package courierauth

import (
	"sync/atomic"
	"time"
)

// MetricID names one counter or histogram slot.
type MetricID uint16

const (
	MetricOTPIssued MetricID = iota
	MetricOTPDeliveryFailed
	MetricOTPVerified
	MetricOTPVerifyFailed
	MetricOTPAttemptsExceeded
	MetricRateLimitHit
	MetricTokenIssued
	MetricTokenRevoked
	MetricAuthSuccess
	MetricAuthFailure
	MetricAuthRevoked
	MetricAccountCreated
	MetricDeviceRegistered
	MetricDeviceRegisterFailed
	MetricCleanupRemoved
	// MetricAuthenticateLatency is the only histogram.
	MetricAuthenticateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
	maxLabelValues  = 5
)

// Label values are fixed so every series exists from the first scrape.
var (
	purposeLabelValues = []string{
		string(PurposeSignup),
		string(PurposeLogin),
		string(PurposePasswordReset),
		string(PurposePhoneChange),
		string(PurposeEmailChange),
	}
	scopeLabelValues = []string{scopeOTPRequest, scopeOTPVerify, scopeCheck}
)

// MetricLabel reports the label counter id is split by and its values in
// export order. Unlabelled counters return "" and nil.
func MetricLabel(id MetricID) (string, []string) {
	switch id {
	case MetricOTPIssued, MetricOTPDeliveryFailed, MetricOTPVerified,
		MetricOTPVerifyFailed, MetricOTPAttemptsExceeded:
		return "purpose", append([]string(nil), purposeLabelValues...)
	case MetricRateLimitHit:
		return "scope", append([]string(nil), scopeLabelValues...)
	default:
		return "", nil
	}
}

func labelIndex(id MetricID, value string) int {
	var values []string
	switch id {
	case MetricOTPIssued, MetricOTPDeliveryFailed, MetricOTPVerified,
		MetricOTPVerifyFailed, MetricOTPAttemptsExceeded:
		values = purposeLabelValues
	case MetricRateLimitHit:
		values = scopeLabelValues
	}
	for i, v := range values {
		if v == value {
			return i
		}
	}
	return -1
}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the authenticate latency histogram.
// A nil or disabled Metrics ignores every write.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	labeled       [metricIDCount][maxLabelValues]uint64
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Labeled holds the per-label breakdown of the counters MetricLabel names,
// keyed by label value.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Labeled    map[MetricID]map[string]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// IncLabeled adds one to counter id and to its slot for value. A value the
// counter is not split by only moves the total.
func (m *Metrics) IncLabeled(id MetricID, value string) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
	if i := labelIndex(id, value); i >= 0 {
		atomic.AddUint64(&m.labeled[id][i], 1)
	}
}

// LabeledValue returns the slot of counter id for value.
func (m *Metrics) LabeledValue(id MetricID, value string) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	i := labelIndex(id, value)
	if i < 0 {
		return 0
	}
	return atomic.LoadUint64(&m.labeled[id][i])
}

// Add adds n to counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram for id. Only MetricAuthenticateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthenticateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies the current values. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return emptySnapshot()
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Labeled:    make(map[MetricID]map[string]uint64, 6),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
		if _, values := MetricLabel(id); len(values) > 0 {
			byValue := make(map[string]uint64, len(values))
			for i, v := range values {
				byValue[v] = atomic.LoadUint64(&m.labeled[id][i])
			}
			s.Labeled[id] = byValue
		}
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Labeled:    map[MetricID]map[string]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
