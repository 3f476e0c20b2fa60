package metrics

import (
	"sync/atomic"
	"time"
)

// ID names one counter or histogram.
type ID uint16

const (
	SignupSuccess ID = iota
	SignupDuplicate
	SignupFailure
	OTPVerifySuccess
	OTPVerifyFailure
	OTPAttemptsExhausted
	OTPResent
	SignInSuccess
	SignInFailure
	SignInLocked
	SignInUnverified
	SignInDeactivated
	RateLimited
	AccountLocked
	RefreshSuccess
	RefreshFailure
	RefreshReplay
	Logout
	LogoutAll
	TokenRevokedRejected
	PasswordResetRequest
	PasswordResetSuccess
	PasswordResetFailure
	PasswordChanged
	AccountDeactivated
	AccountReactivated
	AccountUnlocked
	EmailDispatchFailure
	AuthenticateLatency
	idCount
)

// Count is the number of defined IDs.
const Count = int(idCount)

// BucketCount is the number of histogram buckets, +Inf included.
const BucketCount = 8

const cacheLineSize = 64

// BucketBounds are the upper bounds of the finite histogram buckets.
var BucketBounds = [BucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
	sumNs   uint64
}

// Config toggles collection.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Registry holds every counter and the latency histogram.
type Registry struct {
	enabled       bool
	enableLatency bool
	counters      [idCount]paddedCounter
	latency       histogram
}

// Snapshot is a point-in-time copy of a Registry. Histogram buckets are
// non-cumulative.
type Snapshot struct {
	Counters   map[ID]uint64
	Histograms map[ID]HistogramSnapshot
}

// HistogramSnapshot is one histogram at snapshot time.
type HistogramSnapshot struct {
	Buckets [BucketCount]uint64
	Sum     time.Duration
}

// Count returns the number of observations.
func (h HistogramSnapshot) Count() uint64 {
	var n uint64
	for _, b := range h.Buckets {
		n += b
	}
	return n
}

// New returns a Registry. A nil *Registry is valid and records nothing.
func New(cfg Config) *Registry {
	return &Registry{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

func (r *Registry) LatencyEnabled() bool {
	return r != nil && r.enableLatency
}

// Inc adds one to counter id.
func (r *Registry) Inc(id ID) {
	if r == nil || !r.enabled || id >= idCount {
		return
	}
	atomic.AddUint64(&r.counters[id].value, 1)
}

// Observe records d in the AuthenticateLatency histogram. Other ids are
// ignored.
func (r *Registry) Observe(id ID, d time.Duration) {
	if r == nil || !r.enableLatency || id != AuthenticateLatency {
		return
	}
	if d < 0 {
		d = 0
	}
	atomic.AddUint64(&r.latency.buckets[bucketIndex(d)], 1)
	atomic.AddUint64(&r.latency.sumNs, uint64(d))
}

// Value returns the current value of counter id.
func (r *Registry) Value(id ID) uint64 {
	if r == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&r.counters[id].value)
}

// Snapshot copies the current values.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Counters:   map[ID]uint64{},
		Histograms: map[ID]HistogramSnapshot{},
	}
	if r == nil || !r.enabled {
		return s
	}

	for id := ID(0); id < idCount; id++ {
		if id == AuthenticateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&r.counters[id].value)
	}

	if r.enableLatency {
		var h HistogramSnapshot
		for i := range h.Buckets {
			h.Buckets[i] = atomic.LoadUint64(&r.latency.buckets[i])
		}
		h.Sum = time.Duration(atomic.LoadUint64(&r.latency.sumNs))
		s.Histograms[AuthenticateLatency] = h
	}

	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range BucketBounds {
		if d <= bound {
			return i
		}
	}
	return BucketCount - 1
}
