package utils

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	// BreakerMinRequests is the minimum number of requests observed in the
	// closed state before the failure ratio is evaluated.
	BreakerMinRequests uint32 = 5
	// BreakerFailureRatio is the failure ratio at which the breaker trips.
	BreakerFailureRatio float64 = 0.6
	// BreakerOpenTimeout is how long the breaker stays open before probing.
	BreakerOpenTimeout = 30 * time.Second
)

// NewBreakerSettings returns the gobreaker settings shared by the outbound
// adapter clients: trip on a failure ratio over a minimum request count, stay
// open for a fixed timeout, and report state transitions through the callback.
func NewBreakerSettings(name string, onStateChange func(name string, from, to gobreaker.State)) gobreaker.Settings {
	return gobreaker.Settings{
		Name:    name,
		Timeout: BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= BreakerMinRequests && failureRatio >= BreakerFailureRatio
		},
		OnStateChange: onStateChange,
	}
}
