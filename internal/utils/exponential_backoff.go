package utils

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// maxBackoffExponent caps the doubling so the bit shifts below cannot
// overflow int64.
const maxBackoffExponent = 32

var (
	ErrInvalidBackoffRetryValue = errors.New("invalid backoff retry value")
	ErrMaxRetryValueOverflow    = errors.New("max retry value overflow")
)

// CalculateExponentialBackoffDuration returns 2^retry as a bare duration.
//
//	CalculateExponentialBackoffDuration(1) -> time.Duration(2)
//	CalculateExponentialBackoffDuration(2) -> time.Duration(4)
//	CalculateExponentialBackoffDuration(3) -> time.Duration(8)
func CalculateExponentialBackoffDuration(retry int) (time.Duration, error) {
	if retry < 0 {
		return 0, ErrInvalidBackoffRetryValue
	}

	if retry > maxBackoffExponent {
		return 0, ErrMaxRetryValueOverflow
	}

	return time.Duration(1 << retry), nil
}

// ExponentialBackoffInSeconds returns the duration in seconds based on the number of retries.
func ExponentialBackoffInSeconds(retry int) (time.Duration, error) {
	backoff, err := CalculateExponentialBackoffDuration(retry)
	if err != nil {
		return 0, fmt.Errorf("calculating exponential backoff duration: %w", err)
	}

	return time.Second * backoff, nil
}

// FullJitterBackoff returns a random wait in [0, min(limit, base*2^(attempt-1))).
// Spreading over the whole window instead of jittering around the exponential
// point keeps concurrent retriers from re-synchronizing. attempt is one-based;
// out-of-range inputs clamp rather than error because every caller is a retry
// loop that cannot do anything useful with a backoff error.
func FullJitterBackoff(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 || limit <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	ceiling := limit
	if attempt-1 < maxBackoffExponent {
		if doubled := base << (attempt - 1); doubled > 0 && doubled < limit {
			ceiling = doubled
		}
	}

	return time.Duration(rand.Int64N(int64(ceiling)))
}
