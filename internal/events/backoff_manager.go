package events

import (
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/utils"
)

const DefaultMaxBackoffExponent = 8

// ConsumerBackoffManager tracks consecutive consume failures and the message
// being retried, so the consumer loop can wait exponentially longer between
// attempts and dead-letter the message once the maximum is reached.
type ConsumerBackoffManager struct {
	backoffCounter     int
	backoff            time.Duration
	backoffChan        chan<- struct{}
	maxBackoffExponent int
	msg                *Message
}

func NewBackoffManager(backoffChan chan<- struct{}, maxBackoffExponent int) *ConsumerBackoffManager {
	if maxBackoffExponent <= 0 {
		maxBackoffExponent = DefaultMaxBackoffExponent
	}
	return &ConsumerBackoffManager{
		backoffChan:        backoffChan,
		maxBackoffExponent: maxBackoffExponent,
	}
}

func (bm *ConsumerBackoffManager) TriggerBackoff() {
	bm.TriggerBackoffWithMessage(nil)
}

// TriggerBackoffWithMessage holds msg for retry and signals the consumer loop
// to wait before the next attempt.
func (bm *ConsumerBackoffManager) TriggerBackoffWithMessage(msg *Message) {
	if msg != nil {
		bm.msg = msg
	}

	bm.backoffCounter++
	if bm.backoffCounter > bm.maxBackoffExponent {
		bm.backoffCounter = bm.maxBackoffExponent
	}
	// No need to handle this error since it only returns error when retry > 32, < 0
	bm.backoff, _ = utils.ExponentialBackoffInSeconds(bm.backoffCounter)
	bm.backoffChan <- struct{}{}
}

func (bm *ConsumerBackoffManager) IsMaxBackoffReached() bool {
	return bm.backoffCounter >= bm.maxBackoffExponent
}

func (bm *ConsumerBackoffManager) GetMessage() *Message {
	return bm.msg
}

func (bm *ConsumerBackoffManager) GetBackoffDuration() time.Duration {
	return bm.backoff
}

func (bm *ConsumerBackoffManager) ResetBackoff() {
	bm.backoffCounter = 0
	bm.backoff = 0
	bm.msg = nil
}
