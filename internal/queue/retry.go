package queue

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shardfleet/shardfleet/internal/logging"
)

// RetryPolicy controls in-place redelivery of a message whose handler failed.
// The same message is retried until it succeeds or the subscription is cancelled,
// so a failing message never lets later messages of its partition overtake it.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// deliver runs handler until it returns nil. Attempts share ctx, so a cancelled
// subscription reaches calls the handler makes; a handler that gives up on
// cancellation leaves the message uncommitted. onRetry, when set, is called before
// every wait (e.g. to extend an ack deadline).
// A nil return means the message may be committed.
func (p RetryPolicy) deliver(ctx context.Context, logger *logging.Logger, msg Message, handler Handler, onRetry func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attempt := 0

	operation := func() error {
		attempt++
		return handler(ctx, msg)
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("Message handler failed, retrying",
			"topic", msg.Topic,
			"key", msg.Key,
			"attempt", attempt,
			"retry_in", wait.String(),
			"error", err)
		if onRetry != nil {
			onRetry()
		}
	}

	return backoff.RetryNotify(operation, backoff.WithContext(p.newBackOff(), ctx), notify)
}
