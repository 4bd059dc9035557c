package reminder

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
)

const (
	// DefaultMaxAttempts is the number of send attempts per group.
	DefaultMaxAttempts = 3

	initialRetryDelay = time.Second
	retryMultiplier   = 2
)

// ErrSendFailed is returned once every attempt to send a message failed.
var ErrSendFailed = errors.New("send failed")

// newBackOff waits 1s, 2s, 4s... between attempts, for at most maxAttempts attempts.
func newBackOff(ctx context.Context, maxAttempts int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialRetryDelay
	exp.Multiplier = retryMultiplier
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Hour
	exp.MaxElapsedTime = 0
	exp.Reset()

	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxAttempts-1)), ctx)
}

// SendWithRetry sends msg through mailer, retrying failed attempts with exponential backoff.
// The waits go through timer; a nil timer really sleeps.
// It returns the number of attempts made and, when they all failed, an error whose cause is ErrSendFailed.
func SendWithRetry(ctx context.Context, mailer core.EmailService, msg *core.EmailMessage, maxAttempts int, timer backoff.Timer, logger core.Logger) (int, error) {
	var attempts int
	op := func() error {
		attempts++
		err := mailer.Send(ctx, msg)
		if errors.Cause(err) == core.ErrMailUnconfigured {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("send attempt failed", map[string]interface{}{
			"subject":  msg.Subject,
			"attempt":  attempts,
			"retry_in": wait.String(),
			"error":    err.Error(),
		})
	}

	err := backoff.RetryNotifyWithTimer(op, newBackOff(ctx, maxAttempts), notify, timer)
	if err == nil {
		return attempts, nil
	}
	if errors.Cause(err) == core.ErrMailUnconfigured {
		return attempts, err
	}
	return attempts, errors.Wrapf(ErrSendFailed, "%d attempt(s), last error: %v", attempts, err)
}
