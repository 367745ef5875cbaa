package awsretry

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

const (
	DefaultAttempts uint          = 5
	DefaultDelay    time.Duration = 5 * time.Second
)

// api error codes that will not go away by retrying
var nonRetryableCodes = map[string]struct{}{
	"NoSuchEntity":          {},
	"InvalidInput":          {},
	"ValidationError":       {},
	"AccessDenied":          {},
	"AccessDeniedException": {},
}

// Policy bounds how many times a single api call is attempted and how long
// to wait between attempts.
type Policy struct {
	Attempts uint
	Delay    time.Duration
}

// DefaultPolicy is 5 attempts with a fixed 5 second delay.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
	}
}

func (p Policy) attempts() uint {
	if p.Attempts == 0 {
		return DefaultAttempts
	}
	return p.Attempts
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := nonRetryableCodes[apiErr.ErrorCode()]; ok {
			return false
		}
	}
	return true
}

// Do calls fn until it succeeds, returns a non retryable error, the context is
// done or the policy runs out of attempts. The last error is returned.
func Do(ctx context.Context, policy Policy, op string, fn func(ctx context.Context) error) error {
	llog := zerolog.Ctx(ctx)
	attempt := 0
	return retry.Do(
		func() error {
			attempt++
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(policy.attempts()),
		retry.Delay(policy.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			llog.Warn().Str("operation", op).Int("attempt", attempt).Err(err).Msg("api call failed, retrying")
		}),
	)
}
