package nvx

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// withReauth runs op at most twice. The first attempt uses the current
// session; if it fails with an error accepted by retryable, the session is
// replaced by a fresh login and op runs once more. The second result is
// returned as-is.
func withReauth[T any](ctx context.Context, c *Client, retryable func(error) bool, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := c.EnsureSession(ctx); err != nil {
		return zero, err
	}

	v, err := op(ctx)
	if err == nil || !retryable(err) || ctx.Err() != nil {
		return v, err
	}

	log.Debug().Err(err).Str("device", c.baseURL).Msg("Request failed, logging in again")

	if lerr := c.Login(ctx); lerr != nil {
		return zero, lerr
	}
	return op(ctx)
}

func isSessionError(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

func isCommandRetryable(err error) bool {
	return errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrCommandRejected)
}
