// Package poller drives the adapter's refresh cycles on a fixed interval.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Target is polled once per cycle.
type Target interface {
	Poll(ctx context.Context) error
}

// Poller runs one poll to completion before scheduling the next.
type Poller struct {
	target   Target
	interval time.Duration
	trigger  chan chan error
}

// New creates a Poller. A zero interval defaults to 30 seconds.
func New(target Target, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		target:   target,
		interval: interval,
		trigger:  make(chan chan error, 1),
	}
}

// Trigger requests an immediate poll without waiting for it.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- nil:
	default:
		// Already triggered
	}
}

// PollNow requests an immediate poll and waits for its result. Requests made
// while another is pending are coalesced and all receive the same result.
func (p *Poller) PollNow(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case p.trigger <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().Dur("interval", p.interval).Msg("Poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Poller stopping")
			return nil

		case done := <-p.trigger:
			waiters := []chan error{done}
			// coalesce requests that queued up meanwhile
		drain:
			for {
				select {
				case d := <-p.trigger:
					waiters = append(waiters, d)
				default:
					break drain
				}
			}
			err := p.poll(ctx)
			for _, w := range waiters {
				if w != nil {
					w <- err
				}
			}
			ticker.Reset(p.interval)

		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	err := p.target.Poll(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Msg("Scheduled poll failed")
	}
	return err
}
