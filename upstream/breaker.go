package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker around a Generator.
type BreakerSettings struct {
	Name        string
	MaxFailures uint32        // consecutive failures that open the circuit
	OpenTimeout time.Duration // how long the circuit stays open before probing
	HalfOpenMax uint32        // probes allowed while half-open
}

// Breaker stops calling a failing backend for a while; callers get ErrCircuitOpen
// until a probe succeeds.
type Breaker struct {
	next Generator
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. Caller-side cancellations and 4xx answers do not count
// as failures.
func NewBreaker(next Generator, s BreakerSettings, log zerolog.Logger) *Breaker {
	if s.Name == "" {
		s.Name = "upstream"
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenMax == 0 {
		s.HalfOpenMax = 1
	}
	maxFailures := s.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenMax,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Generate(ctx context.Context, req *Request) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", errors.Join(ErrCircuitOpen, ErrUnavailable, err)
		}
		return "", err
	}
	return out.(string), nil
}

// State returns the current circuit state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
