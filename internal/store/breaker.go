package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// ResilientPlatformSource wraps a platform lookup with a circuit breaker so a
// failing database does not block report rendering. While the breaker is open
// the lookup degrades to an empty platform map and reports fall back to "N/A"
// platform labels.
type ResilientPlatformSource struct {
	source  domain.PlatformSource
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

// NewResilientPlatformSource creates a platform source guarded by a circuit breaker
func NewResilientPlatformSource(source domain.PlatformSource, logger *logrus.Logger) *ResilientPlatformSource {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "PlatformLookup",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientPlatformSource{
		source:  source,
		breaker: breaker,
		log:     logger,
	}
}

// Platforms returns the declared sequencing platforms for a sample. An open
// breaker yields an empty map rather than an error.
func (r *ResilientPlatformSource) Platforms(ctx context.Context, distribution, sample string) (map[string]string, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.source.Platforms(ctx, distribution, sample)
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			r.log.WithFields(logrus.Fields{
				"distribution": distribution,
				"sample":       sample,
			}).Warn("Platform lookup unavailable, rendering without platform data")
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("platform lookup failed: %w", err)
	}

	return result.(map[string]string), nil
}

// State returns the current breaker state
func (r *ResilientPlatformSource) State() gobreaker.State {
	return r.breaker.State()
}

// NullPlatformSource always reports no platform declarations. Used by the
// offline CLI where no database is available.
type NullPlatformSource struct{}

// Platforms returns an empty map for every sample
func (NullPlatformSource) Platforms(ctx context.Context, distribution, sample string) (map[string]string, error) {
	return map[string]string{}, nil
}
