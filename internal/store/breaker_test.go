package store

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatformSource struct {
	platforms map[string]string
	err       error
	calls     int
}

func (f *fakePlatformSource) Platforms(ctx context.Context, distribution, sample string) (map[string]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.platforms, nil
}

func breakerTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestResilientPlatformSourcePassthrough(t *testing.T) {
	source := &fakePlatformSource{platforms: map[string]string{"1234": "Illumina"}}
	resilient := NewResilientPlatformSource(source, breakerTestLogger())

	platforms, err := resilient.Platforms(context.Background(), "D1", "S1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1234": "Illumina"}, platforms)
	assert.Equal(t, 1, source.calls)
}

func TestResilientPlatformSourceErrorsPropagateWhileClosed(t *testing.T) {
	source := &fakePlatformSource{err: errors.New("connection refused")}
	resilient := NewResilientPlatformSource(source, breakerTestLogger())

	_, err := resilient.Platforms(context.Background(), "D1", "S1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform lookup failed")
}

func TestResilientPlatformSourceDegradesWhenOpen(t *testing.T) {
	source := &fakePlatformSource{err: errors.New("connection refused")}
	resilient := NewResilientPlatformSource(source, breakerTestLogger())
	ctx := context.Background()

	// Trip the breaker with consecutive failures.
	for i := 0; i < 5; i++ {
		resilient.Platforms(ctx, "D1", "S1")
		if resilient.State() == gobreaker.StateOpen {
			break
		}
	}
	require.Equal(t, gobreaker.StateOpen, resilient.State())

	callsBefore := source.calls
	platforms, err := resilient.Platforms(ctx, "D1", "S1")
	require.NoError(t, err, "open breaker degrades to an empty platform map")
	assert.Empty(t, platforms)
	assert.Equal(t, callsBefore, source.calls, "open breaker must not hit the source")
}

func TestNullPlatformSource(t *testing.T) {
	platforms, err := NullPlatformSource{}.Platforms(context.Background(), "D1", "S1")
	require.NoError(t, err)
	assert.Empty(t, platforms)
}
