package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricJSON(t *testing.T) {
	tests := []struct {
		name     string
		metric   Metric
		expected string
	}{
		{"present value marshals as number", NewMetric(97.25), "97.25"},
		{"zero value marshals as number", NewMetric(0), "0"},
		{"missing value marshals as sentinel", MissingMetric(), `"N/A"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.metric)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))

			var back Metric
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.metric, back)
		})
	}

	var m Metric
	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &m))
}

func TestMetricRounded(t *testing.T) {
	assert.Equal(t, NewMetric(93.46), NewMetric(93.4567).Rounded(2))
	assert.Equal(t, NewMetric(93), NewMetric(93.4567).Rounded(0))
	assert.Equal(t, MissingMetric(), MissingMetric().Rounded(2))
}

func TestMetricComparisons(t *testing.T) {
	assert.True(t, NewMetric(0.95).GreaterThan(0.90))
	assert.False(t, NewMetric(0.90).GreaterThan(0.90))
	assert.False(t, MissingMetric().GreaterThan(0))

	assert.True(t, NewMetric(2).AtMost(2))
	assert.False(t, NewMetric(2.1).AtMost(2))
	assert.False(t, MissingMetric().AtMost(100))
}

func TestPlatformTokens(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		expected []string
	}{
		{"single platform", "Illumina", []string{"Illumina"}},
		{"comma separated", "Illumina, Nanopore", []string{"Illumina", "Nanopore"}},
		{"empty declares N/A", "", []string{"N/A"}},
		{"only separators declare N/A", " , ", []string{"N/A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := EnrichedMetrics{Platform: tt.platform}
			assert.Equal(t, tt.expected, m.PlatformTokens())
		})
	}
}
