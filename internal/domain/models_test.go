package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformAggregateJSON(t *testing.T) {
	t.Run("populated group marshals metrics as numbers", func(t *testing.T) {
		agg := PlatformAggregate{
			Platform:     "Illumina",
			Label:        "Illumina (2)",
			CoveragePct:  NewMetric(90.5),
			AmbiguousPct: NewMetric(1.5),
			Similarity:   NewMetric(95.8),
			MeanDepth:    MissingMetric(),
			Count:        2,
			Clade:        "A.D.1",
			LegacyClade:  "GA2.3.5",
		}

		data, err := json.Marshal(agg)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, 90.5, got["coverage"])
		assert.Equal(t, "N/A", got["read_coverage"])
		assert.Equal(t, "A.D.1", got["clade"])
	})

	t.Run("zero-count group marshals metrics as empty strings", func(t *testing.T) {
		agg := PlatformAggregate{
			Platform: "PacBio",
			Label:    "PacBio (0)",
		}

		data, err := json.Marshal(agg)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "", got["coverage"])
		assert.Equal(t, "", got["ns"])
		assert.Equal(t, "", got["similarity"])
		assert.Equal(t, "", got["read_coverage"])
		assert.Equal(t, "", got["clade"])
		assert.Equal(t, "PacBio (0)", got["label"])
	})
}
