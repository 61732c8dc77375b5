package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Metric is a numeric QC value that may be missing. The QC pipeline writes
// the string "N/A" wherever a measurement could not be taken; Metric keeps
// that contract on the wire while giving the aggregation code a typed
// value/valid pair instead of strings mixed into numbers.
type Metric struct {
	Value float64
	Valid bool
}

// NewMetric returns a present measurement.
func NewMetric(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// MissingMetric returns the absent-measurement sentinel.
func MissingMetric() Metric {
	return Metric{}
}

// Rounded returns the metric rounded to the given number of decimal places.
// Missing metrics round to themselves.
func (m Metric) Rounded(places int) Metric {
	if !m.Valid {
		return m
	}
	scale := math.Pow(10, float64(places))
	return NewMetric(math.Round(m.Value*scale) / scale)
}

// String renders the value the way the QC reports do: "N/A" when missing.
func (m Metric) String() string {
	if !m.Valid {
		return NotAvailable
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// Format renders a present value with a fixed number of decimals, or "N/A".
func (m Metric) Format(places int) string {
	if !m.Valid {
		return NotAvailable
	}
	return strconv.FormatFloat(m.Value, 'f', places, 64)
}

// GreaterThan reports whether the metric is present and strictly above v.
func (m Metric) GreaterThan(v float64) bool {
	return m.Valid && m.Value > v
}

// AtMost reports whether the metric is present and at or below v.
func (m Metric) AtMost(v float64) bool {
	return m.Valid && m.Value <= v
}

// MarshalJSON emits the number, or the string "N/A" for a missing value.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts a number or the "N/A" sentinel.
func (m *Metric) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == NotAvailable {
			*m = MissingMetric()
			return nil
		}
		return fmt.Errorf("invalid metric value %q", s)
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid metric value: %w", err)
	}
	*m = NewMetric(v)
	return nil
}
