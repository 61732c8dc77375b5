package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// Scoring thresholds. Coverage, similarity and depth use strict
// greater-than; the ambiguous-base limit is inclusive.
const (
	coverageThresholdPct  = 90.0
	ambiguousThresholdPct = 2.0
	similarityThreshold   = 95.0
	depthThreshold        = 50.0
)

const (
	coverageExpected   = "90% or higher"
	ambiguousExpected  = "2% or lower"
	similarityExpected = "95% or higher"
	depthExpected      = "50 or higher"
)

// Evaluate scores every sample of the index for one requesting lab: seven
// indicators, each with the lab's own verdict and the peer pass-rate.
// Samples where the requester has no scoreable record are left out.
func Evaluate(index domain.SampleIndex, requester string) domain.Evaluation {
	var ev domain.Evaluation

	for _, sample := range sortedKeys(index) {
		labData := index[sample]

		user, ok := labData[requester]
		if !ok || !user.Scoreable() {
			continue
		}
		ref := referenceRecord(labData)
		intended := user.IntendedSubtype

		ev.Subtyping = append(ev.Subtyping, scoreSubtyping(sample, labData, user, ref, requester, intended))
		ev.Clade = append(ev.Clade, scoreCategorical(sample, labData, requester, user.Clade, ref.Clade,
			func(m domain.EnrichedMetrics) string { return m.Clade }))
		ev.LegacyClade = append(ev.LegacyClade, scoreCategorical(sample, labData, requester, user.LegacyClade, ref.LegacyClade,
			func(m domain.EnrichedMetrics) string { return m.LegacyClade }))
		ev.GenomeCoverage = append(ev.GenomeCoverage, scoreCoverage(sample, labData, user, ref, requester))
		ev.AmbiguousBases = append(ev.AmbiguousBases, scoreAmbiguous(sample, labData, user, ref, requester))
		ev.Similarity = append(ev.Similarity, scoreSimilarity(sample, labData, user, ref, requester))
		ev.ReadDepth = append(ev.ReadDepth, scoreDepth(sample, labData, user, ref, requester))
	}
	return ev
}

// referenceRecord returns the reference lab's record, or an inert record
// whose fields all render "N/A" when the reference never submitted.
func referenceRecord(labData map[string]domain.EnrichedMetrics) domain.EnrichedMetrics {
	if ref, ok := labData[domain.ReferenceLab]; ok {
		return ref
	}
	var m domain.EnrichedMetrics
	m.SequenceName = domain.NotAvailable
	m.Clade = domain.NotAvailable
	m.LegacyClade = domain.NotAvailable
	m.SubtypeCall = domain.SubtypeCall(domain.NotAvailable)
	return m
}

func scoreSubtyping(sample string, labData map[string]domain.EnrichedMetrics, user, ref domain.EnrichedMetrics, requester, intended string) domain.ScoreRow {
	userSubtype := domain.DisplaySubtype(user.SubtypeCall, intended)
	refSubtype := domain.DisplaySubtype(ref.SubtypeCall, intended)

	pass, total := 0, 0
	for _, lab := range sortedKeys(labData) {
		if lab == requester || lab == domain.ReferenceLab {
			continue
		}
		total++
		if labData[lab].SubtypeCall == domain.SubtypeOriginal {
			pass++
		}
	}

	return domain.ScoreRow{
		Sample:     sample,
		YourResult: userSubtype,
		Expected:   intended,
		Reference:  refSubtype,
		Verdict:    verdict(userSubtype == intended),
		PassRate:   passRate(pass, total),
	}
}

// scoreCategorical scores the clade indicators: the reference lab's call is
// both the intended and the reference value, and every peer counts in the
// denominator whether it is scoreable or not.
func scoreCategorical(sample string, labData map[string]domain.EnrichedMetrics, requester, userValue, intendedValue string, field func(domain.EnrichedMetrics) string) domain.ScoreRow {
	pass, total := 0, 0
	for _, lab := range sortedKeys(labData) {
		if lab == requester || lab == domain.ReferenceLab {
			continue
		}
		total++
		if field(labData[lab]) == intendedValue {
			pass++
		}
	}

	return domain.ScoreRow{
		Sample:     sample,
		YourResult: userValue,
		Expected:   intendedValue,
		Reference:  intendedValue,
		Verdict:    verdict(userValue == intendedValue),
		PassRate:   passRate(pass, total),
	}
}

func scoreCoverage(sample string, labData map[string]domain.EnrichedMetrics, user, ref domain.EnrichedMetrics, requester string) domain.ScoreRow {
	userPct := user.Coverage.Value * 100

	var peerValues []float64
	pass, total := 0, 0
	for _, lab := range sortedKeys(labData) {
		m := labData[lab]
		if lab == requester || lab == domain.ReferenceLab || !m.Scoreable() {
			continue
		}
		total++
		peerValues = append(peerValues, m.Coverage.Value*100)
		if m.Coverage.Value > coverageThresholdPct/100 {
			pass++
		}
	}

	refResult := domain.NotAvailable
	if ref.Coverage.Valid {
		refResult = formatRounded(ref.Coverage.Value*100, 1)
	}

	return domain.ScoreRow{
		Sample:     sample,
		YourResult: formatRounded(userPct, 1),
		Expected:   coverageExpected,
		Reference:  refResult,
		Verdict:    verdict(userPct > coverageThresholdPct),
		IQR:        iqrString(peerValues),
		PassRate:   passRate(pass, total),
	}
}

func scoreAmbiguous(sample string, labData map[string]domain.EnrichedMetrics, user, ref domain.EnrichedMetrics, requester string) domain.ScoreRow {
	var peerValues []float64
	pass, total := 0, 0
	for _, lab := range sortedKeys(labData) {
		m := labData[lab]
		if lab == requester || lab == domain.ReferenceLab || !m.Scoreable() {
			continue
		}
		total++
		peerValues = append(peerValues, m.AmbiguousPct.Value)
		if m.AmbiguousPct.Value <= ambiguousThresholdPct {
			pass++
		}
	}

	refResult := domain.NotAvailable
	if ref.AmbiguousPct.Valid {
		refResult = formatRounded(ref.AmbiguousPct.Value, 1)
	}

	return domain.ScoreRow{
		Sample:     sample,
		YourResult: formatRounded(user.AmbiguousPct.Value, 1),
		Expected:   ambiguousExpected,
		Reference:  refResult,
		Verdict:    verdict(user.AmbiguousPct.Value <= ambiguousThresholdPct),
		IQR:        iqrString(peerValues),
		PassRate:   passRate(pass, total),
	}
}

func scoreSimilarity(sample string, labData map[string]domain.EnrichedMetrics, user, ref domain.EnrichedMetrics, requester string) domain.ScoreRow {
	var peerValues []float64
	pass, total := 0, 0
	for _, lab := range sortedKeys(labData) {
		m := labData[lab]
		if lab == requester || lab == domain.ReferenceLab || !m.Scoreable() {
			continue
		}
		total++
		peerValues = append(peerValues, m.Similarity.Value)
		if m.Similarity.Value > similarityThreshold {
			pass++
		}
	}

	refResult := domain.NotAvailable
	if ref.Similarity.Valid {
		refResult = formatRounded(ref.Similarity.Value, 1)
	}

	return domain.ScoreRow{
		Sample:     sample,
		YourResult: formatRounded(user.Similarity.Value, 1),
		Expected:   similarityExpected,
		Reference:  refResult,
		Verdict:    verdict(user.Similarity.Value > similarityThreshold),
		IQR:        iqrString(peerValues),
		PassRate:   passRate(pass, total),
	}
}

// scoreDepth counts every scoreable peer in the denominator but only peers
// that actually reported a depth can pass or contribute to the IQR. A
// requester without depth data fails the indicator.
func scoreDepth(sample string, labData map[string]domain.EnrichedMetrics, user, ref domain.EnrichedMetrics, requester string) domain.ScoreRow {
	var peerValues []float64
	pass, total := 0, 0
	for _, lab := range sortedKeys(labData) {
		m := labData[lab]
		if lab == requester || lab == domain.ReferenceLab || !m.Scoreable() {
			continue
		}
		total++
		if m.MeanDepth.Valid {
			peerValues = append(peerValues, m.MeanDepth.Value)
			if m.MeanDepth.Value > depthThreshold {
				pass++
			}
		}
	}

	userResult := domain.NotAvailable
	if user.MeanDepth.Valid {
		userResult = formatRounded(user.MeanDepth.Value, 0)
	}
	refResult := domain.NotAvailable
	if ref.MeanDepth.Valid {
		refResult = formatRounded(ref.MeanDepth.Value, 0)
	}

	return domain.ScoreRow{
		Sample:     sample,
		YourResult: userResult,
		Expected:   depthExpected,
		Reference:  refResult,
		Verdict:    verdict(user.MeanDepth.GreaterThan(depthThreshold)),
		IQR:        iqrString(peerValues),
		PassRate:   passRate(pass, total),
	}
}

func verdict(pass bool) domain.Verdict {
	if pass {
		return domain.VerdictPass
	}
	return domain.VerdictFail
}

// passRate renders "{pass}/{total} ({pct}%)" with the percentage floored to
// an integer. An empty peer set renders "0/0 (0%)".
func passRate(pass, total int) string {
	if total == 0 {
		return "0/0 (0%)"
	}
	return fmt.Sprintf("%d/%d (%d%%)", pass, total, pass*100/total)
}

// iqrString renders "{mean} ({Q1}-{Q3})" with all three values rounded to
// integers, or the literal "N/A" when no peer contributed.
func iqrString(values []float64) string {
	if len(values) == 0 {
		return domain.NotAvailable
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	q1 := percentile(values, 25)
	q3 := percentile(values, 75)

	// Half-to-even rounding, matching how the published reports rounded.
	return fmt.Sprintf("%d (%d-%d)", int(math.RoundToEven(mean)), int(math.RoundToEven(q1)), int(math.RoundToEven(q3)))
}

// percentile computes the p-th percentile with linear interpolation between
// the two nearest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (float64(len(sorted)) - 1) * p / 100
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func formatRounded(v float64, places int) string {
	return domain.NewMetric(v).Rounded(places).Format(places)
}
