package report

import (
	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// BuildSampleIndex pivots a lab-centric ReportTree into the sample-centric
// index the aggregation and scoring code consumes, joining in each sample's
// intended subtype from the manifest and each lab's declared sequencing
// platform. Labs with no submission record get the "N/A" platform.
//
// Samples absent from the manifest keep an empty intended subtype; they still
// appear in views but never score.
func BuildSampleIndex(tree domain.ReportTree, manifest map[string]string, platforms map[string]map[string]string) domain.SampleIndex {
	index := domain.SampleIndex{}
	for lab, samples := range tree {
		for sample, metrics := range samples {
			if _, ok := index[sample]; !ok {
				index[sample] = map[string]domain.EnrichedMetrics{}
			}

			intended := ""
			if accession, ok := manifest[sample]; ok {
				intended = domain.SubtypeForAccession(accession)
			}

			platform := domain.NotAvailable
			if bySample, ok := platforms[sample]; ok {
				if p, ok := bySample[lab]; ok {
					platform = p
				}
			}

			index[sample][lab] = domain.EnrichedMetrics{
				SampleMetrics:   metrics,
				IntendedSubtype: intended,
				Platform:        platform,
			}
		}
	}
	return index
}

// Participants counts, per sample, how many labs delivered parseable data.
func Participants(tree domain.ReportTree) map[string]int {
	counts := map[string]int{}
	for _, samples := range tree {
		for sample := range samples {
			counts[sample]++
		}
	}
	return counts
}
