package report

import (
	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// ProjectSample renders one sample's per-lab table under the requester's
// visibility policy.
//
// Superusers see one row per lab, alphabetical. Regular users see exactly
// three rows: their own lab, the anonymized "Others (N)" peer aggregate and
// the reference lab. A user without a scoreable record for the sample gets
// ErrNoSubmission; a missing reference record gets ErrReferenceMissing.
func ProjectSample(sample, accession string, labs map[string]domain.EnrichedMetrics, requester domain.ParticipantContext) (domain.SampleView, error) {
	view := domain.SampleView{
		Sample:             sample,
		IntendedSubtype:    domain.SubtypeForAccession(accession),
		ReferenceAccession: accession,
		PlatformAggregates: PlatformAggregates(labs),
	}

	if requester.IsSuperuser() {
		for _, lab := range sortedKeys(labs) {
			view.Rows = append(view.Rows, participantRow(lab, labs[lab], view.IntendedSubtype))
		}
		return view, nil
	}

	user, ok := labs[requester.Organization]
	if !ok || !user.Scoreable() {
		return domain.SampleView{}, domain.ErrNoSubmission
	}
	ref, ok := labs[domain.ReferenceLab]
	if !ok {
		return domain.SampleView{}, domain.ErrReferenceMissing
	}

	aggregate := PeerAggregate(labs, requester.Organization)

	view.Rows = []domain.ParticipantRow{
		participantRow(requester.Organization, user, view.IntendedSubtype),
		othersRow(aggregate, view.IntendedSubtype),
		referenceRow(ref, view.IntendedSubtype),
	}
	return view, nil
}

// participantRow renders one lab's metrics for display. Unscoreable records
// keep the participant name and platform but all metric cells are missing.
func participantRow(lab string, m domain.EnrichedMetrics, intended string) domain.ParticipantRow {
	row := domain.ParticipantRow{
		Participant: lab,
		Clade:       domain.NotAvailable,
		LegacyClade: domain.NotAvailable,
		Subtype:     domain.NotAvailable,
		Platform:    m.Platform,
	}
	if !m.Scoreable() {
		return row
	}

	row.CoveragePct = domain.NewMetric(m.Coverage.Value * 100).Rounded(2)
	row.AmbiguousPct = m.AmbiguousPct.Rounded(2)
	row.Similarity = m.Similarity.Rounded(2)
	row.MeanDepth = m.MeanDepth.Rounded(2)
	row.Clade = m.Clade
	row.LegacyClade = m.LegacyClade
	row.Subtype = domain.DisplaySubtype(m.SubtypeCall, intended)
	return row
}

func othersRow(aggregate domain.AggregateRecord, intended string) domain.ParticipantRow {
	subtype := ""
	if aggregate.SubtypeCall != "" {
		subtype = domain.DisplaySubtype(aggregate.SubtypeCall, intended)
	}
	return domain.ParticipantRow{
		Participant:  OthersLabel(aggregate.LabCount),
		CoveragePct:  aggregate.CoveragePct,
		AmbiguousPct: aggregate.AmbiguousPct,
		Similarity:   aggregate.Similarity,
		MeanDepth:    aggregate.MeanDepth,
		Clade:        aggregate.Clade,
		LegacyClade:  aggregate.LegacyClade,
		Subtype:      subtype,
		Platform:     "",
	}
}

func referenceRow(ref domain.EnrichedMetrics, intended string) domain.ParticipantRow {
	row := participantRow(domain.ReferenceRowLabel, ref, intended)
	return row
}
