package report

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

type stubPlatformSource struct {
	platforms map[string]string
	err       error
}

func (s *stubPlatformSource) Platforms(ctx context.Context, distribution, sample string) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.platforms, nil
}

// writeLabFixture writes a full QC artifact set so the parsed metrics come
// out at the given coverage fraction, missing-base count, alignment end and
// mean depth for a 10000-base genome.
func writeLabFixture(t *testing.T, distDir, lab, sample string, coverage float64, missing, alignEnd int, clade string, depth float64) {
	t.Helper()
	base := filepath.Join(lab, sample)

	writeFile(t, distDir, filepath.Join(base, "genomeLength.txt"), "10000")
	writeFile(t, distDir, filepath.Join(base, "nextclade.output"),
		nextcladeHeader+fmt.Sprintf("%s_%s\t%s\tG%s\t5.0\t%g\t%d\t0\t%d\t0\t0\t0\t0\n",
			lab, sample, clade, clade, coverage, missing, alignEnd))
	writeFile(t, distDir, filepath.Join(base, "genome_results.txt"), fmt.Sprintf(`>>>>>>> Coverage

     There is a 95.0%% of reference with a coverageData >= 20X
     mean coverageData = %gX
     std coverageData = 1.0X
`, depth))
	writeFile(t, distDir, filepath.Join(base, "raw_data_qualimapReport/coverage_histogram.txt"),
		fmt.Sprintf("#coverage\tlocations\n%g\t100.0\n", depth))
}

func fixtureDistribution(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	distDir := filepath.Join(dataDir, "D1")

	writeFile(t, distDir, "samples.txt", "S1 EPI_ISL_1653999\n")

	// similarity = (alignEnd - missing) / 10000 * 100 with no other edits.
	writeLabFixture(t, distDir, "9999", "S1", 0.99, 10, 9960, "B.1", 120)
	writeLabFixture(t, distDir, "LabX", "S1", 0.92, 100, 9700, "B.1", 60)
	writeLabFixture(t, distDir, "LabY", "S1", 0.85, 150, 9550, "B.2", 40)

	return dataDir
}

func TestServiceSampleDetailUserScenario(t *testing.T) {
	dataDir := fixtureDistribution(t)
	platforms := &stubPlatformSource{platforms: map[string]string{
		"9999": "Illumina",
		"LabX": "Illumina",
		"LabY": "Nanopore",
	}}
	svc := NewService(dataDir, platforms, testLogger())

	view, err := svc.SampleDetail(context.Background(), "D1", "S1", domain.ParticipantContext{
		Organization: "LabX",
		Role:         domain.RoleUser,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SubtypeB, view.IntendedSubtype)
	assert.Equal(t, domain.ReferenceAccessionB, view.ReferenceAccession)
	require.Len(t, view.Rows, 3)

	assert.Equal(t, "LabX", view.Rows[0].Participant)
	assert.Equal(t, domain.NewMetric(92), view.Rows[0].CoveragePct)
	assert.Equal(t, "Illumina", view.Rows[0].Platform)

	others := view.Rows[1]
	assert.Equal(t, "Others (1)", others.Participant)
	assert.Equal(t, domain.NewMetric(85), others.CoveragePct)
	assert.Equal(t, domain.NewMetric(1.5), others.AmbiguousPct)
	assert.Equal(t, domain.NewMetric(94), others.Similarity)
	assert.Equal(t, domain.NewMetric(40), others.MeanDepth)

	assert.Equal(t, domain.ReferenceRowLabel, view.Rows[2].Participant)
	assert.Equal(t, domain.NewMetric(99), view.Rows[2].CoveragePct)
}

func TestServiceSampleDetailErrors(t *testing.T) {
	dataDir := fixtureDistribution(t)
	svc := NewService(dataDir, &stubPlatformSource{}, testLogger())
	requester := domain.ParticipantContext{Organization: "LabX", Role: domain.RoleUser}

	_, err := svc.SampleDetail(context.Background(), "nope", "S1", requester)
	assert.ErrorIs(t, err, domain.ErrDistributionNotFound)

	_, err = svc.SampleDetail(context.Background(), "D1", "S9", requester)
	assert.ErrorIs(t, err, domain.ErrSampleNotFound)

	_, err = svc.SampleDetail(context.Background(), "D1", "S1", domain.ParticipantContext{
		Organization: "LabQ",
		Role:         domain.RoleUser,
	})
	assert.ErrorIs(t, err, domain.ErrNoSubmission)
}

func TestServicePlatformLookupFailureDegrades(t *testing.T) {
	dataDir := fixtureDistribution(t)
	svc := NewService(dataDir, &stubPlatformSource{err: fmt.Errorf("db down")}, testLogger())

	view, err := svc.SampleDetail(context.Background(), "D1", "S1", domain.ParticipantContext{
		Organization: "LabX",
		Role:         domain.RoleUser,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NotAvailable, view.Rows[0].Platform)
}

func TestServiceDistributionReport(t *testing.T) {
	dataDir := fixtureDistribution(t)
	svc := NewService(dataDir, &stubPlatformSource{}, testLogger())

	rep, err := svc.DistributionReport(context.Background(), "D1", domain.ParticipantContext{
		Organization: "LabX",
		Role:         domain.RoleUser,
	})
	require.NoError(t, err)

	assert.Equal(t, "D1", rep.Distribution)
	require.Len(t, rep.Samples, 1)
	require.Len(t, rep.Evaluation.GenomeCoverage, 1)

	// The fixture lab clears every threshold, so each indicator passes.
	assert.Equal(t, domain.VerdictPass, rep.Evaluation.GenomeCoverage[0].Verdict)
	assert.Equal(t, domain.VerdictPass, rep.Evaluation.AmbiguousBases[0].Verdict)
	assert.Equal(t, domain.VerdictPass, rep.Evaluation.Similarity[0].Verdict)
	assert.Equal(t, domain.VerdictPass, rep.Evaluation.ReadDepth[0].Verdict)
	assert.Equal(t, domain.VerdictPass, rep.Evaluation.Subtyping[0].Verdict)
}

func TestServiceDistributionReportSuperuser(t *testing.T) {
	dataDir := fixtureDistribution(t)
	svc := NewService(dataDir, &stubPlatformSource{}, testLogger())

	rep, err := svc.DistributionReport(context.Background(), "D1", domain.ParticipantContext{
		Organization: "HQ",
		Role:         domain.RoleSuperuser,
	})
	require.NoError(t, err)
	require.Len(t, rep.Samples, 1)
	assert.Len(t, rep.Samples[0].Rows, 3)
	// HQ has no lab record, so nothing scores.
	assert.Empty(t, rep.Evaluation.Subtyping)
}

func TestServiceParticipation(t *testing.T) {
	dataDir := fixtureDistribution(t)
	svc := NewService(dataDir, &stubPlatformSource{}, testLogger())

	part, err := svc.Participation(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Participation{
		"S1": {Participants: 3, ReferenceAccession: domain.ReferenceAccessionB},
	}, part)
}

func TestServiceArtifactPath(t *testing.T) {
	dataDir := fixtureDistribution(t)
	distDir := filepath.Join(dataDir, "D1")
	writeFile(t, distDir, "LabX/S1/LabX_S1_consensus.bam", "bam bytes")
	writeFile(t, distDir, "LabX/S1/LabX_S1.bw", "bigwig bytes")

	svc := NewService(dataDir, &stubPlatformSource{}, testLogger())

	path, err := svc.ArtifactPath("D1", "LabX", "S1", ArtifactConsensusBAM)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(distDir, "LabX", "S1", "LabX_S1_consensus.bam"), path)

	_, err = svc.ArtifactPath("D1", "LabX", "S1", ArtifactConsensusBAI)
	assert.ErrorIs(t, err, domain.ErrSampleNotFound)

	_, err = svc.ArtifactPath("D1", "LabX", "S1", ArtifactBigWig)
	assert.NoError(t, err)
}

func TestServiceListDistributions(t *testing.T) {
	dataDir := fixtureDistribution(t)
	svc := NewService(dataDir, &stubPlatformSource{}, testLogger())

	names, err := svc.ListDistributions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"D1"}, names)
}
