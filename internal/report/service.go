package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// Service computes distribution reports on demand. Nothing is cached: every
// request re-reads the QC artifacts so freshly uploaded submissions show up
// immediately.
type Service struct {
	dataDir   string
	parser    *Parser
	platforms domain.PlatformSource
	logger    *logrus.Logger
}

// NewService creates a report service rooted at dataDir.
func NewService(dataDir string, platforms domain.PlatformSource, logger *logrus.Logger) *Service {
	return &Service{
		dataDir:   dataDir,
		parser:    NewParser(logger),
		platforms: platforms,
		logger:    logger,
	}
}

func (s *Service) distributionDir(distribution string) (string, error) {
	dir := filepath.Join(s.dataDir, distribution)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", domain.ErrDistributionNotFound
	}
	return dir, nil
}

// ListDistributions returns the distribution names found in the data
// directory, sorted.
func (s *Service) ListDistributions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// loadIndex parses a distribution's QC tree, joins the manifest and the
// declared sequencing platforms, and returns the sample-centric index.
func (s *Service) loadIndex(ctx context.Context, distribution string) (domain.SampleIndex, map[string]string, error) {
	dir, err := s.distributionDir(distribution)
	if err != nil {
		return nil, nil, err
	}

	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, nil, err
	}

	tree, err := s.parser.BuildTree(dir)
	if err != nil {
		return nil, nil, err
	}
	logTreeSummary(s.logger, distribution, tree)

	platforms := map[string]map[string]string{}
	for _, samples := range tree {
		for sample := range samples {
			if _, done := platforms[sample]; done {
				continue
			}
			bySample, err := s.platforms.Platforms(ctx, distribution, sample)
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"distribution": distribution,
					"sample":       sample,
				}).Warn("Platform lookup failed, declaring N/A")
				bySample = map[string]string{}
			}
			platforms[sample] = bySample
		}
	}

	return BuildSampleIndex(tree, manifest, platforms), manifest, nil
}

// Participation summarizes, per sample, how many labs submitted parseable
// data and which reference accession the sample maps to.
func (s *Service) Participation(ctx context.Context, distribution string) (map[string]domain.Participation, error) {
	dir, err := s.distributionDir(distribution)
	if err != nil {
		return nil, err
	}
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	tree, err := s.parser.BuildTree(dir)
	if err != nil {
		return nil, err
	}

	result := map[string]domain.Participation{}
	for sample, count := range Participants(tree) {
		accession, ok := manifest[sample]
		if !ok {
			accession = "Unknown"
		}
		result[sample] = domain.Participation{
			Participants:       count,
			ReferenceAccession: accession,
		}
	}
	return result, nil
}

// SampleDetail computes the role-projected view of one sample.
func (s *Service) SampleDetail(ctx context.Context, distribution, sample string, requester domain.ParticipantContext) (domain.SampleView, error) {
	index, manifest, err := s.loadIndex(ctx, distribution)
	if err != nil {
		return domain.SampleView{}, err
	}

	labs, ok := index[sample]
	if !ok {
		return domain.SampleView{}, domain.ErrSampleNotFound
	}
	return ProjectSample(sample, manifest[sample], labs, requester)
}

// DistributionReport computes the full report for one requester: every
// sample's projected table plus the scored indicators. For regular users,
// samples without a scoreable own record are left out instead of failing the
// whole report.
func (s *Service) DistributionReport(ctx context.Context, distribution string, requester domain.ParticipantContext) (domain.DistributionReport, error) {
	index, manifest, err := s.loadIndex(ctx, distribution)
	if err != nil {
		return domain.DistributionReport{}, err
	}

	rep := domain.DistributionReport{
		Distribution: distribution,
		Requester:    requester,
		GeneratedAt:  time.Now().UTC(),
		Evaluation:   Evaluate(index, requester.Organization),
	}

	for _, sample := range sortedKeys(index) {
		view, err := ProjectSample(sample, manifest[sample], index[sample], requester)
		if err != nil {
			if errors.Is(err, domain.ErrNoSubmission) || errors.Is(err, domain.ErrReferenceMissing) {
				continue
			}
			return domain.DistributionReport{}, err
		}
		rep.Samples = append(rep.Samples, view)
	}
	return rep, nil
}

// ArtifactKind selects which submission artifact a download request targets.
type ArtifactKind string

const (
	ArtifactConsensusBAM ArtifactKind = "bam"
	ArtifactConsensusBAI ArtifactKind = "bai"
	ArtifactBigWig       ArtifactKind = "bigwig"
)

// ArtifactPath resolves the on-disk path of a participant's downloadable
// artifact for one sample. The file must exist.
func (s *Service) ArtifactPath(distribution, participant, sample string, kind ArtifactKind) (string, error) {
	dir, err := s.distributionDir(distribution)
	if err != nil {
		return "", err
	}

	var name string
	switch kind {
	case ArtifactConsensusBAM:
		name = fmt.Sprintf("%s_%s_consensus.bam", participant, sample)
	case ArtifactConsensusBAI:
		name = fmt.Sprintf("%s_%s_consensus.bam.bai", participant, sample)
	case ArtifactBigWig:
		name = fmt.Sprintf("%s_%s.bw", participant, sample)
	default:
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}

	path := filepath.Join(dir, participant, sample, name)
	if _, err := os.Stat(path); err != nil {
		return "", domain.ErrSampleNotFound
	}
	return path, nil
}
