package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

const manifestFile = "samples.txt"

// BuildTree walks a distribution's data directory and parses the QC outputs
// of every lab and sample into a ReportTree. The layout is
// <dir>/<lab>/<sample>/ with the pipeline artifacts inside each sample
// directory. Samples without a readable genomeLength.txt are skipped.
func (p *Parser) BuildTree(distributionDir string) (domain.ReportTree, error) {
	entries, err := os.ReadDir(distributionDir)
	if err != nil {
		return nil, fmt.Errorf("reading distribution directory: %w", err)
	}

	tree := domain.ReportTree{}
	for _, labEntry := range entries {
		if !labEntry.IsDir() {
			continue
		}
		lab := labEntry.Name()
		labPath := filepath.Join(distributionDir, lab)

		sampleEntries, err := os.ReadDir(labPath)
		if err != nil {
			p.logger.WithError(err).WithField("lab", lab).Warn("Skipping unreadable lab directory")
			continue
		}

		tree[lab] = map[string]domain.SampleMetrics{}
		for _, sampleEntry := range sampleEntries {
			if !sampleEntry.IsDir() {
				continue
			}
			sample := sampleEntry.Name()
			samplePath := filepath.Join(labPath, sample)

			genomeLength, ok := p.ReadGenomeLength(samplePath)
			if !ok {
				continue
			}

			var m domain.SampleMetrics
			m.FastaPath = filepath.Join(samplePath, fmt.Sprintf("%s_%s.fasta", lab, sample))
			m.BAMPath = filepath.Join(samplePath, fmt.Sprintf("%s_%s.bam", lab, sample))
			m.BAIPath = filepath.Join(samplePath, fmt.Sprintf("%s_%s.bam.bai", lab, sample))

			p.ParseQualimap(
				filepath.Join(samplePath, genomeResultsFile),
				filepath.Join(samplePath, histogramFile),
				&m,
			)
			p.ParseNextclade(
				filepath.Join(samplePath, nextcladeFile),
				filepath.Join(samplePath, nextcladeAltFile),
				genomeLength,
				&m,
			)

			tree[lab][sample] = m
		}
	}
	return tree, nil
}

// LoadManifest reads the distribution's samples.txt: one line per sample,
// whitespace-separated sample name and reference accession.
func LoadManifest(distributionDir string) (map[string]string, error) {
	path := filepath.Join(distributionDir, manifestFile)
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer fh.Close()

	manifest := map[string]string{}
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed manifest line %q", line)
		}
		manifest[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return manifest, nil
}

// logTreeSummary emits one line per lab with its sample count.
func logTreeSummary(logger *logrus.Logger, distribution string, tree domain.ReportTree) {
	for _, lab := range sortedKeys(tree) {
		logger.WithFields(logrus.Fields{
			"distribution": distribution,
			"lab":          lab,
			"samples":      len(tree[lab]),
		}).Debug("Parsed lab reports")
	}
}
