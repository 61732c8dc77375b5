package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// Names of the QC pipeline artifacts inside each sample directory.
const (
	nextcladeFile     = "nextclade.output"
	nextcladeAltFile  = "nextclade_alternative.output"
	genomeResultsFile = "genome_results.txt"
	histogramFile     = "raw_data_qualimapReport/coverage_histogram.txt"
	genomeLengthFile  = "genomeLength.txt"
)

// Parser reads the per-sample QC pipeline outputs into SampleMetrics.
type Parser struct {
	logger *logrus.Logger
}

// NewParser creates a QC output parser.
func NewParser(logger *logrus.Logger) *Parser {
	return &Parser{logger: logger}
}

// sentinelNextclade marks every sequence-derived field missing. Used whenever
// the Nextclade output is absent or any of its fields fails to parse: one bad
// field invalidates the whole sequence record.
func sentinelNextclade(m *domain.SampleMetrics) {
	m.SequenceName = domain.NotAvailable
	m.Coverage = domain.MissingMetric()
	m.TotalMissing = domain.MissingMetric()
	m.AmbiguousPct = domain.MissingMetric()
	m.Substitutions = domain.MissingMetric()
	m.Deletions = domain.MissingMetric()
	m.Insertions = domain.MissingMetric()
	m.FrameShifts = domain.MissingMetric()
	m.Similarity = domain.MissingMetric()
	m.Clade = domain.NotAvailable
	m.LegacyClade = domain.NotAvailable
	m.SubtypeCall = domain.SubtypeCall(domain.NotAvailable)
}

// ParseNextclade reads the primary Nextclade TSV and, when present, the
// alternative-reference run, filling the sequence-derived fields of m.
//
// The primary file's first data row is authoritative; the alternative file is
// scanned to its last row for the overall QC score. Subtype comes from
// comparing the two alignment scores, lower score wins. genomeLength is the
// denominator for the ambiguous-base and similarity percentages.
func (p *Parser) ParseNextclade(primaryPath, altPath string, genomeLength int, m *domain.SampleMetrics) {
	if _, err := os.Stat(primaryPath); err != nil {
		p.logger.WithField("path", primaryPath).Warn("Nextclade file missing")
		sentinelNextclade(m)
		return
	}

	altScore := p.alternativeScore(altPath)

	row, err := firstTSVRow(primaryPath)
	if err != nil {
		p.logger.WithError(err).WithField("path", primaryPath).Error("Failed to read Nextclade file")
		sentinelNextclade(m)
		return
	}

	score, err := strconv.ParseFloat(scoreField(row), 64)
	if err != nil {
		p.logger.WithError(err).WithField("path", primaryPath).Error("Invalid Nextclade overall score")
		sentinelNextclade(m)
		return
	}
	m.SubtypeCall = domain.ResolveSubtype(domain.NewMetric(score), altScore)

	coverage, errCov := strconv.ParseFloat(value(row, "coverage"), 64)
	totalMissing, errMiss := strconv.Atoi(value(row, "totalMissing"))
	alignStart, errStart := strconv.Atoi(value(row, "alignmentStart"))
	alignEnd, errEnd := strconv.Atoi(value(row, "alignmentEnd"))
	substitutions, errSub := strconv.Atoi(value(row, "totalSubstitutions"))
	deletions, errDel := strconv.Atoi(value(row, "totalDeletions"))
	insertions, errIns := strconv.Atoi(value(row, "totalInsertions"))
	frameShifts, errFS := strconv.Atoi(value(row, "totalFrameShifts"))

	seqName, hasSeqName := row["seqName"]

	for _, err := range []error{errCov, errMiss, errStart, errEnd, errSub, errDel, errIns, errFS} {
		if err != nil {
			p.logger.WithError(err).WithField("path", primaryPath).Error("Failed to parse Nextclade row")
			sentinelNextclade(m)
			return
		}
	}
	if !hasSeqName || genomeLength == 0 {
		p.logger.WithField("path", primaryPath).Error("Failed to parse Nextclade row")
		sentinelNextclade(m)
		return
	}

	adjusted := alignEnd - alignStart - totalMissing - substitutions - deletions - insertions - frameShifts

	m.SequenceName = seqName
	m.Coverage = domain.NewMetric(coverage)
	m.TotalMissing = domain.NewMetric(float64(totalMissing))
	m.AmbiguousPct = domain.NewMetric(float64(totalMissing) / float64(genomeLength) * 100)
	m.Substitutions = domain.NewMetric(float64(substitutions))
	m.Deletions = domain.NewMetric(float64(deletions))
	m.Insertions = domain.NewMetric(float64(insertions))
	m.FrameShifts = domain.NewMetric(float64(frameShifts))
	m.Similarity = domain.NewMetric(float64(adjusted) / float64(genomeLength) * 100)
	m.Clade = valueOr(row, "clade", domain.NotAvailable)
	m.LegacyClade = valueOr(row, "G_clade", domain.NotAvailable)
}

// alternativeScore scans the alternative-reference Nextclade run and returns
// the overall QC score of its last row. Any read or parse failure, or a
// missing file, yields a missing metric.
func (p *Parser) alternativeScore(altPath string) domain.Metric {
	if altPath == "" {
		return domain.MissingMetric()
	}
	if _, err := os.Stat(altPath); err != nil {
		return domain.MissingMetric()
	}

	rows, err := allTSVRows(altPath)
	if err != nil || len(rows) == 0 {
		if err != nil {
			p.logger.WithError(err).WithField("path", altPath).Error("Failed to read alternative Nextclade file")
		}
		return domain.MissingMetric()
	}

	score, err := strconv.ParseFloat(scoreField(rows[len(rows)-1]), 64)
	if err != nil {
		p.logger.WithError(err).WithField("path", altPath).Error("Invalid alternative Nextclade score")
		return domain.MissingMetric()
	}
	return domain.NewMetric(score)
}

// ParseQualimap reads genome_results.txt and the coverage histogram, filling
// the read-depth fields of m. Either file missing marks all five fields
// absent; a histogram failure degrades only the median and uniformity.
func (p *Parser) ParseQualimap(genomeResultsPath, histogramPath string, m *domain.SampleMetrics) {
	m.CoverageAt20x = domain.MissingMetric()
	m.MeanDepth = domain.MissingMetric()
	m.DepthStdDev = domain.MissingMetric()
	m.MedianDepth = domain.MissingMetric()
	m.UniformityPct = domain.MissingMetric()

	if _, err := os.Stat(genomeResultsPath); err != nil {
		p.logger.WithField("path", genomeResultsPath).Warn("Qualimap genome results missing")
		return
	}
	if _, err := os.Stat(histogramPath); err != nil {
		p.logger.WithField("path", histogramPath).Warn("Qualimap coverage histogram missing")
		return
	}

	if err := p.parseGenomeResults(genomeResultsPath, m); err != nil {
		p.logger.WithError(err).WithField("path", genomeResultsPath).Error("Failed to read Qualimap genome results")
		return
	}

	median, uniformity, err := parseHistogram(histogramPath)
	if err != nil {
		p.logger.WithError(err).WithField("path", histogramPath).Error("Failed to process Qualimap histogram")
		return
	}
	m.MedianDepth = median
	m.UniformityPct = uniformity
}

func (p *Parser) parseGenomeResults(path string, m *domain.SampleMetrics) error {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	for {
		line, err := fh.ReadString('\n')
		if line != "" {
			if strings.Contains(line, "There is a") && strings.Contains(line, "of reference with a coverageData >= 20X") {
				fields := strings.Fields(line)
				if len(fields) > 3 {
					if v, perr := strconv.ParseFloat(strings.Trim(fields[3], "%"), 64); perr == nil {
						m.CoverageAt20x = domain.NewMetric(v)
					}
				}
			}
			if strings.Contains(line, "mean coverageData") {
				if v, ok := coverageDataValue(line); ok {
					m.MeanDepth = domain.NewMetric(v)
				}
			}
			if strings.Contains(line, "std coverageData") {
				if v, ok := coverageDataValue(line); ok {
					m.DepthStdDev = domain.NewMetric(v)
				}
			}
		}
		if err != nil {
			break
		}
	}
	return nil
}

// coverageDataValue extracts the numeric value from a Qualimap line of the
// form "key = 1,234.56X".
func coverageDataValue(line string) (float64, bool) {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return 0, false
	}
	raw := strings.TrimSpace(parts[1])
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.ReplaceAll(raw, "X", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseHistogram computes the median read depth and the uniformity from the
// depth histogram: the median is the depth at which the cumulative location
// count first reaches half the total, uniformity the share of locations at
// depths of at least a tenth of the median.
func parseHistogram(path string) (median, uniformity domain.Metric, err error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return domain.MissingMetric(), domain.MissingMetric(), err
	}
	defer fh.Close()

	var depths, counts []float64
	first := true
	for {
		line, rerr := fh.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if first {
				first = false
			} else {
				fields := strings.Fields(trimmed)
				if len(fields) < 2 {
					return domain.MissingMetric(), domain.MissingMetric(), fmt.Errorf("malformed histogram row %q", trimmed)
				}
				d, derr := strconv.ParseFloat(fields[0], 64)
				c, cerr := strconv.ParseFloat(fields[1], 64)
				if derr != nil || cerr != nil {
					return domain.MissingMetric(), domain.MissingMetric(), fmt.Errorf("malformed histogram row %q", trimmed)
				}
				depths = append(depths, d)
				counts = append(counts, c)
			}
		}
		if rerr != nil {
			break
		}
	}

	if len(depths) == 0 {
		return domain.MissingMetric(), domain.MissingMetric(), fmt.Errorf("empty histogram")
	}

	var total float64
	for _, c := range counts {
		total += c
	}

	half := total / 2
	cumulative := 0.0
	idx := -1
	for i, c := range counts {
		cumulative += c
		if cumulative >= half {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.MissingMetric(), domain.MissingMetric(), fmt.Errorf("histogram cumulative count never reaches half")
	}

	med := depths[idx]
	threshold := 0.1 * med
	var uniform float64
	for i, d := range depths {
		if d >= threshold {
			uniform += counts[i]
		}
	}
	if total == 0 {
		return domain.MissingMetric(), domain.MissingMetric(), fmt.Errorf("empty histogram")
	}

	return domain.NewMetric(med), domain.NewMetric(uniform / total * 100), nil
}

// ReadGenomeLength reads genomeLength.txt from a sample directory. A missing
// or malformed file returns ok=false and the caller skips the sample.
func (p *Parser) ReadGenomeLength(samplePath string) (int, bool) {
	path := filepath.Join(samplePath, genomeLengthFile)
	data, err := os.ReadFile(path)
	if err != nil {
		p.logger.WithField("path", samplePath).Warn("genomeLength.txt not found")
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		p.logger.WithField("path", samplePath).Warn("Invalid genomeLength.txt format")
		return 0, false
	}
	return n, true
}

// firstTSVRow returns the first data row of a tab-separated file keyed by its
// header line.
func firstTSVRow(path string) (map[string]string, error) {
	rows, err := readTSV(path, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return rows[0], nil
}

// allTSVRows returns every data row of a tab-separated file.
func allTSVRows(path string) ([]map[string]string, error) {
	return readTSV(path, 0)
}

func readTSV(path string, limit int) ([]map[string]string, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(record) {
				row[key] = record[i]
			}
		}
		rows = append(rows, row)
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

func value(row map[string]string, key string) string {
	return row[key]
}

// scoreField returns the overall QC score column, defaulting to "0" only when
// the column is absent entirely. A present-but-empty value is left to fail
// numeric parsing.
func scoreField(row map[string]string) string {
	if v, ok := row["qc.overallScore"]; ok {
		return v
	}
	return "0"
}

func valueOr(row map[string]string, key, fallback string) string {
	if v, ok := row[key]; ok {
		return v
	}
	return fallback
}

// sortedKeys returns the map's keys in lexicographic order. Aggregation and
// rendering iterate labs in this order so ties break deterministically.
func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
