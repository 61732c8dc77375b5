package upload

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
)

// Kind classifies an uploaded artifact by its filename.
type Kind int

const (
	KindUnknown Kind = iota
	KindFASTA
	KindFASTQ
	KindBAM
	KindBAI
	KindBigWig
)

func (k Kind) String() string {
	switch k {
	case KindFASTA:
		return "fasta"
	case KindFASTQ:
		return "fastq"
	case KindBAM:
		return "bam"
	case KindBAI:
		return "bai"
	case KindBigWig:
		return "bigwig"
	default:
		return "unknown"
	}
}

// Classify maps a filename to its artifact kind. Gzipped FASTA and FASTQ
// keep their kind; the compression is handled transparently on read.
func Classify(filename string) Kind {
	name := strings.ToLower(filename)
	name = strings.TrimSuffix(name, ".gz")
	switch {
	case strings.HasSuffix(name, ".fasta"), strings.HasSuffix(name, ".fa"), strings.HasSuffix(name, ".fna"):
		return KindFASTA
	case strings.HasSuffix(name, ".fastq"), strings.HasSuffix(name, ".fq"):
		return KindFASTQ
	case strings.HasSuffix(name, ".bam"):
		return KindBAM
	case strings.HasSuffix(name, ".bai"):
		return KindBAI
	case strings.HasSuffix(name, ".bw"), strings.HasSuffix(name, ".bigwig"):
		return KindBigWig
	default:
		return KindUnknown
	}
}

var gzipMagic = []byte{0x1f, 0x8b}

// CheckGzip verifies that a file declared as gzip actually starts with the
// gzip magic bytes.
func CheckGzip(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	magic := make([]byte, 2)
	if _, err := io.ReadFull(f, magic); err != nil {
		return fmt.Errorf("file too short for gzip: %w", err)
	}
	if !bytes.Equal(magic, gzipMagic) {
		return fmt.Errorf("file does not look like gzip")
	}
	return nil
}

// Validate checks that the file content matches the kind its name declares.
func Validate(path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		if err := CheckGzip(path); err != nil {
			return err
		}
	}

	switch Classify(path) {
	case KindFASTA:
		return ValidateFASTA(path)
	case KindFASTQ:
		return ValidateFASTQ(path)
	case KindBAM:
		return ValidateBAM(path)
	case KindBAI, KindBigWig:
		// Binary companions; presence and non-emptiness is all that is
		// checked before the pipeline consumes them.
		return validateNonEmpty(path)
	default:
		return fmt.Errorf("unsupported file type: %s", path)
	}
}

// ValidateFASTA parses the whole file and requires at least one sequence
// record.
func ValidateFASTA(path string) error {
	reader, err := fastx.NewReader(seq.DNAredundant, path, fastx.DefaultIDRegexp)
	if err != nil {
		return fmt.Errorf("error creating reader: %v", err)
	}
	defer reader.Close()

	records := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading record: %v", err)
		}
		if len(record.Seq.Seq) == 0 {
			return fmt.Errorf("empty sequence for record %q", record.Name)
		}
		records++
	}

	if records == 0 {
		return fmt.Errorf("no sequence records found")
	}
	return nil
}

// ValidateFASTQ checks the four-line record shape: header, sequence, plus
// line, quality of matching length.
func ValidateFASTQ(path string) error {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return fmt.Errorf("error opening file: %v", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	records := 0
	for {
		header, ok := nextLine(scanner)
		if !ok {
			break
		}
		if !strings.HasPrefix(header, "@") {
			return fmt.Errorf("record %d: header does not start with @", records+1)
		}

		sequence, ok := nextLine(scanner)
		if !ok {
			return fmt.Errorf("record %d: truncated after header", records+1)
		}
		plus, ok := nextLine(scanner)
		if !ok || !strings.HasPrefix(plus, "+") {
			return fmt.Errorf("record %d: missing + separator", records+1)
		}
		quality, ok := nextLine(scanner)
		if !ok {
			return fmt.Errorf("record %d: missing quality line", records+1)
		}
		if len(quality) != len(sequence) {
			return fmt.Errorf("record %d: quality length %d does not match sequence length %d",
				records+1, len(quality), len(sequence))
		}
		records++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %v", err)
	}

	if records == 0 {
		return fmt.Errorf("no sequence records found")
	}
	return nil
}

func nextLine(scanner *bufio.Scanner) (string, bool) {
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			return line, true
		}
	}
	return "", false
}

// ValidateBAM opens the file as BGZF-compressed BAM and parses its header.
func ValidateBAM(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening file: %v", err)
	}
	defer f.Close()

	reader, err := bam.NewReader(f, 1)
	if err != nil {
		return fmt.Errorf("not a valid BAM file: %v", err)
	}
	defer reader.Close()

	if len(reader.Header().Refs()) == 0 {
		return fmt.Errorf("BAM header has no reference sequences")
	}
	return nil
}

func validateNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error opening file: %v", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}
