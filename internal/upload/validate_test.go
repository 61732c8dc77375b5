package upload

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeGzipFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func writeBAMFixture(t *testing.T) string {
	t.Helper()
	ref, err := sam.NewReference("RSV_A_ref", "", "", 15000, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "1234_RSV_A_01.bam")
	f, err := os.Create(path)
	require.NoError(t, err)
	writer, err := bam.NewWriter(f, header, 1)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	require.NoError(t, f.Close())
	return path
}

func TestClassify(t *testing.T) {
	tests := []struct {
		filename string
		want     Kind
	}{
		{"1234_RSV_A_01.fasta", KindFASTA},
		{"consensus.fa.gz", KindFASTA},
		{"reads_R1.fastq.gz", KindFASTQ},
		{"reads.fq", KindFASTQ},
		{"1234_RSV_A_01.bam", KindBAM},
		{"1234_RSV_A_01.bam.bai", KindBAI},
		{"1234_RSV_A_01.bw", KindBigWig},
		{"notes.txt", KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.filename), tt.filename)
	}
}

func TestValidateFASTA(t *testing.T) {
	valid := writeFixture(t, "good.fasta", ">RSV_A_01\nACGTACGTACGT\nACGT\n>RSV_A_02\nTTTT\n")
	assert.NoError(t, ValidateFASTA(valid))

	empty := writeFixture(t, "empty.fasta", "")
	assert.Error(t, ValidateFASTA(empty))

	noRecords := writeFixture(t, "plain.fasta", "just text, no header\n")
	assert.Error(t, ValidateFASTA(noRecords))
}

func TestValidateFASTAGzip(t *testing.T) {
	path := writeGzipFixture(t, "good.fasta.gz", ">RSV_A_01\nACGTACGT\n")
	assert.NoError(t, Validate(path))

	// Declared gzip but stored plain.
	fake := writeFixture(t, "fake.fasta.gz", ">RSV_A_01\nACGTACGT\n")
	assert.Error(t, Validate(fake))
}

func TestValidateFASTQ(t *testing.T) {
	valid := writeFixture(t, "good.fastq", "@read1\nACGT\n+\nIIII\n@read2\nGG\n+\nII\n")
	assert.NoError(t, ValidateFASTQ(valid))

	badHeader := writeFixture(t, "header.fastq", "read1\nACGT\n+\nIIII\n")
	assert.ErrorContains(t, ValidateFASTQ(badHeader), "header")

	truncated := writeFixture(t, "short.fastq", "@read1\nACGT\n+\n")
	assert.ErrorContains(t, ValidateFASTQ(truncated), "quality")

	lengthMismatch := writeFixture(t, "len.fastq", "@read1\nACGT\n+\nII\n")
	assert.ErrorContains(t, ValidateFASTQ(lengthMismatch), "quality length")

	empty := writeFixture(t, "empty.fastq", "")
	assert.ErrorContains(t, ValidateFASTQ(empty), "no sequence records")
}

func TestValidateBAM(t *testing.T) {
	valid := writeBAMFixture(t)
	assert.NoError(t, ValidateBAM(valid))

	notBAM := writeFixture(t, "fake.bam", "this is not a bam file")
	assert.ErrorContains(t, ValidateBAM(notBAM), "not a valid BAM")
}

func TestValidateDispatch(t *testing.T) {
	fasta := writeFixture(t, "ok.fasta", ">r\nACGT\n")
	assert.NoError(t, Validate(fasta))

	bw := writeFixture(t, "track.bw", "binarydata")
	assert.NoError(t, Validate(bw))

	emptyBW := writeFixture(t, "empty.bw", "")
	assert.ErrorContains(t, Validate(emptyBW), "empty")

	unknown := writeFixture(t, "notes.txt", "hello")
	assert.ErrorContains(t, Validate(unknown), "unsupported file type")
}
