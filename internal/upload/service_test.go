package upload

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
	"github.com/rsv-seq-eqa/eqa-server/internal/notify"
)

type fakeSubmissionStore struct {
	recorded []domain.Submission
	err      error
}

func (f *fakeSubmissionStore) RecordSubmission(ctx context.Context, sub *domain.Submission) error {
	if f.err != nil {
		return f.err
	}
	sub.ID = int64(len(f.recorded) + 1)
	f.recorded = append(f.recorded, *sub)
	return nil
}

func (f *fakeSubmissionStore) ListSubmissions(ctx context.Context, distribution string) ([]domain.Submission, error) {
	return f.recorded, nil
}

type fakeAnnouncer struct {
	messages []notify.Message
	err      error
}

func (f *fakeAnnouncer) Submit(ctx context.Context, msg notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestAcceptRecordsAndAnnounces(t *testing.T) {
	store := &fakeSubmissionStore{}
	announcer := &fakeAnnouncer{}
	svc := NewService(store, announcer, quietLogger())

	fasta := writeFixture(t, "1234_RSV_A_01.fasta", ">RSV_A_01\nACGTACGT\n")
	bam := writeBAMFixture(t)

	err := svc.Accept(context.Background(), Request{
		Organization:   "1234",
		Distribution:   "RSV_2024_1",
		Sample:         "RSV_A_01",
		SequencingType: "Illumina",
		Paths:          []string{fasta, bam},
	})
	require.NoError(t, err)

	require.Len(t, store.recorded, 1)
	assert.Equal(t, "1234", store.recorded[0].Organization)
	assert.Equal(t, "Illumina", store.recorded[0].SequencingType)
	assert.False(t, store.recorded[0].SubmittedAt.IsZero())

	require.Len(t, announcer.messages, 1)
	assert.Equal(t, "1234", announcer.messages[0].Sender)
	assert.Contains(t, announcer.messages[0].Text, "RSV_A_01")
}

func TestAcceptRejectsInvalidFile(t *testing.T) {
	store := &fakeSubmissionStore{}
	svc := NewService(store, nil, quietLogger())

	fasta := writeFixture(t, "ok.fasta", ">r\nACGT\n")
	bad := writeFixture(t, "fake.bam", "not a bam")

	err := svc.Accept(context.Background(), Request{
		Organization: "1234",
		Distribution: "D1",
		Sample:       "S1",
		Paths:        []string{fasta, bad},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Empty(t, store.recorded, "a rejected upload must not be recorded")
}

func TestAcceptRequiresFiles(t *testing.T) {
	svc := NewService(&fakeSubmissionStore{}, nil, quietLogger())
	err := svc.Accept(context.Background(), Request{Organization: "1234"})
	assert.ErrorContains(t, err, "no files")
}

func TestAcceptStoreFailure(t *testing.T) {
	store := &fakeSubmissionStore{err: errors.New("database is locked")}
	svc := NewService(store, nil, quietLogger())

	fasta := writeFixture(t, "ok.fasta", ">r\nACGT\n")
	err := svc.Accept(context.Background(), Request{
		Organization: "1234",
		Distribution: "D1",
		Sample:       "S1",
		Paths:        []string{fasta},
	})
	assert.ErrorContains(t, err, "recording submission")
}

func TestAcceptToleratesAnnounceFailure(t *testing.T) {
	store := &fakeSubmissionStore{}
	announcer := &fakeAnnouncer{err: errors.New("redis down")}
	svc := NewService(store, announcer, quietLogger())

	fasta := writeFixture(t, "ok.fasta", ">r\nACGT\n")
	err := svc.Accept(context.Background(), Request{
		Organization: "1234",
		Distribution: "D1",
		Sample:       "S1",
		Paths:        []string{fasta},
	})
	require.NoError(t, err, "announce failure must not undo an accepted upload")
	assert.Len(t, store.recorded, 1)
}
