package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
	"github.com/rsv-seq-eqa/eqa-server/internal/notify"
)

// Announcer pushes a completed-upload notice to connected participants.
type Announcer interface {
	Submit(ctx context.Context, msg notify.Message) error
}

// Service validates uploaded artifacts and records the submission. The
// processing pipeline picks accepted files up out of band; this service ends
// at "accepted and recorded".
type Service struct {
	store     domain.SubmissionStore
	announcer Announcer
	log       *logrus.Logger
}

// NewService creates an upload service. The announcer may be nil, in which
// case accepted uploads are recorded silently.
func NewService(store domain.SubmissionStore, announcer Announcer, logger *logrus.Logger) *Service {
	return &Service{store: store, announcer: announcer, log: logger}
}

// Request describes one upload: which lab sent which files for which sample.
type Request struct {
	Organization   string
	Distribution   string
	Sample         string
	SequencingType string
	Paths          []string
}

// Accept validates every file of the request and records the submission.
// Any invalid file rejects the whole upload and nothing is recorded.
func (s *Service) Accept(ctx context.Context, req Request) error {
	if len(req.Paths) == 0 {
		return fmt.Errorf("no files in upload")
	}

	for _, path := range req.Paths {
		if err := Validate(path); err != nil {
			return fmt.Errorf("rejected %s: %w", path, err)
		}
	}

	sub := &domain.Submission{
		Organization:   req.Organization,
		Distribution:   req.Distribution,
		Sample:         req.Sample,
		SequencingType: req.SequencingType,
		SubmittedAt:    time.Now().UTC(),
	}
	if err := s.store.RecordSubmission(ctx, sub); err != nil {
		return fmt.Errorf("recording submission: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"organization": req.Organization,
		"distribution": req.Distribution,
		"sample":       req.Sample,
		"files":        len(req.Paths),
	}).Info("Upload accepted")

	if s.announcer != nil {
		msg := notify.NewMessage(req.Organization,
			fmt.Sprintf("Organization %s uploaded data for sample %s", req.Organization, req.Sample))
		if err := s.announcer.Submit(ctx, msg); err != nil {
			// Delivery failure must not undo an accepted upload.
			s.log.WithError(err).Warn("Failed to announce upload")
		}
	}

	return nil
}
