package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// Reporter computes a role-projected report. Satisfied by report.Service.
type Reporter interface {
	DistributionReport(ctx context.Context, distribution string, requester domain.ParticipantContext) (domain.DistributionReport, error)
}

// Archiver bundles one rendered report per organization into a zip so the
// coordinator can download a whole distribution at once.
type Archiver struct {
	reporter Reporter
	log      *logrus.Logger
}

// NewArchiver creates an archiver over the given report source.
func NewArchiver(reporter Reporter, logger *logrus.Logger) *Archiver {
	return &Archiver{reporter: reporter, log: logger}
}

// WriteReport renders one organization's report as JSON to w.
func (a *Archiver) WriteReport(ctx context.Context, w io.Writer, distribution, organization string) error {
	report, err := a.reporter.DistributionReport(ctx, distribution, domain.ParticipantContext{
		Organization: organization,
		Role:         domain.RoleUser,
	})
	if err != nil {
		return fmt.Errorf("computing report for %s: %w", organization, err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(Render(report)); err != nil {
		return fmt.Errorf("encoding report for %s: %w", organization, err)
	}
	return nil
}

// WriteArchive writes a zip with one report file per organization. An
// organization whose report cannot be computed (no scoreable submission,
// for instance) is skipped with a log entry rather than failing the bundle.
func (a *Archiver) WriteArchive(ctx context.Context, w io.Writer, distribution string, organizations []string) error {
	archive := zip.NewWriter(w)

	written := 0
	for _, org := range organizations {
		if org == domain.ReferenceLab {
			continue
		}

		report, err := a.reporter.DistributionReport(ctx, distribution, domain.ParticipantContext{
			Organization: org,
			Role:         domain.RoleUser,
		})
		if err != nil {
			a.log.WithError(err).WithFields(logrus.Fields{
				"distribution": distribution,
				"organization": org,
			}).Warn("Skipping organization in report bundle")
			continue
		}
		if len(report.Samples) == 0 {
			a.log.WithFields(logrus.Fields{
				"distribution": distribution,
				"organization": org,
			}).Debug("Organization has no reportable samples, skipping")
			continue
		}

		entry, err := archive.Create(fmt.Sprintf("%s_%s_report.json", org, distribution))
		if err != nil {
			return fmt.Errorf("creating archive entry for %s: %w", org, err)
		}
		encoder := json.NewEncoder(entry)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(Render(report)); err != nil {
			return fmt.Errorf("encoding report for %s: %w", org, err)
		}
		written++
	}

	if err := archive.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"distribution": distribution,
		"reports":      written,
	}).Info("Report bundle written")
	return nil
}
