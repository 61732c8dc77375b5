package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
	"github.com/rsv-seq-eqa/eqa-server/internal/export"
	"github.com/rsv-seq-eqa/eqa-server/internal/report"
	"github.com/rsv-seq-eqa/eqa-server/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute one organization's report for a distribution",
	Example: `  eqactl report --data ./data --distribution RSV_2024_1 --organization 1234
  eqactl report --distribution RSV_2024_1 --organization admin --superuser --raw`,
	RunE: runReport,
}

var (
	reportDistribution string
	reportOrganization string
	reportSuperuser    bool
	reportRaw          bool
	reportOutput       string
)

func init() {
	reportCmd.Flags().StringVarP(&reportDistribution, "distribution", "d", "", "Distribution name (required)")
	reportCmd.Flags().StringVarP(&reportOrganization, "organization", "o", "", "Requesting organization (required)")
	reportCmd.Flags().BoolVar(&reportSuperuser, "superuser", false, "Compute the unfiltered superuser view")
	reportCmd.Flags().BoolVar(&reportRaw, "raw", false, "Emit the raw computed report instead of the document layout")
	reportCmd.Flags().StringVar(&reportOutput, "output", "", "Write to file instead of stdout")
	reportCmd.MarkFlagRequired("distribution")
	reportCmd.MarkFlagRequired("organization")
}

func runReport(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	svc := report.NewService(dataDir, store.NullPlatformSource{}, logger)

	role := domain.RoleUser
	if reportSuperuser {
		role = domain.RoleSuperuser
	}

	rep, err := svc.DistributionReport(context.Background(), reportDistribution, domain.ParticipantContext{
		Organization: reportOrganization,
		Role:         role,
	})
	if err != nil {
		return fmt.Errorf("computing report: %w", err)
	}

	out := os.Stdout
	if reportOutput != "" {
		f, err := os.Create(reportOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if reportRaw {
		return encoder.Encode(rep)
	}
	return encoder.Encode(export.Render(rep))
}
