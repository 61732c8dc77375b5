package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
	"github.com/rsv-seq-eqa/eqa-server/internal/export"
	"github.com/rsv-seq-eqa/eqa-server/internal/report"
	"github.com/rsv-seq-eqa/eqa-server/internal/store"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Bundle every organization's report into a zip archive",
	Example: `  eqactl export --data ./data --distribution RSV_2024_1 --output reports.zip`,
	RunE:    runExport,
}

var (
	exportDistribution string
	exportOutputPath   string
)

func init() {
	exportCmd.Flags().StringVarP(&exportDistribution, "distribution", "d", "", "Distribution name (required)")
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "reports.zip", "Archive path")
	exportCmd.MarkFlagRequired("distribution")
}

func runExport(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	svc := report.NewService(dataDir, store.NullPlatformSource{}, logger)

	// Offline there is no organization table; the lab directories of the
	// distribution are the participant list.
	orgs, err := participantDirs(filepath.Join(dataDir, exportDistribution))
	if err != nil {
		return err
	}
	if len(orgs) == 0 {
		return fmt.Errorf("no participant directories under %s", filepath.Join(dataDir, exportDistribution))
	}

	f, err := os.Create(exportOutputPath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	archiver := export.NewArchiver(svc, logger)
	if err := archiver.WriteArchive(context.Background(), f, exportDistribution, orgs); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d participants)\n", exportOutputPath, len(orgs))
	return nil
}

func participantDirs(distDir string) ([]string, error) {
	entries, err := os.ReadDir(distDir)
	if err != nil {
		return nil, fmt.Errorf("reading distribution directory: %w", err)
	}

	var orgs []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == domain.ReferenceLab {
			continue
		}
		orgs = append(orgs, entry.Name())
	}
	sort.Strings(orgs)
	return orgs, nil
}
