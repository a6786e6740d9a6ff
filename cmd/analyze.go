package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nabta-labs/leafscope/internal/config"
	"github.com/nabta-labs/leafscope/internal/history"
	"github.com/nabta-labs/leafscope/internal/models"
	"github.com/nabta-labs/leafscope/internal/pipeline"
	"github.com/nabta-labs/leafscope/internal/remote"
	"github.com/nabta-labs/leafscope/internal/report"
	"github.com/nabta-labs/leafscope/internal/storage"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		configPath string
		pdfPath    string
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyze one leaf photo and print the report as YAML",
		Long: `Runs the full detection, segmentation and classification pipeline on
a single image file and prints the resulting report.

The report can additionally be archived to the analysis history or
exported as a PDF.`,
		Example: `  # Analyze a photo
  leafscope analyze leaf.jpg

  # Analyze, archive to history and export a PDF
  leafscope analyze leaf.jpg --save --pdf report.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if configPath != "" {
				loaded, err := config.LoadFile(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			imageData, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			client := remote.NewClient(cfg.AnalysisAPIURL, cfg.AnalysisAPIKey, cfg.RequestTimeout)
			store := storage.New()
			runner := pipeline.NewRunner(client, store)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			gen := store.Begin("cli", models.NewSession(filepath.Base(args[0])), cancel)

			runner.Run(ctx, "cli", gen, imageData, filepath.Base(args[0]))

			session, ok := store.Snapshot("cli")
			if !ok {
				return fmt.Errorf("analysis produced no session")
			}
			if session.Error != "" {
				return fmt.Errorf("analysis failed: %s", session.Error)
			}

			built := report.Build(&session)

			data, err := yaml.Marshal(built)
			if err != nil {
				return fmt.Errorf("failed to marshal report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			if save {
				archive := history.NewStore(cfg.HistoryPath)
				if err := archive.Append(built); err != nil {
					return fmt.Errorf("failed to archive report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Archived to %s\n", cfg.HistoryPath)
			}

			if pdfPath != "" {
				markdown := reportMarkdown(built)
				pdf, err := report.ExportPDF(markdown, report.PDFOptions{LogoPath: cfg.LogoPath})
				if err != nil {
					return fmt.Errorf("failed to render PDF: %w", err)
				}
				if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
					return fmt.Errorf("failed to write PDF: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "PDF written to %s\n", pdfPath)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Write the report as a PDF to this path")
	cmd.Flags().BoolVar(&save, "save", false, "Archive the report to the analysis history")

	return cmd
}

// reportMarkdown renders a report into the markdown fed to the PDF
// exporter.
func reportMarkdown(built *models.Report) string {
	var b strings.Builder
	b.WriteString("# Plant Analysis Report\n\n")
	fmt.Fprintf(&b, "Leaves detected: **%d**, classified: **%d**.\n\n", built.TotalLeavesDetected, len(built.Leaves))

	for _, leaf := range built.Leaves {
		fmt.Fprintf(&b, "## Leaf %d\n\n", leaf.LeafID)
		fmt.Fprintf(&b, "- Plant: %s\n", leaf.PlantName)
		fmt.Fprintf(&b, "- Disease: %s\n", leaf.DiseaseName)
		fmt.Fprintf(&b, "- Disease coverage: %.2f%% (%s)\n\n", leaf.DiseasePercentage, leaf.Severity)
	}

	if len(built.Leaves) == 0 {
		b.WriteString("No leaf received a classification.\n")
	}
	return b.String()
}
