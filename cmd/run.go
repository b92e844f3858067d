package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pita/internal/logger"
	"pita/internal/summary"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every packet waiting in the intake folder",
	Long: `Group the intake pages into packets and run each packet through merge, OCR,
analysis, result writing and archiving.

Failed packets stay in the intake folder and resume at the failed stage on the
next run. A packet that fails more than MAX_ERRORES times is moved to the error
folder. Packets whose results already exist are ignored.

Environment variables:
  PITA_ROOT            - Root of the folder layout (default: BotPITA)
  OCR_ENGINE           - ocrmypdf, vision, documentai or textlayer (default: ocrmypdf)
  MAX_ERRORES          - Failed attempts tolerated per packet (default: 2)
  WORKERS              - Packets processed in parallel (default: 1)
  GCS_ARCHIVE_BUCKET   - Archive searchable PDFs to Cloud Storage instead of Historial_OCR
  SUMMARY_XLSX         - Append the run summary to this workbook
  GOOGLE_SHEET_URL     - Append the run summary to this Google Sheet`,
	Example: `  # Process the intake once
  pita run

  # Stop scheduling new packets after ten minutes
  pita run --timeout 10m`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Duration("timeout", 0, "Stop scheduling new packets after this duration (0: no limit)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("run")

	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(timeout, log)
	defer cancel()

	p, cleanup, err := createPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info().
		Str("root", cfg.RootDir).
		Str("engine", cfg.OCREngine).
		Int("workers", cfg.Workers).
		Int("max_errors", cfg.MaxErrors).
		Msg("Starting packet processing")

	run, err := p.Run(ctx)
	if run != nil {
		printRun(run)
	}
	if err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("Processing interrupted, remaining packets left for the next run")
			return nil
		}
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

func printRun(run *summary.Run) {
	rows := run.Rows()
	if len(rows) == 0 {
		fmt.Println("No packets in the intake folder.")
		return
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Run %s\n", run.ID)
	fmt.Println(strings.Repeat("=", 60))
	for _, row := range rows {
		fmt.Printf("%s %-30s", outcomeEmoji(row.Outcome), row.Packet)
		switch row.Outcome {
		case summary.OutcomeOK:
			fmt.Printf(" %s (%d alertas)", row.Status, row.Alerts)
		case summary.OutcomeError, summary.OutcomeLimit:
			fmt.Printf(" %s: %s", row.Stage, row.Message)
		}
		fmt.Println()
	}
	fmt.Println(strings.Repeat("-", 60))
	fmt.Println(run.Counts())
}

func outcomeEmoji(o summary.Outcome) string {
	switch o {
	case summary.OutcomeOK:
		return "✅"
	case summary.OutcomeIgnored:
		return "⏭️"
	case summary.OutcomeLimit:
		return "⛔"
	default:
		return "❌"
	}
}
