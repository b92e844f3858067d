package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pita/internal/ledger"
	"pita/internal/logger"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the folder layout and the audit log",
	Long: `Create every folder of the layout under PITA_ROOT (or the PITA_*_DIR
overrides) and the audit log with its header. Existing folders and an existing
log are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("init")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	layout := cfg.Layout()

	for _, dir := range layout.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("Failed to create folder")
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		fmt.Printf("📁 %s\n", dir)
	}

	if err := ledger.Init(layout.LogFile()); err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	fmt.Printf("📝 %s\n", layout.LogFile())

	log.Info().Str("root", cfg.RootDir).Msg("Folder layout ready")
	return nil
}
