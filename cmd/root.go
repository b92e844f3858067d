package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pita/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "pita",
	Short: "PITA - loan-quote packet verification",
	Long: `PITA turns scanned loan-quote submissions into validated JSON and text records.

Pages dropped into the intake folder are grouped into packets, merged, made
searchable with OCR, classified, extracted, checked for signatures and
validated. Every stage is recorded in the audit log so failed packets resume
where they stopped on the next run.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("PITA CLI executed")

		fmt.Println("Welcome to PITA!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
