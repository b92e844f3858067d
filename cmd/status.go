package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pita/internal/ledger"
	"pita/internal/logger"
	"pita/internal/packet"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the packets waiting in the intake and their retry state",
	Long: `Group the intake folder the way the next run will and show, for every
packet, its pages, failed attempts and the stage it resumes at. With --all the
audit log history of every known packet is listed as well.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Bool("all", false, "Also list every packet recorded in the audit log")
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("status")

	all, _ := cmd.Flags().GetBool("all")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	layout := cfg.Layout()

	led, err := ledger.Load(layout.LogFile())
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	files, err := packet.Discover(layout.Inbox)
	if err != nil {
		return err
	}
	manifests, err := ledger.LoadManifests(layout.OCR)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read manifests")
	}
	grouping := packet.Group(files, packet.GroupOptions{
		RunStart: time.Now(),
		Assigned: ledger.FallbackAssignments(manifests),
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAQUETE\tPÁGINAS\tINTENTOS\tREANUDA\tÚLTIMO ERROR")
	for _, p := range grouping.Packets {
		lastErr := "-"
		if e, ok := led.LastError(p.ID); ok {
			lastErr = fmt.Sprintf("%s: %s", e.Stage, e.Message)
		}
		fmt.Fprintf(w, "%s\t%d\t%d/%d\t%s\t%s\n",
			p.ID, len(p.Pages), led.Attempts(p.ID), cfg.MaxErrors+1, led.ResumeStage(p.ID), lastErr)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, a := range grouping.Anomalies {
		fmt.Printf("⚠️  %v\n", a)
	}
	if len(grouping.Packets) == 0 {
		fmt.Println("No packets in the intake folder.")
	}

	if !all {
		return nil
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAQUETE\tESTADO\tINTENTOS\tACTUALIZADO")
	for _, s := range led.Summary() {
		state := "pendiente"
		switch {
		case s.Completed:
			state = "completo"
		case s.Moved:
			state = "error"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Packet, state, s.Attempts, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
