package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/songlift/songlift/pkg/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the progress ledger",
	Long: `Show the progress ledger: one row per recorded item with its
reconciliation state.

Example:
  songlift ledger
  songlift ledger --json`,
	RunE: runLedger,
}

var ledgerJSON bool

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.Flags().BoolVar(&ledgerJSON, "json", false, "Dump the raw ledger as JSON")
}

func runLedger(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open ledger", err)
	}
	snap := led.Snapshot()

	if ledgerJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Title", "Album", "Uploaded", "Cover"})
	for i, e := range snap.Songs {
		t.AppendRow(table.Row{i, e.Title, e.Album, yesNo(e.FileURL != nil), yesNo(e.CoverURL != nil)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d entries", len(snap.Songs)), "", fmt.Sprintf("resume index %d", snap.LastIndex), ""})
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
