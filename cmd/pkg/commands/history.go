package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [package]",
	Short: "Show install history from the ledger",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mustApp(); err != nil {
			return err
		}
		if PKG.Ledger == nil {
			return fmt.Errorf("install ledger is disabled")
		}

		var name string
		if len(args) > 0 {
			name = args[0]
		}

		records, err := PKG.Ledger.History(commandContext(cmd), name, historyLimit)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		if len(records) == 0 {
			fmt.Fprintln(stdout, "No installs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INSTALLED\tPACKAGE\tVERSION\tSOURCE\tFILES\tSIGNATURE")
		for _, rec := range records {
			files, err := rec.FileList()
			if err != nil {
				return fmt.Errorf("corrupt record %s: %w", rec.ID, err)
			}
			version := rec.Version
			if version == "" {
				version = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				rec.InstalledAt.Local().Format(time.DateTime),
				rec.Package,
				version,
				rec.Source,
				len(files),
				shortSig(rec.Signature),
			)
		}
		return w.Flush()
	},
}

func shortSig(sig string) string {
	if len(sig) > 16 {
		return sig[:16]
	}
	return sig
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of records (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
