package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade all installed packages",
	Long: `Compare installed package versions against the remote repo.toml,
show the upgrade plan and, after confirmation, download and install every upgrade.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mustApp(); err != nil {
			return err
		}
		if err := PKG.Planner.Run(commandContext(cmd)); err != nil {
			fmt.Fprintf(stderr, "pkg: upgrade: failed: %v\n", err)
			return nil
		}
		fmt.Fprintln(stderr, "pkg: upgrade: succeeded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(upgradeCmd)
}
