package commands

import (
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <packages...>",
	Short: "Extract a package into the cache directory",
	Args:  requireNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mustApp(); err != nil {
			return err
		}
		ctx := commandContext(cmd)
		eachName("extract", args, func(name string) (string, error) {
			dir, err := PKG.Repo.Extract(ctx, name)
			if err != nil {
				return "", err
			}
			return "extracted to " + dir, nil
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
