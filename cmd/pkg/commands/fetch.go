package commands

import (
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <packages...>",
	Short: "Download and verify a package",
	Args:  requireNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mustApp(); err != nil {
			return err
		}
		ctx := commandContext(cmd)
		eachName("fetch", args, func(name string) (string, error) {
			pkg, err := PKG.Repo.Fetch(ctx, name)
			if err != nil {
				return "", err
			}
			defer pkg.Close()
			return "fetched " + pkg.Path(), nil
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
