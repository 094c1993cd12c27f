package commands

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <packages...>",
	Short: "List package contents",
	Args:  requireNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mustApp(); err != nil {
			return err
		}
		ctx := commandContext(cmd)
		eachName("list", args, func(name string) (string, error) {
			pkg, err := PKG.Repo.Fetch(ctx, name)
			if err != nil {
				return "", err
			}
			// List 会消费并关闭句柄
			if err := pkg.List(stdout); err != nil {
				return "", err
			}
			return "succeeded", nil
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
