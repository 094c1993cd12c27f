package commands

import (
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <packages...>",
	Short: "Clean an extracted package",
	Args:  requireNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mustApp(); err != nil {
			return err
		}
		eachName("clean", args, func(name string) (string, error) {
			dir, err := PKG.Repo.Clean(name)
			if err != nil {
				return "", err
			}
			return "cleaned " + dir, nil
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
