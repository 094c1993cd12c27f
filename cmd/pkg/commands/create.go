package commands

import (
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <dirs...>",
	Short: "Create a package",
	Long: `Pack each directory into <dir>.tar and write its signature to <dir>.sig.
Paths matched by <dir>/.pkgignore are left out of the archive.`,
	Args: requireNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mustApp(); err != nil {
			return err
		}
		ctx := commandContext(cmd)
		eachName("create", args, func(name string) (string, error) {
			tarFile, err := PKG.Repo.Create(ctx, name)
			if err != nil {
				return "", err
			}
			return "created " + tarFile, nil
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
