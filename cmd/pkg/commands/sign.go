package commands

import (
	"github.com/spf13/cobra"
)

var signCmd = &cobra.Command{
	Use:   "sign <files...>",
	Short: "Print the signature of a file",
	Args:  requireNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mustApp(); err != nil {
			return err
		}
		ctx := commandContext(cmd)
		eachName("sign", args, func(file string) (string, error) {
			sig, err := PKG.Repo.Signature(ctx, file)
			if err != nil {
				return "", err
			}
			return sig.String(), nil
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
}
