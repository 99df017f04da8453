package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"meld/internal/domain"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <username>",
		Short: "Generate identity keys and store them securely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			_, fp, err := appCtx.IDs.GenerateIdentity(passphrase, domain.Username(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("Identity created for %s.\nFingerprint: %s\n", args[0], fp)
			return nil
		},
	}
}
