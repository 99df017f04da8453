package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// send <group> <message>: encrypt and post a message to the group.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <group> <message>",
		Short: "Encrypt and send a message to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			if err := appCtx.Messages.SendMessage(cmd.Context(), passphrase, id, []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
}
