package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// recv <group>: sync the group and print decrypted messages.
func recvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recv <group>",
		Short: "Fetch and decrypt a group's queued messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			msgs, err := appCtx.Messages.ReceiveMessages(cmd.Context(), passphrase, id)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s\n", m.From, string(m.Plaintext))
			}
			return nil
		},
	}
}
