package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"meld/internal/domain"
)

// add <group> <user>: claim one of <user>'s key packages and commit them in.
func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <group> <user>",
		Short: "Add a user to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			update, err := appCtx.Groups.AddMember(cmd.Context(), passphrase, id, domain.Username(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("Added %s. Group is now at epoch %d\n", args[1], update.Epoch)
			return nil
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <group> <user>",
		Short: "Remove a user from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			update, err := appCtx.Groups.RemoveMember(cmd.Context(), passphrase, id, domain.Username(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("Removed %s. Group is now at epoch %d\n", args[1], update.Epoch)
			return nil
		},
	}
}

// update <group>: rotate our leaf and path keys with an empty commit.
func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <group>",
		Short: "Rotate your keys in a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			id, err := parseGroupID(args[0])
			if err != nil {
				return err
			}
			update, err := appCtx.Groups.UpdateSelf(cmd.Context(), passphrase, id)
			if err != nil {
				return err
			}
			fmt.Printf("Keys rotated. Group is now at epoch %d\n", update.Epoch)
			return nil
		},
	}
}
