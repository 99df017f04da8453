package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func createGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-group",
		Short: "Create a new group with yourself as the only member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			id, err := appCtx.Groups.CreateGroup(cmd.Context(), passphrase)
			if err != nil {
				return err
			}
			fmt.Printf("Group created: %x\n", id)
			return nil
		},
	}
}

// join: fetch queued welcomes and join every group they admit us to.
func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Join groups you were welcomed into",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			joined, err := appCtx.Groups.JoinFromWelcomes(cmd.Context(), passphrase)
			if err != nil {
				return err
			}
			if len(joined) == 0 {
				fmt.Println("No pending welcomes")
				return nil
			}
			for _, id := range joined {
				fmt.Printf("Joined group %x\n", id)
			}
			return nil
		},
	}
}

func groupsCmd() *cobra.Command {
	var roster string
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List your groups, or a group's roster with --roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roster != "" {
				if err := requirePassphrase(); err != nil {
					return err
				}
				id, err := parseGroupID(roster)
				if err != nil {
					return err
				}
				members, err := appCtx.Groups.Roster(passphrase, id)
				if err != nil {
					return err
				}
				for _, m := range members {
					fmt.Printf("%4d  %s\n", m.Index, m.Identity)
				}
				return nil
			}

			ids, err := appCtx.Groups.ListGroups()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Printf("%x\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&roster, "roster", "", "print the roster of the given group id")
	return cmd
}
