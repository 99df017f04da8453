package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func publishCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Generate key packages and publish them for others to claim",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			refs, err := appCtx.Packages.GenerateAndPublish(cmd.Context(), passphrase, count)
			if err != nil {
				return err
			}
			fmt.Printf("Published %d key packages\n", len(refs))
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 10, "number of key packages to publish")
	return cmd
}
