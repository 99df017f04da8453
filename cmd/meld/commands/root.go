package commands

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"meld/internal/app"
	"meld/internal/domain"
)

var (
	home       string
	passphrase string
	appCtx     *app.App

	deliveryURL string
)

func Execute() error {
	root := &cobra.Command{
		Use:   "meld",
		Short: "End-to-end encrypted group messaging CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".meld")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			if passphrase == "" {
				passphrase = os.Getenv("MELD_PASSPHRASE")
			}

			cfg, err := app.LoadConfig(home, deliveryURL)
			if err != nil {
				return err
			}
			w, err := app.NewWire(cfg)
			if err != nil {
				return err
			}
			appCtx = app.New(w.Identities, w.Packages, w.Groups, w.Messages)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.meld)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to protect keys (or MELD_PASSPHRASE)")
	root.PersistentFlags().StringVar(&deliveryURL, "delivery", "", "delivery service base URL (e.g. http://127.0.0.1:8080)")

	root.AddCommand(
		initCmd(), fingerprintCmd(), publishCmd(),
		createGroupCmd(), joinCmd(), groupsCmd(),
		addCmd(), removeCmd(), updateCmd(),
		sendCmd(), recvCmd(),
	)
	return root.Execute()
}

func requirePassphrase() error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required (-p or MELD_PASSPHRASE)")
	}
	return nil
}

// parseGroupID decodes the hex group id commands take as an argument.
func parseGroupID(arg string) (domain.GroupID, error) {
	raw, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid group id %q: %w", arg, err)
	}
	return domain.GroupID(raw), nil
}
