package main

import (
	"os"

	"meld/cmd/meld/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
