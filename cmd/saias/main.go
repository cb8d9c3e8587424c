// saias is the command-line client for the SAIAS chat system. It drives
// the same conversation store the browser UI uses, against a persistence
// backend and a local transcript cache.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chatcmder "github.com/saiaslabs/saias/cmd/saias/chat"
	modelscmder "github.com/saiaslabs/saias/cmd/saias/models"
)

func main() {
	root := &cobra.Command{
		Use:           "saias",
		Short:         "Chat with SAIAS from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(chatcmder.NewChatCmd())
	root.AddCommand(modelscmder.NewModelsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
