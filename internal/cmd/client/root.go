package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the Pulse client.
func NewRoot(baseURL BaseURLFunc, storeDir StoreDirFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "pulse",
		Short: "Pulse client commands",
	}
	Register(root, baseURL, storeDir)
	return root
}

// Register adds every client command to root.
func Register(root *cobra.Command, baseURL BaseURLFunc, storeDir StoreDirFunc) {
	root.AddCommand(NewPublishCommand(baseURL))
	root.AddCommand(NewSubscribeCommand(baseURL))
	root.AddCommand(NewStatusCommand(baseURL))
	root.AddCommand(NewHealthCommand())
	root.AddCommand(NewMemberCommand(storeDir))
	root.AddCommand(NewConfigCommand())
}
