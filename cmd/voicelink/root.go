package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "voicelink",
		Short:         "Voice session client: negotiates WebRTC peer sessions through a signaling relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newJoinCmd())
	return root
}
