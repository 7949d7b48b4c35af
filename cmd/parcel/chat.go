package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Veraticus/parcel/internal/cli"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Long: `Describe changes in plain words and confirm, edit or reject each
proposal before it is applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			session, _ := cmd.Flags().GetString("session")
			if session == "" {
				session = "cli-" + uuid.NewString()[:8]
			}

			interrupts := cli.NewInterruptHandler(os.Stdout)
			ctx := interrupts.HandleInterrupts(cmd.Context(), false)

			chat := cli.NewChat(a.pipeline, os.Stdin, os.Stdout, session)
			chat.OnPendingChange(interrupts.SetShowPending)
			return chat.Run(ctx)
		},
	}

	cmd.Flags().String("session", "", "session ID (default: random)")

	return cmd
}
