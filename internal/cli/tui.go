package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/waabox/quotedeck/internal/tokenstore"
	"github.com/waabox/quotedeck/internal/tui"
)

func newTUICmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse organizations and quotes interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// A login from another terminal replaces the token file; drop cached
			// lists so the next load is made with the new identity.
			if err := a.Store.Watch(ctx, func(tokenstore.TokenState) { a.Client.Invalidate() }); err != nil {
				a.Log.WithError(err).Warn("token file changes will not be picked up")
			}
			return tui.Run(ctx, a.Quotes, a.Core)
		},
	}
}
