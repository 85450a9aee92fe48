package cli

import (
	"fmt"
	"net"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/waabox/quotedeck/internal/config"
	"github.com/waabox/quotedeck/internal/logging"
	"github.com/waabox/quotedeck/internal/sandbox"
)

func newSandboxCmd(e *env) *cobra.Command {
	var (
		addr string
		opts sandbox.Options
	)
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local authorization server and quotes API",
		Long: `Run a local authorization server and quotes API for trying quotedeck
without a real backend. Devices are approved at /device, or automatically
with --auto-approve. State lives in memory and is lost on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := e.cfg.Log.Level
			if level == "" {
				level = "info"
			}
			log, err := logging.New(logging.Options{Level: level, Output: e.stderr})
			if err != nil {
				return err
			}
			defer log.Close()
			opts.Logger = log

			srv := sandbox.New(opts)
			return srv.ListenAndServe(cmd.Context(), addr, func(a net.Addr) {
				base := "http://" + a.String()
				e.say(text.FgGreen, "Sandbox listening on %s", base)
				fmt.Fprintf(e.stdout, "export QUOTEDECK_AUTH_URL=%s\n", base)
				fmt.Fprintf(e.stdout, "export QUOTEDECK_API_URL=%s%s\n", base, sandbox.APIPrefix)
				fmt.Fprintf(e.stdout, "export QUOTEDECK_CLIENT_ID=%s\n", opts.ClientID)
				if opts.ClientSecret != "" {
					fmt.Fprintf(e.stdout, "export QUOTEDECK_CLIENT_SECRET=%s\n", opts.ClientSecret)
				}
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "127.0.0.1:8085", "listen address")
	flags.StringVar(&opts.ClientID, "client-id", config.DefaultClientID, "accepted client id")
	flags.StringVar(&opts.ClientSecret, "client-secret", "sandbox-secret", "required client secret; empty accepts public clients")
	flags.BoolVar(&opts.AutoApprove, "auto-approve", false, "approve every device without visiting /device")
	flags.IntVar(&opts.PendingPolls, "pending-polls", 1, "authorization_pending answers before auto-approval")
	flags.BoolVar(&opts.EnforceInterval, "enforce-interval", false, "answer slow_down to polls that come too fast")
	flags.DurationVar(&opts.TokenTTL, "token-ttl", time.Hour, "access token lifetime")
	flags.DurationVar(&opts.Interval, "interval", 5*time.Second, "polling interval announced to devices")
	return cmd
}
