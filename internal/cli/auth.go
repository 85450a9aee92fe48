package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/waabox/quotedeck/internal/auth"
	"github.com/waabox/quotedeck/internal/output"
)

func newLoginCmd(e *env) *cobra.Command {
	var (
		scopes    []string
		noSpinner bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the device authorization flow",
		Long: `Sign in with the OAuth2 device authorization flow.

quotedeck prints a URL and a short code. Open the URL on any device, enter
the code and approve the request; quotedeck stores the tokens once the
authorization server confirms.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			done := make(chan auth.Completion, 1)
			prompt, err := a.Core.BeginDeviceAuthentication(ctx, scopes, func(c auth.Completion) {
				done <- c
			})
			if err != nil {
				var cfgErr *auth.ConfigurationError
				if errors.As(err, &cfgErr) {
					return err
				}
				return &AuthFailedError{Message: err.Error(), Err: err}
			}

			fmt.Fprintf(e.stderr, "\nOpen %s\nand enter the code: %s\n",
				colorize(!e.noColor, text.FgHiCyan, prompt.VerificationURI),
				colorize(!e.noColor, text.Bold, prompt.UserCode))
			if !prompt.ExpiresAt.IsZero() {
				fmt.Fprintf(e.stderr, "The code expires at %s.\n", prompt.ExpiresAt.Local().Format(time.Kitchen))
			}
			fmt.Fprintln(e.stderr)

			var s *spinner.Spinner
			if !noSpinner {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(e.stderr))
				s.Suffix = " Waiting for approval..."
				s.Start()
			}

			var c auth.Completion
			select {
			case c = <-done:
			case <-ctx.Done():
				a.Core.CancelAuthentication()
				c = <-done
			}
			if s != nil {
				s.Stop()
			}

			if !c.Success {
				return &AuthFailedError{State: c.State, Message: c.Message, Err: c.Err}
			}
			who := ""
			if id, err := a.Core.Identity(); err == nil {
				who = id.Name
				if who == "" {
					who = id.Subject
				}
			}
			if who != "" {
				e.say(text.FgGreen, "Signed in as %s.", who)
			} else {
				e.say(text.FgGreen, "Signed in.")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scopes to request (defaults to auth.scopes from the config)")
	cmd.Flags().BoolVar(&noSpinner, "no-spinner", false, "do not animate while waiting")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application()
			if err != nil {
				return err
			}
			if err := a.Core.Logout(); err != nil {
				return err
			}
			e.say(text.FgGreen, "Signed out.")
			return nil
		},
	}
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application()
			if err != nil {
				return err
			}
			p, err := e.printer()
			if err != nil {
				return err
			}

			st := a.Core.Status()
			status := output.Status{
				SignedIn:        !st.Empty(),
				AccessTokenLive: st.Valid(time.Now()),
				Expiry:          st.Expiry,
				HasRefreshToken: st.HasRefreshToken(),
				TokenFile:       a.Store.Path(),
			}
			if status.AccessTokenLive {
				id, err := a.Core.Identity()
				switch {
				case err == nil:
					status.Subject = id.Subject
					status.Name = id.Name
					status.Email = id.Email
				case !errors.Is(err, auth.ErrOpaqueToken):
					return err
				}
			}
			return p.Status(status)
		},
	}
}

func newTokenCmd(e *env) *cobra.Command {
	var noRefresh bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the current access token",
		Long: `Print the current access token for use in scripts, e.g.

  curl -H "Authorization: Bearer $(quotedeck token)" ...

An expired token is refreshed first unless --no-refresh is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application()
			if err != nil {
				return err
			}
			var token string
			if noRefresh {
				token = a.Core.GetAccessToken()
				if token == "" {
					return &auth.AuthenticationRequiredError{Reason: "no valid access token"}
				}
			} else {
				t, err := a.Core.Transport().Token()
				if err != nil {
					return err
				}
				token = t.AccessToken
			}
			fmt.Fprintln(e.stdout, token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "never refresh; fail when the access token has expired")
	return cmd
}
