// Package cli implements the quotedeck command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/waabox/quotedeck/internal/app"
	"github.com/waabox/quotedeck/internal/auth"
	"github.com/waabox/quotedeck/internal/config"
	"github.com/waabox/quotedeck/internal/domain"
	"github.com/waabox/quotedeck/internal/output"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeAuthRequired = 2
	ExitCodeAuthFailed   = 3
	ExitCodeConfigError  = 4
)

// AuthFailedError is returned when a device authorization ends without tokens.
type AuthFailedError struct {
	State   auth.State
	Message string
	Err     error
}

func (e *AuthFailedError) Error() string {
	return "sign-in failed: " + e.Message
}

func (e *AuthFailedError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var cfgErr *auth.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfigError
	}
	var failed *AuthFailedError
	if errors.As(err, &failed) {
		return ExitCodeAuthFailed
	}
	var expired *domain.AuthExpiredError
	if errors.As(err, &expired) || errors.Is(err, auth.ErrAuthRequired) {
		return ExitCodeAuthRequired
	}
	return ExitCodeError
}

// env is shared by every command of one invocation.
type env struct {
	stdout  io.Writer
	stderr  io.Writer
	appOpts []app.Option

	configPath string
	envFile    string
	output     string
	template   string
	noColor    bool

	cfg config.Config
	app *app.App
}

// Option customizes the command tree. Used by tests.
type Option func(*env)

// WithOutput redirects command output.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *env) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithAppOptions passes options to app.New.
func WithAppOptions(opts ...app.Option) Option {
	return func(e *env) { e.appOpts = append(e.appOpts, opts...) }
}

// NewRootCommand builds the quotedeck command tree.
func NewRootCommand(version string, opts ...Option) *cobra.Command {
	root, _ := newRoot(version, opts...)
	return root
}

func newRoot(version string, opts ...Option) (*cobra.Command, *env) {
	e := &env{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(e)
	}

	root := &cobra.Command{
		Use:   "quotedeck",
		Short: "Manage quotes from the terminal",
		Long: `quotedeck signs in with the OAuth2 device flow and manages the quotes
of your organizations through the quotes API.

Run "quotedeck login" first, then "quotedeck orgs" or "quotedeck tui".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return e.close()
		},
	}
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)
	root.SetVersionTemplate(`{{printf "quotedeck version %s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&e.configPath, "config", config.DefaultConfigPath(), "path to the config file")
	flags.StringVar(&e.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVarP(&e.output, "output", "o", "table", "output format: table, json, yaml or template")
	flags.StringVar(&e.template, "template", "", "Go template used with -o template (sprig functions available)")
	flags.BoolVar(&e.noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colours")

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newStatusCmd(e),
		newTokenCmd(e),
		newOrgsCmd(e),
		newQuotesCmd(e),
		newTUICmd(e),
		newSandboxCmd(e),
		newConfigCmd(e),
	)
	return root, e
}

// Execute runs the command tree and returns the exit code.
func Execute(ctx context.Context, version string, args []string, opts ...Option) int {
	root, e := newRoot(version, opts...)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if closeErr := e.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), colorize(!noColorFromFlags(root), text.FgRed, "Error: "+err.Error()))
	}
	return ExitCode(err)
}

func noColorFromFlags(root *cobra.Command) bool {
	v, _ := root.PersistentFlags().GetBool("no-color")
	return v
}

func (e *env) load() error {
	if err := config.LoadDotEnv(e.envFile); err != nil {
		return &auth.ConfigurationError{Field: "env-file", Reason: err.Error()}
	}
	cfg, err := config.LoadFrom(e.configPath)
	if err != nil {
		return &auth.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	e.cfg = cfg
	return nil
}

// application builds the App on first use so that commands which never talk
// to a server do not need a complete configuration.
func (e *env) application() (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	a, err := app.New(e.cfg, e.appOpts...)
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

func (e *env) close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.app = nil
	return err
}

func (e *env) printer() (*output.Printer, error) {
	format, err := output.ParseFormat(e.output)
	if err != nil {
		return nil, err
	}
	return output.New(e.stdout, format, e.template, !e.noColor)
}

// say prints a human message to stderr so stdout stays machine readable.
func (e *env) say(c text.Color, format string, args ...interface{}) {
	fmt.Fprintln(e.stderr, colorize(!e.noColor, c, fmt.Sprintf(format, args...)))
}

func colorize(on bool, c text.Color, s string) string {
	if !on {
		return s
	}
	return c.Sprint(s)
}
