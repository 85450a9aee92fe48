package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/waabox/quotedeck/internal/domain"
)

func newOrgsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "orgs",
		Aliases: []string{"organizations"},
		Short:   "List your organizations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application()
			if err != nil {
				return err
			}
			p, err := e.printer()
			if err != nil {
				return err
			}
			orgs, err := a.Quotes.ListOrganizations(cmd.Context())
			if err != nil {
				return err
			}
			return p.Organizations(orgs)
		},
	}
}

func newQuotesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quotes",
		Short: "List, show, create and delete quotes",
	}
	cmd.AddCommand(
		newQuotesListCmd(e),
		newQuotesGetCmd(e),
		newQuotesCreateCmd(e),
		newQuotesDeleteCmd(e),
	)
	return cmd
}

func newQuotesListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list ORG_ID",
		Short: "List the quotes of an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application()
			if err != nil {
				return err
			}
			p, err := e.printer()
			if err != nil {
				return err
			}
			quotes, err := a.Quotes.ListQuotes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.Quotes(quotes)
		},
	}
}

func newQuotesGetCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "get QUOTE_ID",
		Short: "Show one quote with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application()
			if err != nil {
				return err
			}
			p, err := e.printer()
			if err != nil {
				return err
			}
			q, err := a.Quotes.GetQuote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.Quote(q)
		},
	}
}

func newQuotesCreateCmd(e *env) *cobra.Command {
	var (
		file       string
		draft      domain.QuoteDraft
		lines      []string
		validUntil string
	)
	cmd := &cobra.Command{
		Use:   "create ORG_ID",
		Short: "Create a draft quote",
		Long: `Create a draft quote from flags or from a YAML file.

  quotedeck quotes create org-acme --title "Audit" --customer Initech \
    --currency USD --line "Audit days:4:1100"

  quotedeck quotes create org-acme --file quote.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				fromFile, err := readDraft(file)
				if err != nil {
					return err
				}
				draft = fromFile
			}
			for _, raw := range lines {
				line, err := parseLine(raw)
				if err != nil {
					return err
				}
				draft.Lines = append(draft.Lines, line)
			}
			if validUntil != "" {
				t, err := time.Parse("2006-01-02", validUntil)
				if err != nil {
					return fmt.Errorf("--valid-until: %w", err)
				}
				draft.ValidUntil = t
			}
			draft.Currency = strings.ToUpper(draft.Currency)
			if err := draft.Validate(); err != nil {
				return fmt.Errorf("invalid quote: %w", err)
			}

			a, err := e.application()
			if err != nil {
				return err
			}
			p, err := e.printer()
			if err != nil {
				return err
			}
			q, err := a.Quotes.CreateQuote(cmd.Context(), args[0], draft)
			if err != nil {
				return err
			}
			e.say(text.FgGreen, "Created quote %s.", q.ID)
			return p.Quote(q)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "YAML file holding the quote")
	flags.StringVar(&draft.Title, "title", "", "quote title")
	flags.StringVar(&draft.Customer, "customer", "", "customer name")
	flags.StringVar(&draft.Currency, "currency", "", "3-letter ISO currency code")
	flags.StringArrayVar(&lines, "line", nil, `line as "description:quantity:unit price" (repeatable)`)
	flags.StringVar(&validUntil, "valid-until", "", "expiry date, YYYY-MM-DD")
	return cmd
}

func newQuotesDeleteCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete QUOTE_ID",
		Short: "Delete a quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Fprintf(e.stderr, "Delete quote %s? [y/N] ", args[0])
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					e.say(text.FgYellow, "Aborted.")
					return nil
				}
			}
			a, err := e.application()
			if err != nil {
				return err
			}
			if err := a.Quotes.DeleteQuote(cmd.Context(), args[0]); err != nil {
				return err
			}
			e.say(text.FgGreen, "Deleted quote %s.", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func readDraft(path string) (domain.QuoteDraft, error) {
	var d domain.QuoteDraft
	// #nosec G304 -- the path is given by the user on the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parsing %s: %w", path, err)
	}
	return d, nil
}

// parseLine reads "description:quantity:unit price". The description may contain colons.
func parseLine(raw string) (domain.QuoteLine, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return domain.QuoteLine{}, fmt.Errorf("--line %q: want description:quantity:unit price", raw)
	}
	n := len(parts)
	qty, err := strconv.ParseFloat(strings.TrimSpace(parts[n-2]), 64)
	if err != nil {
		return domain.QuoteLine{}, fmt.Errorf("--line %q: quantity: %w", raw, err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parts[n-1]), 64)
	if err != nil {
		return domain.QuoteLine{}, fmt.Errorf("--line %q: unit price: %w", raw, err)
	}
	return domain.QuoteLine{
		Description: strings.TrimSpace(strings.Join(parts[:n-2], ":")),
		Quantity:    qty,
		UnitPrice:   price,
	}, nil
}
