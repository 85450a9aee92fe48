// Package output renders command results as tables, JSON, YAML or Go templates.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/waabox/quotedeck/internal/domain"
)

// Format selects how results are printed.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatTemplate Format = "template"
)

// Formats lists the accepted --output values.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML, FormatTemplate}

// ParseFormat validates a --output value. Empty means table.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatTable, nil
	}
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want one of table, json, yaml, template)", s)
}

// Status describes the signed-in session for "quotedeck status".
type Status struct {
	SignedIn        bool      `json:"signed_in" yaml:"signed_in"`
	Subject         string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Name            string    `json:"name,omitempty" yaml:"name,omitempty"`
	Email           string    `json:"email,omitempty" yaml:"email,omitempty"`
	AccessTokenLive bool      `json:"access_token_valid" yaml:"access_token_valid"`
	Expiry          time.Time `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	HasRefreshToken bool      `json:"has_refresh_token" yaml:"has_refresh_token"`
	TokenFile       string    `json:"token_file" yaml:"token_file"`
}

// Printer writes results in one format.
type Printer struct {
	w      io.Writer
	format Format
	tmpl   *template.Template
	color  bool
}

// New creates a Printer. tmpl is required for FormatTemplate and ignored otherwise.
// color enables ANSI colours in table headers.
func New(w io.Writer, format Format, tmpl string, color bool) (*Printer, error) {
	p := &Printer{w: w, format: format, color: color}
	if format == FormatTemplate {
		if tmpl == "" {
			return nil, fmt.Errorf("--template is required with -o template")
		}
		t, err := template.New("output").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
		if err != nil {
			return nil, fmt.Errorf("parsing template: %w", err)
		}
		p.tmpl = t
	}
	return p, nil
}

// Organizations prints an organization list.
func (p *Printer) Organizations(orgs []domain.Organization) error {
	if p.format != FormatTable {
		return p.structured(orgs)
	}
	if len(orgs) == 0 {
		return p.empty("No organizations found")
	}
	t := p.table("ID", "NAME", "SLUG")
	for _, o := range orgs {
		t.AppendRow(table.Row{o.ID, o.Name, o.Slug})
	}
	t.Render()
	return nil
}

// Quotes prints a quote list.
func (p *Printer) Quotes(quotes []domain.Quote) error {
	if p.format != FormatTable {
		return p.structured(quotes)
	}
	if len(quotes) == 0 {
		return p.empty("No quotes found")
	}
	t := p.table("ID", "NUMBER", "TITLE", "CUSTOMER", "STATUS", "TOTAL", "CREATED")
	for _, q := range quotes {
		t.AppendRow(table.Row{q.ID, q.Number, q.Title, q.Customer, p.status(q.Status), money(q.Total(), q.Currency), date(q.CreatedAt)})
	}
	t.Render()
	return nil
}

// Quote prints one quote with its lines.
func (p *Printer) Quote(q domain.Quote) error {
	if p.format != FormatTable {
		return p.structured(q)
	}
	fmt.Fprintf(p.w, "%s  %s\n", q.ID, q.Title)
	fmt.Fprintf(p.w, "Customer: %s   Status: %s   Valid until: %s\n", q.Customer, p.status(q.Status), date(q.ValidUntil))
	t := p.table("DESCRIPTION", "QTY", "UNIT PRICE", "AMOUNT")
	for _, l := range q.Lines {
		t.AppendRow(table.Row{l.Description, l.Quantity, money(l.UnitPrice, q.Currency), money(l.Amount(), q.Currency)})
	}
	t.AppendFooter(table.Row{"", "", "TOTAL", money(q.Total(), q.Currency)})
	t.Render()
	return nil
}

// Status prints the session status.
func (p *Printer) Status(s Status) error {
	if p.format != FormatTable {
		return p.structured(s)
	}
	if !s.SignedIn {
		fmt.Fprintln(p.w, "Not signed in. Run: quotedeck login")
		return nil
	}
	t := p.table("KEY", "VALUE")
	who := s.Name
	if who == "" {
		who = s.Subject
	}
	t.AppendRow(table.Row{"user", who})
	if s.Email != "" {
		t.AppendRow(table.Row{"email", s.Email})
	}
	t.AppendRow(table.Row{"access token", validity(s)})
	t.AppendRow(table.Row{"refresh token", yesNo(s.HasRefreshToken)})
	t.AppendRow(table.Row{"token file", s.TokenFile})
	t.Render()
	return nil
}

func (p *Printer) structured(v interface{}) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatTemplate:
		if err := p.tmpl.Execute(p.w, v); err != nil {
			return fmt.Errorf("executing template: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported output format %q", p.format)
}

func (p *Printer) table(headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.SetStyle(table.StyleRounded)
	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = p.paint(text.FgHiCyan, h)
	}
	t.AppendHeader(row)
	return t
}

func (p *Printer) empty(msg string) error {
	_, err := fmt.Fprintln(p.w, p.paint(text.FgYellow, msg))
	return err
}

func (p *Printer) status(s domain.QuoteStatus) string {
	switch s {
	case domain.StatusAccepted:
		return p.paint(text.FgGreen, string(s))
	case domain.StatusRejected, domain.StatusExpired:
		return p.paint(text.FgRed, string(s))
	case domain.StatusSent:
		return p.paint(text.FgYellow, string(s))
	}
	return string(s)
}

func (p *Printer) paint(c text.Color, s string) string {
	if !p.color {
		return s
	}
	return c.Sprint(s)
}

func money(v float64, currency string) string {
	return strings.TrimSpace(fmt.Sprintf("%.2f %s", v, currency))
}

func date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func validity(s Status) string {
	if !s.AccessTokenLive {
		return "expired"
	}
	return "valid until " + s.Expiry.Local().Format(time.RFC1123)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
