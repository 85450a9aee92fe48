package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/quotedeck/internal/auth"
	"github.com/waabox/quotedeck/internal/domain"
)

// Authenticator runs a device authorization when the session has expired.
// *auth.Core implements it.
type Authenticator interface {
	BeginDeviceAuthentication(ctx context.Context, scopes []string, onComplete func(auth.Completion)) (auth.Prompt, error)
	CancelAuthentication()
}

// OrgsLoadedMsg is sent when organizations have been fetched.
// It is exported so that tests can inject it directly into AppModel.Update.
type OrgsLoadedMsg struct {
	Orgs []domain.Organization
	Err  error
}

// QuotesLoadedMsg is sent when the quotes of an organization have been fetched.
type QuotesLoadedMsg struct {
	OrgID  string
	Quotes []domain.Quote
	Err    error
}

// QuoteLoadedMsg is sent when a single quote has been fetched.
type QuoteLoadedMsg struct {
	Quote domain.Quote
	Err   error
}

// DeviceCodeMsg carries the prompt of a re-authentication attempt.
type DeviceCodeMsg struct {
	Prompt auth.Prompt
	Err    error
	done   <-chan auth.Completion
}

// ReAuthCompleteMsg signals that re-authentication ended.
type ReAuthCompleteMsg struct {
	Completion auth.Completion
}

// tickMsg is sent by the auto-refresh ticker.
type tickMsg struct{}

// deletedMsg is sent when a quote deletion completes.
type deletedMsg struct {
	id  string
	err error
}

type viewState int

const (
	viewOrgs viewState = iota
	viewQuotes
	viewQuote
	viewReAuth
)

const refreshInterval = 30 * time.Second

// AppModel is the root Bubbletea model for quotedeck.
type AppModel struct {
	ctx     context.Context
	service domain.QuoteService
	authn   Authenticator

	view        viewState
	orgs        OrgListModel
	selectedOrg domain.Organization
	quotes      QuoteListModel
	lines       LineListModel

	loading       bool
	err           error
	notice        string
	confirmDelete bool

	reAuthPrompt auth.Prompt
	reAuthReturn viewState
}

// NewAppModel creates the root application model. authn may be nil, in which
// case an expired session is shown as an error.
func NewAppModel(ctx context.Context, service domain.QuoteService, authn Authenticator) AppModel {
	return AppModel{
		ctx:     ctx,
		service: service,
		authn:   authn,
		orgs:    NewOrgListModel(nil),
		quotes:  NewQuoteListModel(nil),
		loading: true,
	}
}

// Init triggers the initial organization load.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.loadOrgs(), tickEvery(refreshInterval))
}

func (m AppModel) loadOrgs() tea.Cmd {
	return func() tea.Msg {
		orgs, err := m.service.ListOrganizations(m.ctx)
		return OrgsLoadedMsg{Orgs: orgs, Err: err}
	}
}

func (m AppModel) loadQuotes(orgID string) tea.Cmd {
	return func() tea.Msg {
		quotes, err := m.service.ListQuotes(m.ctx, orgID)
		return QuotesLoadedMsg{OrgID: orgID, Quotes: quotes, Err: err}
	}
}

func (m AppModel) loadQuote(id string) tea.Cmd {
	return func() tea.Msg {
		q, err := m.service.GetQuote(m.ctx, id)
		return QuoteLoadedMsg{Quote: q, Err: err}
	}
}

func (m AppModel) deleteQuote(id string) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{id: id, err: m.service.DeleteQuote(m.ctx, id)}
	}
}

func (m AppModel) requestDeviceCode() tea.Cmd {
	return func() tea.Msg {
		done := make(chan auth.Completion, 1)
		prompt, err := m.authn.BeginDeviceAuthentication(m.ctx, nil, func(c auth.Completion) {
			done <- c
		})
		return DeviceCodeMsg{Prompt: prompt, Err: err, done: done}
	}
}

func waitForCompletion(done <-chan auth.Completion) tea.Cmd {
	return func() tea.Msg {
		return ReAuthCompleteMsg{Completion: <-done}
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return tickMsg{}
	})
}

// reload fetches the data behind view v.
func (m AppModel) reload(v viewState) tea.Cmd {
	switch v {
	case viewQuotes:
		return m.loadQuotes(m.selectedOrg.ID)
	case viewQuote:
		return m.loadQuote(m.lines.Quote().ID)
	}
	return m.loadOrgs()
}

// fail shows err, or switches to the re-authentication view when the session expired.
func (m AppModel) fail(err error) (tea.Model, tea.Cmd) {
	m.loading = false
	var expired *domain.AuthExpiredError
	if (errors.As(err, &expired) || errors.Is(err, auth.ErrAuthRequired)) && m.authn != nil {
		// Another load failing the same way joins the device flow already shown.
		if m.view == viewReAuth {
			return m, nil
		}
		m.reAuthReturn = m.view
		m.view = viewReAuth
		m.reAuthPrompt = auth.Prompt{}
		m.err = nil
		return m, m.requestDeviceCode()
	}
	m.err = err
	return m, nil
}

// Update handles all incoming messages and key events.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case OrgsLoadedMsg:
		if msg.Err != nil {
			return m.fail(msg.Err)
		}
		m.loading = false
		m.err = nil
		m.orgs = m.orgs.Update(msg.Orgs)

	case QuotesLoadedMsg:
		if msg.Err != nil {
			return m.fail(msg.Err)
		}
		m.loading = false
		m.err = nil
		if msg.OrgID == m.selectedOrg.ID {
			m.quotes = NewQuoteListModel(msg.Quotes)
		}

	case QuoteLoadedMsg:
		if msg.Err != nil {
			return m.fail(msg.Err)
		}
		m.loading = false
		m.err = nil
		m.lines = NewLineListModel(msg.Quote)

	case deletedMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.notice = "Deleted quote " + msg.id
		m.loading = true
		return m, m.loadQuotes(m.selectedOrg.ID)

	case tickMsg:
		if m.view == viewReAuth || m.loading {
			return m, tickEvery(refreshInterval)
		}
		return m, tea.Batch(m.reload(m.view), tickEvery(refreshInterval))

	case DeviceCodeMsg:
		if msg.Err != nil {
			m.err = fmt.Errorf("re-authentication failed: %w", msg.Err)
			m.view = m.reAuthReturn
			return m, nil
		}
		m.reAuthPrompt = msg.Prompt
		return m, waitForCompletion(msg.done)

	case ReAuthCompleteMsg:
		if m.view != viewReAuth {
			return m, nil
		}
		m.view = m.reAuthReturn
		m.reAuthPrompt = auth.Prompt{}
		if !msg.Completion.Success {
			m.err = fmt.Errorf("re-authentication failed: %s", msg.Completion.Message)
			return m, nil
		}
		m.err = nil
		m.loading = true
		return m, m.reload(m.view)

	case tea.KeyMsg:
		if m.confirmDelete {
			m.confirmDelete = false
			switch msg.String() {
			case "y":
				target := m.quotes.Selected()
				if target.ID == "" {
					return m, nil
				}
				return m, m.deleteQuote(target.ID)
			case "q", "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			if m.view == viewReAuth && m.authn != nil {
				m.authn.CancelAuthentication()
			}
			return m, tea.Quit
		case "ctrl+r":
			if m.view == viewReAuth {
				return m, nil
			}
			m.loading = true
			m.err = nil
			return m, m.reload(m.view)
		}
		switch m.view {
		case viewOrgs:
			return m.updateOrgs(msg)
		case viewQuotes:
			return m.updateQuotes(msg)
		case viewQuote:
			return m.updateQuote(msg)
		case viewReAuth:
			if msg.String() == "esc" {
				if m.authn != nil {
					m.authn.CancelAuthentication()
				}
				m.view = m.reAuthReturn
				m.reAuthPrompt = auth.Prompt{}
				m.err = errors.New("session expired: press ctrl+r to retry")
				return m, nil
			}
		}
	}
	return m, nil
}

func (m AppModel) updateOrgs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "down", "j":
		m.orgs = m.orgs.MoveDown()
	case "up", "k":
		m.orgs = m.orgs.MoveUp()
	case "enter":
		if len(m.orgs.Organizations()) > 0 {
			m.selectedOrg = m.orgs.Selected()
			m.quotes = NewQuoteListModel(nil)
			m.view = viewQuotes
			m.loading = true
			m.notice = ""
			return m, m.loadQuotes(m.selectedOrg.ID)
		}
	}
	return m, nil
}

func (m AppModel) updateQuotes(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "down", "j":
		m.quotes = m.quotes.MoveDown()
	case "up", "k":
		m.quotes = m.quotes.MoveUp()
	case "enter":
		if q := m.quotes.Selected(); q.ID != "" {
			m.lines = NewLineListModel(q)
			m.view = viewQuote
			return m, m.loadQuote(q.ID)
		}
	case "d":
		if m.quotes.Selected().ID != "" {
			m.confirmDelete = true
			m.notice = ""
		}
	case "esc":
		m.view = viewOrgs
		m.err = nil
		m.notice = ""
	}
	return m, nil
}

func (m AppModel) updateQuote(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "down", "j":
		m.lines = m.lines.MoveDown()
	case "up", "k":
		m.lines = m.lines.MoveUp()
	case "esc":
		m.view = viewQuotes
		m.err = nil
	}
	return m, nil
}

const separator = "────────────────────────────────────────────────────────────\n"

// View renders the full TUI.
func (m AppModel) View() string {
	if m.view == viewReAuth {
		return m.renderReAuthView()
	}
	if m.loading && !m.confirmDelete {
		return "Loading...\n"
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress 'ctrl+r' to retry or 'q' to quit.\n", m.err)
	}

	header := " quotedeck\n"
	if m.view != viewOrgs {
		header = fmt.Sprintf(" quotedeck | %s\n", m.selectedOrg.Name)
	}

	switch m.view {
	case viewQuotes:
		return m.renderQuotesView(header)
	case viewQuote:
		return m.renderQuoteView(header)
	default:
		return m.renderOrgsView(header)
	}
}

func (m AppModel) renderOrgsView(header string) string {
	footer := " ↑/↓: navigate   enter: open   ctrl+r: refresh   q: quit\n"
	return header + separator + " Organizations\n" + m.orgs.View() + "\n" + separator + footer
}

func (m AppModel) renderQuotesView(header string) string {
	status := "\n"
	if m.notice != "" {
		status = " " + m.notice + "\n"
	}
	footer := " ↑/↓: navigate   enter: open   d: delete   esc: back   ctrl+r: refresh   q: quit\n"
	if m.confirmDelete {
		q := m.quotes.Selected()
		footer = fmt.Sprintf(" Delete quote %s %q? [y/N] \n", q.Number, q.Title)
	}
	return header + separator + " Quotes\n" + m.quotes.View() + "\n" + separator + status + separator + footer
}

func (m AppModel) renderQuoteView(header string) string {
	q := m.lines.Quote()
	title := fmt.Sprintf(" %s %s  %s\n Customer: %s   Status: %s\n", q.Number, q.Title, statusIcon(q.Status), q.Customer, q.Status)
	if !q.ValidUntil.IsZero() {
		title += fmt.Sprintf(" Valid until: %s\n", q.ValidUntil.Format("2006-01-02"))
	}
	footer := " ↑/↓: navigate   esc: back   q: quit\n"
	return header + separator + title + separator + m.lines.View() + "\n" + separator + footer
}

func (m AppModel) renderReAuthView() string {
	header := " quotedeck | Re-authentication Required\n"

	var body string
	if m.reAuthPrompt.UserCode == "" {
		body = "\n Your session has expired.\n\n Requesting authorization...\n\n"
	} else {
		body = fmt.Sprintf(
			"\n Your session has expired.\n\n"+
				" Visit:  %s\n"+
				" Code:   %s\n\n"+
				" Waiting for authorization...\n\n",
			m.reAuthPrompt.VerificationURI, m.reAuthPrompt.UserCode)
	}

	footer := " Press ESC to cancel   q: quit\n"
	return header + separator + body + separator + footer
}

// Run starts the Bubbletea program and blocks until the user quits.
func Run(ctx context.Context, service domain.QuoteService, authn Authenticator) error {
	p := tea.NewProgram(NewAppModel(ctx, service, authn), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
