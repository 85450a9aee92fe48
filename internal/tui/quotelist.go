package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/waabox/quotedeck/internal/domain"
)

// QuoteListModel is an immutable model for the quotes panel of one organization.
type QuoteListModel struct {
	quotes []domain.Quote
	cursor int
}

// NewQuoteListModel creates a quote list model.
func NewQuoteListModel(quotes []domain.Quote) QuoteListModel {
	return QuoteListModel{quotes: quotes}
}

// MoveDown returns a new model with the cursor moved down by one.
func (m QuoteListModel) MoveDown() QuoteListModel {
	if m.cursor < len(m.quotes)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m QuoteListModel) MoveUp() QuoteListModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// Quotes returns the listed quotes.
func (m QuoteListModel) Quotes() []domain.Quote {
	return m.quotes
}

// Selected returns the highlighted quote, or a zero value when the list is empty.
func (m QuoteListModel) Selected() domain.Quote {
	if len(m.quotes) == 0 {
		return domain.Quote{}
	}
	return m.quotes[m.cursor]
}

// View renders the quote list with a cursor.
func (m QuoteListModel) View() string {
	if len(m.quotes) == 0 {
		return "No quotes in this organization."
	}
	var sb strings.Builder
	for i, q := range m.quotes {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		sb.WriteString(fmt.Sprintf("%s%s %-8s %-25s %-15s %12s  %s\n",
			prefix,
			statusIcon(q.Status),
			q.Number,
			truncate(q.Title, 25),
			truncate(q.Customer, 15),
			fmt.Sprintf("%.2f %s", q.Total(), q.Currency),
			formatAge(q.CreatedAt),
		))
	}
	return sb.String()
}

func statusIcon(s domain.QuoteStatus) string {
	switch s {
	case domain.StatusAccepted:
		return "✓"
	case domain.StatusRejected:
		return "✗"
	case domain.StatusSent:
		return "●"
	case domain.StatusDraft:
		return "✎"
	case domain.StatusExpired:
		return "○"
	default:
		return "?"
	}
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
