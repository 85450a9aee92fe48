package tui

import (
	"fmt"
	"strings"

	"github.com/waabox/quotedeck/internal/domain"
)

// LineListModel is an immutable model for the lines of one quote.
type LineListModel struct {
	quote  domain.Quote
	cursor int
}

// NewLineListModel creates a line list model for q.
func NewLineListModel(q domain.Quote) LineListModel {
	return LineListModel{quote: q}
}

// MoveDown returns a new model with the cursor moved down by one.
func (m LineListModel) MoveDown() LineListModel {
	if m.cursor < len(m.quote.Lines)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m LineListModel) MoveUp() LineListModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// Cursor returns the current cursor position.
func (m LineListModel) Cursor() int {
	return m.cursor
}

// Quote returns the quote being shown.
func (m LineListModel) Quote() domain.Quote {
	return m.quote
}

// View renders the lines and the total.
func (m LineListModel) View() string {
	if len(m.quote.Lines) == 0 {
		return "No lines in this quote."
	}
	var sb strings.Builder
	for i, l := range m.quote.Lines {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		sb.WriteString(fmt.Sprintf("%s%-30s %6g x %10.2f = %10.2f\n",
			prefix,
			truncate(l.Description, 30),
			l.Quantity,
			l.UnitPrice,
			l.Amount(),
		))
	}
	sb.WriteString(fmt.Sprintf("  %-30s %33.2f %s\n", "Total", m.quote.Total(), m.quote.Currency))
	return sb.String()
}
