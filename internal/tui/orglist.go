package tui

import (
	"fmt"
	"strings"

	"github.com/waabox/quotedeck/internal/domain"
)

// OrgListModel is an immutable Bubbletea-compatible model for the organization list panel.
type OrgListModel struct {
	orgs   []domain.Organization
	cursor int
}

// NewOrgListModel creates an organization list model.
func NewOrgListModel(orgs []domain.Organization) OrgListModel {
	return OrgListModel{orgs: orgs}
}

// MoveDown returns a new model with the cursor moved down by one.
func (m OrgListModel) MoveDown() OrgListModel {
	if m.cursor < len(m.orgs)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m OrgListModel) MoveUp() OrgListModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// SelectedIndex returns the current cursor position.
func (m OrgListModel) SelectedIndex() int {
	return m.cursor
}

// Organizations returns the listed organizations.
func (m OrgListModel) Organizations() []domain.Organization {
	return m.orgs
}

// Selected returns the highlighted organization, or a zero value when the list is empty.
func (m OrgListModel) Selected() domain.Organization {
	if len(m.orgs) == 0 {
		return domain.Organization{}
	}
	return m.orgs[m.cursor]
}

// Update replaces the organizations, keeping the cursor on the same ID when it is still present.
func (m OrgListModel) Update(orgs []domain.Organization) OrgListModel {
	selected := m.Selected().ID
	m.orgs = orgs
	m.cursor = 0
	for i, o := range orgs {
		if o.ID == selected {
			m.cursor = i
			break
		}
	}
	return m
}

// View renders the organization list.
func (m OrgListModel) View() string {
	if len(m.orgs) == 0 {
		return "No organizations found."
	}
	var sb strings.Builder
	for i, o := range m.orgs {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		sb.WriteString(fmt.Sprintf("%s%-30s %s\n", prefix, truncate(o.Name, 30), o.Slug))
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
