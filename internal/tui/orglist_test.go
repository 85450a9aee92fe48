package tui_test

import (
	"strings"
	"testing"

	"github.com/waabox/quotedeck/internal/domain"
	"github.com/waabox/quotedeck/internal/tui"
)

func TestOrgListModel_RendersOrganizations(t *testing.T) {
	orgs := []domain.Organization{
		{ID: "org-1", Name: "ACME Corporation", Slug: "acme"},
		{ID: "org-2", Name: "Globex"},
	}

	m := tui.NewOrgListModel(orgs)
	view := m.View()

	if !strings.Contains(view, "> ACME Corporation") {
		t.Errorf("expected cursor on first organization, got:\n%s", view)
	}
	if m.SelectedIndex() != 0 {
		t.Errorf("expected selected index 0, got %d", m.SelectedIndex())
	}
	if m.Selected().ID != "org-1" {
		t.Errorf("expected selected organization 'org-1', got '%s'", m.Selected().ID)
	}
}

func TestOrgListModel_NavigatesDown(t *testing.T) {
	m := tui.NewOrgListModel([]domain.Organization{{ID: "1"}, {ID: "2"}})
	m = m.MoveDown()
	if m.SelectedIndex() != 1 {
		t.Errorf("expected selected index 1 after moving down, got %d", m.SelectedIndex())
	}
	m = m.MoveDown()
	if m.SelectedIndex() != 1 {
		t.Errorf("expected cursor to stay on the last row, got %d", m.SelectedIndex())
	}
}

func TestOrgListModel_DoesNotGoAboveZero(t *testing.T) {
	m := tui.NewOrgListModel([]domain.Organization{{ID: "1"}})
	m = m.MoveUp()
	if m.SelectedIndex() != 0 {
		t.Errorf("expected selected index 0, got %d", m.SelectedIndex())
	}
}

func TestOrgListModel_UpdateKeepsSelection(t *testing.T) {
	m := tui.NewOrgListModel([]domain.Organization{{ID: "1"}, {ID: "2"}, {ID: "3"}})
	m = m.MoveDown()

	m = m.Update([]domain.Organization{{ID: "0"}, {ID: "1"}, {ID: "2"}})
	if m.Selected().ID != "2" {
		t.Errorf("expected selection to follow ID '2', got '%s'", m.Selected().ID)
	}

	m = m.Update([]domain.Organization{{ID: "9"}})
	if m.Selected().ID != "9" {
		t.Errorf("expected selection to reset when the ID disappears, got '%s'", m.Selected().ID)
	}
}

func TestOrgListModel_EmptyShowsMessage(t *testing.T) {
	m := tui.NewOrgListModel(nil)
	if !strings.Contains(m.View(), "No organizations") {
		t.Errorf("expected empty message, got:\n%s", m.View())
	}
	if m.Selected().ID != "" {
		t.Error("expected zero organization for an empty list")
	}
}
