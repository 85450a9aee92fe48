package tui_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/quotedeck/internal/auth"
	"github.com/waabox/quotedeck/internal/domain"
	"github.com/waabox/quotedeck/internal/tui"
)

// fakeService satisfies domain.QuoteService for TUI tests.
type fakeService struct {
	orgs      []domain.Organization
	quotes    []domain.Quote
	listErr   error
	deletedID string
}

func (f *fakeService) ListOrganizations(context.Context) ([]domain.Organization, error) {
	return f.orgs, f.listErr
}
func (f *fakeService) ListQuotes(context.Context, string) ([]domain.Quote, error) {
	return f.quotes, f.listErr
}
func (f *fakeService) GetQuote(_ context.Context, id string) (domain.Quote, error) {
	for _, q := range f.quotes {
		if q.ID == id {
			return q, nil
		}
	}
	return domain.Quote{}, domain.ErrNotFound
}
func (f *fakeService) CreateQuote(context.Context, string, domain.QuoteDraft) (domain.Quote, error) {
	return domain.Quote{}, nil
}
func (f *fakeService) DeleteQuote(_ context.Context, id string) error {
	f.deletedID = id
	return nil
}

// fakeAuthenticator records device authorization requests.
type fakeAuthenticator struct {
	begun     int
	cancelled int
}

func (f *fakeAuthenticator) BeginDeviceAuthentication(_ context.Context, _ []string, onComplete func(auth.Completion)) (auth.Prompt, error) {
	f.begun++
	return auth.Prompt{UserCode: "WDJB-MJHT", VerificationURI: "https://auth.example.com/device"}, nil
}
func (f *fakeAuthenticator) CancelAuthentication() { f.cancelled++ }

var (
	testOrgs   = []domain.Organization{{ID: "org-1", Name: "ACME"}, {ID: "org-2", Name: "Globex"}}
	testQuotes = []domain.Quote{
		{ID: "q-1", OrganizationID: "org-1", Number: "Q-0001", Title: "Website", Status: domain.StatusSent},
		{ID: "q-2", OrganizationID: "org-1", Number: "Q-0002", Title: "Audit", Status: domain.StatusDraft},
	}
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func expiredErr() error {
	return &domain.AuthExpiredError{Cause: fmt.Errorf("quotes API error: 401 Unauthorized: %w", domain.ErrUnauthorized)}
}

// openQuotes loads organizations, enters the first one and delivers its quotes.
func openQuotes(t *testing.T, m tui.AppModel) tui.AppModel {
	t.Helper()
	m0, _ := m.Update(tui.OrgsLoadedMsg{Orgs: testOrgs})
	m1, cmd := m0.(tui.AppModel).Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command loading the quotes")
	}
	m2, _ := m1.(tui.AppModel).Update(cmd())
	return m2.(tui.AppModel)
}

func TestApp_InitialViewIsLoading(t *testing.T) {
	m := tui.NewAppModel(context.Background(), &fakeService{}, nil)
	if !strings.Contains(m.View(), "Loading") {
		t.Errorf("expected loading message, got:\n%s", m.View())
	}
}

func TestApp_OrgsLoaded_RendersList(t *testing.T) {
	m := tui.NewAppModel(context.Background(), &fakeService{}, nil)
	updated, _ := m.Update(tui.OrgsLoadedMsg{Orgs: testOrgs})
	view := updated.(tui.AppModel).View()

	if !strings.Contains(view, "Organizations") || !strings.Contains(view, "Globex") {
		t.Errorf("expected organization list, got:\n%s", view)
	}
}

func TestApp_EnterOpensQuotes(t *testing.T) {
	svc := &fakeService{quotes: testQuotes}
	m := openQuotes(t, tui.NewAppModel(context.Background(), svc, nil))
	view := m.View()

	if !strings.Contains(view, "quotedeck | ACME") {
		t.Errorf("expected organization header, got:\n%s", view)
	}
	if !strings.Contains(view, "Q-0002") {
		t.Errorf("expected quotes in view, got:\n%s", view)
	}
}

func TestApp_DeleteKey_ShowsConfirmPrompt(t *testing.T) {
	m := openQuotes(t, tui.NewAppModel(context.Background(), &fakeService{quotes: testQuotes}, nil))

	updated, _ := m.Update(key("d"))
	view := updated.(tui.AppModel).View()

	if !strings.Contains(view, "Delete quote Q-0001") {
		t.Errorf("expected confirm prompt in view, got:\n%s", view)
	}
}

func TestApp_ConfirmDelete_DismissesPromptOnOtherKey(t *testing.T) {
	svc := &fakeService{quotes: testQuotes}
	m := openQuotes(t, tui.NewAppModel(context.Background(), svc, nil))

	m1, _ := m.Update(key("d"))
	m2, cmd := m1.(tui.AppModel).Update(key("n"))
	if cmd != nil {
		cmd()
	}
	if strings.Contains(m2.(tui.AppModel).View(), "Delete quote") {
		t.Errorf("expected confirm prompt to be dismissed after 'n'")
	}
	if svc.deletedID != "" {
		t.Errorf("expected no deletion, got %q", svc.deletedID)
	}
}

func TestApp_ConfirmDelete_YKey_CallsService(t *testing.T) {
	svc := &fakeService{quotes: testQuotes}
	m := openQuotes(t, tui.NewAppModel(context.Background(), svc, nil))

	m1, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m2, _ := m1.(tui.AppModel).Update(key("d"))
	_, cmd := m2.(tui.AppModel).Update(key("y"))
	if cmd == nil {
		t.Fatal("expected a delete command")
	}
	cmd()

	if svc.deletedID != "q-2" {
		t.Errorf("expected DeleteQuote(q-2), got %q", svc.deletedID)
	}
}

func TestApp_EscReturnsToOrganizations(t *testing.T) {
	m := openQuotes(t, tui.NewAppModel(context.Background(), &fakeService{quotes: testQuotes}, nil))

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !strings.Contains(updated.(tui.AppModel).View(), "Organizations") {
		t.Errorf("expected organization list after esc")
	}
}

func TestApp_ExpiredSessionWithoutAuthenticatorShowsError(t *testing.T) {
	m := tui.NewAppModel(context.Background(), &fakeService{}, nil)
	updated, _ := m.Update(tui.OrgsLoadedMsg{Err: expiredErr()})
	view := updated.(tui.AppModel).View()

	if !strings.Contains(view, "Error:") {
		t.Errorf("expected error view, got:\n%s", view)
	}
}

func TestApp_ExpiredSessionStartsReAuth(t *testing.T) {
	authn := &fakeAuthenticator{}
	m := tui.NewAppModel(context.Background(), &fakeService{}, authn)

	m1, cmd := m.Update(tui.OrgsLoadedMsg{Err: expiredErr()})
	if !strings.Contains(m1.(tui.AppModel).View(), "Re-authentication Required") {
		t.Fatalf("expected re-auth view, got:\n%s", m1.(tui.AppModel).View())
	}
	if cmd == nil {
		t.Fatal("expected a command requesting a device code")
	}
	msg := cmd()
	if authn.begun != 1 {
		t.Errorf("expected one device authorization, got %d", authn.begun)
	}

	m2, _ := m1.(tui.AppModel).Update(msg)
	view := m2.(tui.AppModel).View()
	if !strings.Contains(view, "WDJB-MJHT") || !strings.Contains(view, "https://auth.example.com/device") {
		t.Errorf("expected user code and URL in view, got:\n%s", view)
	}
}

func TestApp_SecondExpiredLoadJoinsRunningReAuth(t *testing.T) {
	authn := &fakeAuthenticator{}
	m := tui.NewAppModel(context.Background(), &fakeService{}, authn)

	m1, cmd := m.Update(tui.OrgsLoadedMsg{Err: expiredErr()})
	m2, _ := m1.(tui.AppModel).Update(cmd())

	m3, cmd := m2.(tui.AppModel).Update(tui.QuotesLoadedMsg{OrgID: "org-1", Err: expiredErr()})
	if cmd != nil {
		cmd()
	}
	if authn.begun != 1 {
		t.Errorf("expected one device authorization, got %d", authn.begun)
	}
	view := m3.(tui.AppModel).View()
	if !strings.Contains(view, "WDJB-MJHT") {
		t.Errorf("expected the running prompt to stay on screen, got:\n%s", view)
	}
}

func TestApp_SignedOutStartsReAuth(t *testing.T) {
	authn := &fakeAuthenticator{}
	m := tui.NewAppModel(context.Background(), &fakeService{}, authn)

	err := &domain.AuthExpiredError{Cause: &auth.AuthenticationRequiredError{Reason: "no access token stored"}}
	m1, _ := m.Update(tui.OrgsLoadedMsg{Err: err})
	if !strings.Contains(m1.(tui.AppModel).View(), "Re-authentication Required") {
		t.Errorf("expected re-auth view, got:\n%s", m1.(tui.AppModel).View())
	}
}

func TestApp_ReAuthSuccessReloads(t *testing.T) {
	svc := &fakeService{orgs: testOrgs}
	m := tui.NewAppModel(context.Background(), svc, &fakeAuthenticator{})

	m1, _ := m.Update(tui.OrgsLoadedMsg{Err: expiredErr()})
	m2, cmd := m1.(tui.AppModel).Update(tui.ReAuthCompleteMsg{Completion: auth.Completion{Success: true, State: auth.StateAuthorized}})
	if cmd == nil {
		t.Fatal("expected a reload command")
	}
	m3, _ := m2.(tui.AppModel).Update(cmd())
	if !strings.Contains(m3.(tui.AppModel).View(), "Globex") {
		t.Errorf("expected organizations after re-auth, got:\n%s", m3.(tui.AppModel).View())
	}
}

func TestApp_ReAuthFailureShowsMessage(t *testing.T) {
	m := tui.NewAppModel(context.Background(), &fakeService{}, &fakeAuthenticator{})

	m1, _ := m.Update(tui.OrgsLoadedMsg{Err: expiredErr()})
	m2, _ := m1.(tui.AppModel).Update(tui.ReAuthCompleteMsg{Completion: auth.Completion{State: auth.StateDenied, Message: "access was denied"}})
	view := m2.(tui.AppModel).View()

	if !strings.Contains(view, "access was denied") {
		t.Errorf("expected failure message, got:\n%s", view)
	}
}

func TestApp_ReAuthEscCancels(t *testing.T) {
	authn := &fakeAuthenticator{}
	m := tui.NewAppModel(context.Background(), &fakeService{}, authn)

	m1, _ := m.Update(tui.OrgsLoadedMsg{Err: expiredErr()})
	m2, _ := m1.(tui.AppModel).Update(tea.KeyMsg{Type: tea.KeyEsc})

	if authn.cancelled != 1 {
		t.Errorf("expected CancelAuthentication, got %d calls", authn.cancelled)
	}
	if !strings.Contains(m2.(tui.AppModel).View(), "session expired") {
		t.Errorf("expected expiry message, got:\n%s", m2.(tui.AppModel).View())
	}
}

func TestApp_OtherErrorsAreShown(t *testing.T) {
	m := tui.NewAppModel(context.Background(), &fakeService{}, &fakeAuthenticator{})
	updated, _ := m.Update(tui.OrgsLoadedMsg{Err: errors.New("connection refused")})

	if !strings.Contains(updated.(tui.AppModel).View(), "connection refused") {
		t.Errorf("expected error in view")
	}
}
