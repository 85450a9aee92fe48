package sandbox

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/waabox/quotedeck/internal/domain"
)

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) seed() {
	s.orgs = []domain.Organization{
		{ID: "org-acme", Name: "ACME Corporation", Slug: "acme"},
		{ID: "org-globex", Name: "Globex", Slug: "globex"},
	}
	created := s.opts.Now().Add(-72 * time.Hour).UTC().Truncate(time.Second)
	for _, q := range []domain.Quote{
		{
			OrganizationID: "org-acme", Title: "Website redesign", Customer: "Initech",
			Status: domain.StatusSent, Currency: "USD",
			Lines: []domain.QuoteLine{
				{Description: "Design", Quantity: 5, UnitPrice: 900},
				{Description: "Implementation", Quantity: 12, UnitPrice: 750},
			},
		},
		{
			OrganizationID: "org-acme", Title: "Annual support", Customer: "Umbrella",
			Status: domain.StatusAccepted, Currency: "USD",
			Lines: []domain.QuoteLine{{Description: "Support plan", Quantity: 1, UnitPrice: 12000}},
		},
		{
			OrganizationID: "org-globex", Title: "Security audit", Customer: "Hooli",
			Status: domain.StatusDraft, Currency: "EUR",
			Lines: []domain.QuoteLine{{Description: "Audit days", Quantity: 4, UnitPrice: 1100}},
		},
	} {
		q := q
		q.CreatedAt = created
		s.addQuoteLocked(&q)
	}
}

func (s *Server) addQuoteLocked(q *domain.Quote) {
	s.sequence++
	q.ID = uuid.NewString()
	q.Number = fmt.Sprintf("Q-%04d", s.sequence)
	s.quotes[q.ID] = q
}

// requireBearer rejects API calls without a live access token issued by this server.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			w.Header().Set("WWW-Authenticate", `Bearer realm="quotedeck-sandbox"`)
			writeJSON(w, http.StatusUnauthorized, apiError{Error: "invalid_token", Message: "missing bearer token"})
			return
		}

		s.mu.Lock()
		exp, ok := s.accessTokens[token]
		s.mu.Unlock()
		if !ok || !s.opts.Now().Before(exp) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="quotedeck-sandbox", error="invalid_token"`)
			writeJSON(w, http.StatusUnauthorized, apiError{Error: "invalid_token", Message: "access token is expired or revoked"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	orgs := append([]domain.Organization(nil), s.orgs...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, orgs)
}

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	org := mux.Vars(r)["org"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasOrgLocked(org) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "not_found", Message: "organization not found"})
		return
	}
	quotes := []domain.Quote{}
	for _, q := range s.quotes {
		if q.OrganizationID == org {
			quotes = append(quotes, *q)
		}
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Number < quotes[j].Number })
	writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	org := mux.Vars(r)["org"]
	var draft domain.QuoteDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid_body", Message: err.Error()})
		return
	}
	if err := draft.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: "invalid_quote", Message: err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasOrgLocked(org) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "not_found", Message: "organization not found"})
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if id, ok := s.idempotency[key]; ok && key != "" {
		if q, ok := s.quotes[id]; ok {
			writeJSON(w, http.StatusOK, q)
			return
		}
	}

	q := &domain.Quote{
		OrganizationID: org,
		Title:          draft.Title,
		Customer:       draft.Customer,
		Status:         domain.StatusDraft,
		Currency:       strings.ToUpper(draft.Currency),
		Lines:          draft.Lines,
		CreatedAt:      s.opts.Now().UTC().Truncate(time.Second),
		ValidUntil:     draft.ValidUntil,
	}
	s.addQuoteLocked(q)
	if key != "" {
		s.idempotency[key] = q.ID
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[mux.Vars(r)["id"]]
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "not_found", Message: "quote not found"})
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "not_found", Message: "quote not found"})
		return
	}
	if q.Status == domain.StatusAccepted {
		writeJSON(w, http.StatusConflict, apiError{Error: "invalid_state", Message: "accepted quotes cannot be deleted"})
		return
	}
	delete(s.quotes, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) hasOrgLocked(id string) bool {
	for _, o := range s.orgs {
		if o.ID == id {
			return true
		}
	}
	return false
}
