package quotes

import (
	"time"

	"github.com/waabox/quotedeck/internal/domain"
)

type apiOrganization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (o apiOrganization) toOrganization() domain.Organization {
	return domain.Organization{ID: o.ID, Name: o.Name, Slug: o.Slug}
}

type apiLine struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

type apiQuote struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Number         string     `json:"number"`
	Title          string     `json:"title"`
	Customer       string     `json:"customer"`
	Status         string     `json:"status"`
	Currency       string     `json:"currency"`
	Lines          []apiLine  `json:"lines"`
	CreatedAt      time.Time  `json:"created_at"`
	ValidUntil     *time.Time `json:"valid_until"`
}

func (q apiQuote) toQuote() domain.Quote {
	quote := domain.Quote{
		ID:             q.ID,
		OrganizationID: q.OrganizationID,
		Number:         q.Number,
		Title:          q.Title,
		Customer:       q.Customer,
		Status:         domain.QuoteStatus(q.Status),
		Currency:       q.Currency,
		CreatedAt:      q.CreatedAt,
	}
	if q.ValidUntil != nil {
		quote.ValidUntil = *q.ValidUntil
	}
	if quote.Status == "" {
		quote.Status = domain.StatusDraft
	}
	for _, l := range q.Lines {
		quote.Lines = append(quote.Lines, domain.QuoteLine{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	return quote
}

type apiDraft struct {
	Title      string     `json:"title"`
	Customer   string     `json:"customer"`
	Currency   string     `json:"currency"`
	Lines      []apiLine  `json:"lines"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

func fromDraft(d domain.QuoteDraft) apiDraft {
	out := apiDraft{Title: d.Title, Customer: d.Customer, Currency: d.Currency}
	if !d.ValidUntil.IsZero() {
		v := d.ValidUntil
		out.ValidUntil = &v
	}
	for _, l := range d.Lines {
		out.Lines = append(out.Lines, apiLine{Description: l.Description, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return out
}

// apiError is the error body of the quotes API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
