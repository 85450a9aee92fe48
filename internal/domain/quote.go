package domain

import (
	"errors"
	"strings"
	"time"
)

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const (
	StatusDraft    QuoteStatus = "draft"
	StatusSent     QuoteStatus = "sent"
	StatusAccepted QuoteStatus = "accepted"
	StatusRejected QuoteStatus = "rejected"
	StatusExpired  QuoteStatus = "expired"
)

// Organization is a tenant that owns quotes.
type Organization struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Slug string `json:"slug,omitempty" yaml:"slug,omitempty"`
}

// QuoteLine is one priced item of a quote.
type QuoteLine struct {
	Description string  `json:"description" yaml:"description"`
	Quantity    float64 `json:"quantity" yaml:"quantity"`
	UnitPrice   float64 `json:"unit_price" yaml:"unit_price"`
}

// Amount returns Quantity * UnitPrice.
func (l QuoteLine) Amount() float64 {
	return l.Quantity * l.UnitPrice
}

// Quote is a priced offer sent to a customer.
type Quote struct {
	ID             string      `json:"id" yaml:"id"`
	OrganizationID string      `json:"organization_id" yaml:"organization_id"`
	Number         string      `json:"number,omitempty" yaml:"number,omitempty"`
	Title          string      `json:"title" yaml:"title"`
	Customer       string      `json:"customer" yaml:"customer"`
	Status         QuoteStatus `json:"status" yaml:"status"`
	Currency       string      `json:"currency" yaml:"currency"`
	Lines          []QuoteLine `json:"lines,omitempty" yaml:"lines,omitempty"`
	CreatedAt      time.Time   `json:"created_at" yaml:"created_at"`
	ValidUntil     time.Time   `json:"valid_until,omitempty" yaml:"valid_until,omitempty"`
}

// Total returns the sum of all line amounts.
func (q Quote) Total() float64 {
	var total float64
	for _, l := range q.Lines {
		total += l.Amount()
	}
	return total
}

// QuoteDraft is the payload for creating a quote.
type QuoteDraft struct {
	Title      string      `json:"title" yaml:"title"`
	Customer   string      `json:"customer" yaml:"customer"`
	Currency   string      `json:"currency" yaml:"currency"`
	Lines      []QuoteLine `json:"lines" yaml:"lines"`
	ValidUntil time.Time   `json:"valid_until,omitempty" yaml:"valid_until,omitempty"`
}

// Validate checks the draft before it is sent.
func (d QuoteDraft) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(d.Customer) == "" {
		problems = append(problems, "customer is required")
	}
	if len(d.Currency) != 3 {
		problems = append(problems, "currency must be a 3-letter ISO code")
	}
	if len(d.Lines) == 0 {
		problems = append(problems, "at least one line is required")
	}
	for _, l := range d.Lines {
		if l.Quantity <= 0 {
			problems = append(problems, "line quantities must be positive")
			break
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
