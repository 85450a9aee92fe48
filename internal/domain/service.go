package domain

import "context"

// QuoteService is the port interface for the remote quotes API.
// The UI and CLI only depend on this interface, never on the HTTP client.
type QuoteService interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	ListQuotes(ctx context.Context, orgID string) ([]Quote, error)
	GetQuote(ctx context.Context, id string) (Quote, error)
	CreateQuote(ctx context.Context, orgID string, draft QuoteDraft) (Quote, error)
	DeleteQuote(ctx context.Context, id string) error
}
