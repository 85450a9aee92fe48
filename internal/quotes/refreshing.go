package quotes

import (
	"context"
	"errors"

	"github.com/waabox/quotedeck/internal/auth"
	"github.com/waabox/quotedeck/internal/domain"
)

// Refreshing wraps a QuoteService and handles an API rejection of a token the
// client believed valid: it forces one refresh and retries the call once. If
// the refresh fails the error is an *domain.AuthExpiredError.
type Refreshing struct {
	inner   domain.QuoteService
	refresh func(ctx context.Context) error
}

// Ensure Refreshing implements QuoteService.
var _ domain.QuoteService = (*Refreshing)(nil)

// NewRefreshing creates a Refreshing wrapper.
// refresh is called when the API answers 401 or 403; it should renew the access token.
func NewRefreshing(inner domain.QuoteService, refresh func(ctx context.Context) error) *Refreshing {
	return &Refreshing{inner: inner, refresh: refresh}
}

// shouldRefresh is true for server rejections only. When the transport already
// failed to produce a token, refreshing again cannot help.
func shouldRefresh(err error) bool {
	return err != nil && errors.Is(err, domain.ErrUnauthorized) && !errors.Is(err, auth.ErrAuthRequired)
}

func (r *Refreshing) handleUnauthorized(ctx context.Context, retry func() error) error {
	if err := r.refresh(ctx); err != nil {
		return &domain.AuthExpiredError{Cause: err}
	}
	return retry()
}

func (r *Refreshing) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	result, err := r.inner.ListOrganizations(ctx)
	if shouldRefresh(err) {
		var retryResult []domain.Organization
		retryErr := r.handleUnauthorized(ctx, func() error {
			var e error
			retryResult, e = r.inner.ListOrganizations(ctx)
			return e
		})
		if retryErr != nil {
			return nil, retryErr
		}
		return retryResult, nil
	}
	return result, err
}

func (r *Refreshing) ListQuotes(ctx context.Context, orgID string) ([]domain.Quote, error) {
	result, err := r.inner.ListQuotes(ctx, orgID)
	if shouldRefresh(err) {
		var retryResult []domain.Quote
		retryErr := r.handleUnauthorized(ctx, func() error {
			var e error
			retryResult, e = r.inner.ListQuotes(ctx, orgID)
			return e
		})
		if retryErr != nil {
			return nil, retryErr
		}
		return retryResult, nil
	}
	return result, err
}

func (r *Refreshing) GetQuote(ctx context.Context, id string) (domain.Quote, error) {
	result, err := r.inner.GetQuote(ctx, id)
	if shouldRefresh(err) {
		var retryResult domain.Quote
		retryErr := r.handleUnauthorized(ctx, func() error {
			var e error
			retryResult, e = r.inner.GetQuote(ctx, id)
			return e
		})
		if retryErr != nil {
			return domain.Quote{}, retryErr
		}
		return retryResult, nil
	}
	return result, err
}

func (r *Refreshing) CreateQuote(ctx context.Context, orgID string, draft domain.QuoteDraft) (domain.Quote, error) {
	result, err := r.inner.CreateQuote(ctx, orgID, draft)
	if shouldRefresh(err) {
		var retryResult domain.Quote
		retryErr := r.handleUnauthorized(ctx, func() error {
			var e error
			retryResult, e = r.inner.CreateQuote(ctx, orgID, draft)
			return e
		})
		if retryErr != nil {
			return domain.Quote{}, retryErr
		}
		return retryResult, nil
	}
	return result, err
}

func (r *Refreshing) DeleteQuote(ctx context.Context, id string) error {
	err := r.inner.DeleteQuote(ctx, id)
	if shouldRefresh(err) {
		return r.handleUnauthorized(ctx, func() error {
			return r.inner.DeleteQuote(ctx, id)
		})
	}
	return err
}
