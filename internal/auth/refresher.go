package auth

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waabox/quotedeck/internal/tokenstore"
)

// Refresher renews the stored access token.
type Refresher interface {
	Refresh(ctx context.Context) (tokenstore.TokenState, error)
}

// TokenRefresher handles the refresh-token grant and persists the result.
type TokenRefresher struct {
	exchanger Exchanger
	store     tokenstore.Store
	now       func() time.Time
	log       logrus.FieldLogger
	mu        sync.Mutex
}

// Ensure TokenRefresher implements Refresher.
var _ Refresher = (*TokenRefresher)(nil)

// NewTokenRefresher creates a TokenRefresher.
func NewTokenRefresher(exchanger Exchanger, store tokenstore.Store, opts ...Option) *TokenRefresher {
	o := buildOptions(opts)
	return &TokenRefresher{
		exchanger: exchanger,
		store:     store,
		now:       o.now,
		log:       o.log.WithField("component", "token-refresher"),
	}
}

// Refresh exchanges the stored refresh token for a new access token and saves it.
//
// It returns *NoRefreshTokenError when nothing can be refreshed. Any other
// failure is a *RefreshFailedError; when the server answered 400, 401 or 403
// the refresh token is considered revoked and the store is cleared. Other
// failures leave the stored tokens untouched.
func (r *TokenRefresher) Refresh(ctx context.Context) (tokenstore.TokenState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.store.Load()
	if !current.HasRefreshToken() {
		return tokenstore.TokenState{}, &NoRefreshTokenError{}
	}

	result, err := r.exchanger.ExchangeRefreshToken(ctx, current.RefreshToken)
	if err != nil {
		return tokenstore.TokenState{}, r.fail(&RefreshFailedError{Err: err})
	}
	if result.Failure != nil {
		return tokenstore.TokenState{}, r.fail(&RefreshFailedError{Failure: result.Failure})
	}

	s := result.Success
	next := tokenstore.TokenState{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Expiry:       r.now().Add(s.ExpiresIn),
	}
	if next.RefreshToken == "" {
		// servers that do not rotate refresh tokens omit the field
		next.RefreshToken = current.RefreshToken
	}
	if err := r.store.Save(next); err != nil {
		// The store keeps the state in memory; the token is usable for this session.
		r.log.WithError(err).Warn("token refreshed but could not be persisted")
	}
	r.log.WithField("expiry", next.Expiry.Format(time.RFC3339)).Info("access token refreshed")
	return next, nil
}

func (r *TokenRefresher) fail(rf *RefreshFailedError) error {
	status := rf.StatusCode()
	if !invalidatesGrant(status) {
		r.log.WithError(rf).Warn("token refresh failed, keeping stored tokens")
		return rf
	}
	if err := r.store.Clear(); err != nil {
		r.log.WithError(err).Warn("could not clear rejected tokens")
	}
	rf.Cleared = true
	r.log.WithField("status", status).Warn("refresh token rejected, signed out")
	return rf
}
