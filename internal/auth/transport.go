package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/waabox/quotedeck/internal/tokenstore"
)

// AuthorizedTransport produces bearer credentials for outbound API calls,
// refreshing the access token first when it has expired.
//
// Callers that detect expiry at the same time share a single refresh.
type AuthorizedTransport struct {
	store     tokenstore.Store
	refresher Refresher
	now       func() time.Time
	log       logrus.FieldLogger
	group     singleflight.Group
}

// Ensure AuthorizedTransport implements oauth2.TokenSource.
var _ oauth2.TokenSource = (*AuthorizedTransport)(nil)

// NewAuthorizedTransport creates a transport reading tokens from store.
func NewAuthorizedTransport(store tokenstore.Store, refresher Refresher, opts ...Option) *AuthorizedTransport {
	o := buildOptions(opts)
	return &AuthorizedTransport{
		store:     store,
		refresher: refresher,
		now:       o.now,
		log:       o.log.WithField("component", "authorized-transport"),
	}
}

// Headers returns the headers for one outbound call. The result must not be
// reused for later calls.
//
// It returns *AuthenticationRequiredError when there is no token at all, or
// when the token has expired and could not be refreshed.
func (t *AuthorizedTransport) Headers(ctx context.Context) (http.Header, error) {
	st, err := t.current(ctx)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+st.AccessToken)
	return h, nil
}

// ForceRefresh refreshes even if the stored token still looks valid. It is used
// when the API rejects a token the client believed to be current.
func (t *AuthorizedTransport) ForceRefresh(ctx context.Context) error {
	_, err, _ := t.group.Do("force", func() (interface{}, error) {
		return t.refresher.Refresh(ctx)
	})
	if err != nil {
		return &AuthenticationRequiredError{Reason: "token refresh failed", Err: err}
	}
	return nil
}

// Token implements oauth2.TokenSource.
func (t *AuthorizedTransport) Token() (*oauth2.Token, error) {
	st, err := t.current(context.Background())
	if err != nil {
		return nil, err
	}
	return st.ToOAuth2Token(), nil
}

// Client returns an HTTP client that authorizes every request through t.
// base may be nil to use http.DefaultTransport.
func (t *AuthorizedTransport) Client(base http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: t, Base: base},
		Timeout:   timeout,
	}
}

func (t *AuthorizedTransport) current(ctx context.Context) (tokenstore.TokenState, error) {
	st := t.store.Load()
	if st.Valid(t.now()) {
		return st, nil
	}
	if !st.HasRefreshToken() {
		return tokenstore.TokenState{}, &AuthenticationRequiredError{Reason: "no access token stored"}
	}

	v, err, shared := t.group.Do("refresh", func() (interface{}, error) {
		// another caller may have refreshed while this one waited for the group
		if latest := t.store.Load(); latest.Valid(t.now()) {
			return latest, nil
		}
		return t.refresher.Refresh(ctx)
	})
	if err != nil {
		return tokenstore.TokenState{}, &AuthenticationRequiredError{Reason: "token refresh failed", Err: err}
	}
	if shared {
		t.log.Debug("joined an in-flight token refresh")
	}
	return v.(tokenstore.TokenState), nil
}
