package calendar

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"calbot/internal/storage"
	logx "calbot/pkg/logx"
)

const tokenKey = "gcal:token"

// OAuthConfig builds the oauth2 config for the Calendar readonly scope.
// Token acquisition (browser consent flow) happens out-of-band; this process
// only refreshes and persists an existing token.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
	}
}

// LoadToken reads the persisted oauth token from the state store.
func LoadToken(ctx context.Context, st storage.Store) (*oauth2.Token, error) {
	b, ok, err := st.Get(ctx, tokenKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoToken
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// SaveToken persists the oauth token (including refreshed access tokens).
func SaveToken(ctx context.Context, st storage.Store, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return st.Set(ctx, tokenKey, b, 0)
}

// persistingSource wraps an oauth2.TokenSource and writes refreshed tokens
// back to the store, so restarts don't redo the refresh round-trip.
type persistingSource struct {
	mu    sync.Mutex
	inner oauth2.TokenSource
	store storage.Store
	log   logx.Logger
	last  string // last persisted access token
}

func newPersistingSource(inner oauth2.TokenSource, st storage.Store, log logx.Logger, seed *oauth2.Token) oauth2.TokenSource {
	ps := &persistingSource{inner: inner, store: st, log: log}
	if seed != nil {
		ps.last = seed.AccessToken
	}
	return ps
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.inner.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	changed := tok.AccessToken != p.last
	if changed {
		p.last = tok.AccessToken
	}
	p.mu.Unlock()
	if changed && p.store != nil {
		if err := SaveToken(context.Background(), p.store, tok); err != nil {
			p.log.Warn("oauth token persist failed", logx.Err(err))
		} else {
			p.log.Debug("oauth token refreshed and persisted")
		}
	}
	return tok, nil
}
