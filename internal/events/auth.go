package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	appLog "solara/internal/log"
	"solara/internal/storage"
)

const (
	// Scope is the read-only calendar scope requested at sign in.
	Scope = "https://www.googleapis.com/auth/calendar.readonly"
	// TokenKey is the storage key of the persisted token.
	TokenKey = "google_oauth_token"
	// DefaultRevokeURL is Google's token revocation endpoint.
	DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

	stateTTL = 10 * time.Minute
)

var (
	// ErrUnauthorized means the calendar needs a (new) sign in.
	ErrUnauthorized = errors.New("events: authorization required")
	// ErrBadState is returned for an unknown or expired OAuth state.
	ErrBadState = errors.New("events: invalid oauth state")
)

// TokenStore persists the token. *storage.Store implements it.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Auth runs the authorization code flow for the primary calendar and keeps
// the resulting token.
type Auth struct {
	cfg   *oauth2.Config
	store TokenStore

	// RevokeURL and HTTPClient are used by SignOut.
	RevokeURL  string
	HTTPClient *http.Client

	mu     sync.Mutex
	token  *oauth2.Token
	states map[string]time.Time
	now    func() time.Time
}

// NewAuth returns an Auth for Google's OAuth endpoint.
func NewAuth(clientID, clientSecret, redirectURL string, store TokenStore) *Auth {
	return NewAuthWithEndpoint(clientID, clientSecret, redirectURL, google.Endpoint, store)
}

// NewAuthWithEndpoint is NewAuth against another OAuth endpoint.
func NewAuthWithEndpoint(clientID, clientSecret, redirectURL string, ep oauth2.Endpoint, store TokenStore) *Auth {
	return &Auth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     ep,
			Scopes:       []string{Scope},
		},
		store:      store,
		RevokeURL:  DefaultRevokeURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		states:     make(map[string]time.Time),
		now:        time.Now,
	}
}

// Load reads a previously stored token. A missing token is not an error.
func (a *Auth) Load(ctx context.Context) error {
	raw, err := a.store.Get(ctx, TokenKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("events: load token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		appLog.Warn("events: discarding unreadable token", "err", err.Error())
		return nil
	}
	a.mu.Lock()
	a.token = &tok
	a.mu.Unlock()
	return nil
}

// SignedIn reports whether a token is held.
func (a *Auth) SignedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token != nil
}

// Begin returns the consent page URL for a fresh state value.
func (a *Auth) Begin() string {
	state := uuid.NewString()
	a.mu.Lock()
	now := a.now()
	for s, exp := range a.states {
		if now.After(exp) {
			delete(a.states, s)
		}
	}
	a.states[state] = now.Add(stateTTL)
	a.mu.Unlock()
	return a.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Complete checks state, exchanges code and stores the token.
func (a *Auth) Complete(ctx context.Context, state, code string) error {
	a.mu.Lock()
	exp, ok := a.states[state]
	delete(a.states, state)
	a.mu.Unlock()
	if !ok || a.now().After(exp) {
		return ErrBadState
	}
	if strings.TrimSpace(code) == "" {
		return errors.New("events: missing authorization code")
	}

	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("events: exchange code: %w", err)
	}
	a.mu.Lock()
	a.token = tok
	a.mu.Unlock()
	a.persist(ctx, tok)
	appLog.Info("events: signed in")
	return nil
}

// Client returns an HTTP client authorized for the calendar. Refreshed
// tokens are written back to the store.
func (a *Auth) Client(ctx context.Context) (*http.Client, error) {
	a.mu.Lock()
	tok := a.token
	a.mu.Unlock()
	if tok == nil {
		return nil, ErrUnauthorized
	}
	src := &persistingSource{auth: a, base: a.cfg.TokenSource(ctx, tok), last: tok.AccessToken}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Forget drops the token without revoking it, after the API rejected it.
func (a *Auth) Forget(ctx context.Context) {
	a.mu.Lock()
	a.token = nil
	a.mu.Unlock()
	if err := a.store.Delete(ctx, TokenKey); err != nil {
		appLog.Error("events: delete token failed", err)
	}
}

// SignOut revokes the token at the provider and forgets it. The token is
// forgotten even when revocation fails.
func (a *Auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	tok := a.token
	a.mu.Unlock()
	a.Forget(ctx)
	if tok == nil {
		return nil
	}

	value := tok.RefreshToken
	if value == "" {
		value = tok.AccessToken
	}
	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("events: revoke: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("events: revoke: status %s", resp.Status)
	}
	appLog.Info("events: signed out")
	return nil
}

func (a *Auth) persist(ctx context.Context, tok *oauth2.Token) {
	data, err := json.Marshal(tok)
	if err != nil {
		appLog.Error("events: encode token failed", err)
		return
	}
	if err := a.store.Set(ctx, TokenKey, string(data)); err != nil {
		appLog.Error("events: store token failed", err)
	}
}

// persistingSource stores every token the base source refreshes.
type persistingSource struct {
	auth *Auth
	base oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()
	if changed {
		s.auth.mu.Lock()
		s.auth.token = tok
		s.auth.mu.Unlock()
		s.auth.persist(context.Background(), tok)
	}
	return tok, nil
}
