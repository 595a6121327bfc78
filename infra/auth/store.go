// Package auth manages the OAuth credential for one upstream vehicle API
// account. It is the only package touching secret material.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/mgrande/ladevakt/core/logger"
	"github.com/mgrande/ladevakt/core/source"
)

// refreshMargin is the window before expiry within which a token is treated
// as expiring and refreshed ahead of use.
const refreshMargin = 30 * time.Second

// Config defines the OAuth parameters for the upstream account.
type Config struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURL     string `json:"token_url"`
	// TokenFile is where the token pair is persisted so a process restart
	// does not require re-authorization.
	TokenFile string `json:"token_file"`
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if c.TokenFile == "" {
		return fmt.Errorf("token_file is required")
	}
	return nil
}

type persistedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// Store holds and refreshes the credential. All access goes through Token.
type Store struct {
	cfg Config
	log logger.Logger

	// httpClient overrides the client used for the token endpoint. Tests
	// point it at an httptest server.
	httpClient *http.Client

	mu      sync.Mutex
	access  string
	refresh string
	expiry  time.Time
	// reauth is set when the refresh token itself was rejected. From then
	// on Token fails fast until re-authorization replaces the pair.
	reauth bool
}

// NewStore creates a Store and loads a previously persisted token pair from
// cfg.TokenFile if one exists.
func NewStore(cfg Config, log logger.Logger) (*Store, error) {
	s := &Store{cfg: cfg, log: log}
	b, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("token file %s not found, authorization required before live fetches", cfg.TokenFile)
			return s, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok persistedToken
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	s.access = tok.AccessToken
	s.refresh = tok.RefreshToken
	s.expiry = tok.Expiry
	return s, nil
}

// SetHTTPClient overrides the HTTP client used against the token endpoint.
func (s *Store) SetHTTPClient(c *http.Client) { s.httpClient = c }

// SetTokens installs a token pair obtained out of band (initial
// authorization flow) and persists it. It clears a pending re-authorization
// state.
func (s *Store) SetTokens(access, refresh string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	s.expiry = expiry
	s.reauth = false
	return s.saveLocked()
}

// NeedsReauth reports whether the refresh token was rejected and manual
// re-authorization is required.
func (s *Store) NeedsReauth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reauth
}

// Token returns a valid access token, refreshing it first when it expires
// within the safety margin.
//
// The mutex is held across the refresh call, which is the exclusivity the
// contract requires: the first caller to observe an expiring token performs
// the refresh, every concurrent caller blocks on the lock and re-checks the
// then-fresh token instead of triggering a second refresh.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reauth {
		return "", &source.AuthError{Msg: "refresh token rejected, run the authorization flow again"}
	}
	if s.access != "" && time.Until(s.expiry) > refreshMargin {
		return s.access, nil
	}
	return s.refreshLocked(ctx)
}

func (s *Store) refreshLocked(ctx context.Context) (string, error) {
	if s.refresh == "" {
		s.reauth = true
		return "", &source.AuthError{Msg: "no refresh token available"}
	}
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	conf := &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: s.cfg.TokenURL},
	}
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: s.refresh}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			switch rerr.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				s.reauth = true
				s.log.Errorf("refresh token rejected (status %d), manual re-authorization required", rerr.Response.StatusCode)
				return "", &source.AuthError{Msg: fmt.Sprintf("refresh rejected with status %d", rerr.Response.StatusCode)}
			}
		}
		return "", fmt.Errorf("token refresh: %w", err)
	}

	s.access = tok.AccessToken
	s.expiry = tok.Expiry
	if tok.RefreshToken != "" {
		s.refresh = tok.RefreshToken
	}
	// Persist before handing the token out, so a restart right after the
	// refresh does not need re-authorization.
	if err := s.saveLocked(); err != nil {
		s.log.Errorf("persist refreshed token: %v", err)
	}
	s.log.Infof("access token refreshed, valid until %s", s.expiry.Format(time.RFC3339))
	return s.access, nil
}

func (s *Store) saveLocked() error {
	b, err := json.MarshalIndent(persistedToken{
		AccessToken:  s.access,
		RefreshToken: s.refresh,
		Expiry:       s.expiry,
	}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.cfg.TokenFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := s.cfg.TokenFile + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.cfg.TokenFile)
}
