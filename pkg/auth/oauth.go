// Package auth obtains the OAuth bearer credential every store operation
// takes. The token is cached next to the config file and re-saved whenever
// the underlying source refreshes it.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/caltask/pkg/config"
	gstore "github.com/harrisonrobin/caltask/pkg/google"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// ClientSecretsFile is the Google API credentials.json downloaded from
	// the Cloud Console. It lives in the config directory.
	ClientSecretsFile = "credentials.json"

	// TokenFile holds the access and refresh token between runs.
	TokenFile = "token.json"

	// LocalhostAuthPort is where the local server waits for the OAuth redirect.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// ErrNoToken is returned by TokenSource when nothing has been cached yet.
var ErrNoToken = errors.New("not authenticated, run `caltask auth`")

// GetConfig reads the client secrets from dir and builds an oauth2.Config
// for the calendar scopes.
func GetConfig(dir string, log *zap.Logger) (*oauth2.Config, error) {
	path := filepath.Join(dir, ClientSecretsFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", path, err)
	}
	cfg, err := google.ConfigFromJSON(b, gstore.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file: %w", err)
	}
	cfg.RedirectURL = normalizeRedirect(cfg.RedirectURL, log)
	return cfg, nil
}

// normalizeRedirect points the redirect at the local callback server.
func normalizeRedirect(redirect string, log *zap.Logger) string {
	if redirect == "urn:ietf:wg:oauth:2.0:oob" || redirect == "" {
		fixed := fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
		log.Debug("Overriding out-of-band redirect", zap.String("redirect", fixed))
		return fixed
	}
	u, err := url.Parse(redirect)
	if err != nil {
		log.Warn("Could not parse redirect URL, using it as is", zap.String("redirect", redirect), zap.Error(err))
		return redirect
	}
	if u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		log.Warn("Redirect URL is not a localhost callback", zap.String("redirect", redirect))
		return redirect
	}
	if u.Port() != LocalhostAuthPort {
		if u.Port() != "" {
			log.Warn("Forcing localhost redirect port",
				zap.String("configured", u.Port()), zap.String("port", LocalhostAuthPort))
		}
		u.Host = net.JoinHostPort(u.Hostname(), LocalhostAuthPort)
	}
	return u.String()
}

// TokenSource returns the cached credential as a refreshing token source.
// It returns ErrNoToken when Login has never run.
func TokenSource(ctx context.Context, log *zap.Logger) (oauth2.TokenSource, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	cfg, err := GetConfig(dir, log)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, TokenFile)
	tok, err := tokenFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	return newSavingSource(cfg.TokenSource(ctx, tok), tok, path, log), nil
}

// Login discards any cached token and runs the browser authorization flow.
// Instructions for the user are written to out.
func Login(ctx context.Context, out io.Writer, log *zap.Logger) (string, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	cfg, err := GetConfig(dir, log)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, TokenFile)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("could not delete token file %s, delete it manually: %w", path, err)
	}
	tok, err := getTokenFromWeb(ctx, cfg, out, log)
	if err != nil {
		return "", err
	}
	if err := saveToken(path, tok); err != nil {
		return "", err
	}
	return path, nil
}

// getTokenFromWeb runs the authorization code flow against a local server.
func getTokenFromWeb(ctx context.Context, cfg *oauth2.Config, out io.Writer, log *zap.Logger) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 2)

	server := &http.Server{
		Handler:      callbackHandler(state, codeCh, errCh),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server: %w", err)
		}
	}()
	defer server.Close()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open the following URL in your browser to authorize caltask:\n%s\n", authURL)
	log.Debug("Waiting for authorization code", zap.String("redirect", cfg.RedirectURL))

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization timed out: %w", ctx.Err())
	}
}

func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	var once sync.Once
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Authorization code not found", http.StatusBadRequest)
			once.Do(func() { errCh <- errors.New("authorization code not found in redirect") })
			return
		}
		fmt.Fprint(w, "Authentication successful! You can close this window.")
		once.Do(func() { codeCh <- code })
	})
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// savingSource writes the token back to disk whenever the wrapped source
// hands out a different one.
type savingSource struct {
	src  oauth2.TokenSource
	path string
	log  *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func newSavingSource(src oauth2.TokenSource, initial *oauth2.Token, path string, log *zap.Logger) *savingSource {
	return &savingSource{src: src, path: path, log: log, last: initial}
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.log.Warn("Could not save refreshed token", zap.Error(err))
		} else {
			s.log.Debug("Saved refreshed token", zap.String("path", s.path))
		}
		s.last = tok
	}
	return tok, nil
}
