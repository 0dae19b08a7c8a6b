package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Scopes are the OAuth scopes the store needs: creating the task calendar
// requires full calendar access, not just events.
var Scopes = []string{calendar.CalendarScope}

// BearerToken wraps a raw access token as a credential.
func BearerToken(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEndpoint points the store at a different Calendar API base URL.
func WithEndpoint(endpoint string) Option {
	return func(s *Store) { s.endpoint = endpoint }
}

// WithHTTPClient sets the client whose transport carries the requests. The
// bearer credential of each call is layered on top of it.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.httpClient = c }
}

// WithClock replaces time.Now, which anchors the list window and stands in
// for missing due dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// service builds a Calendar API client that authenticates with cred.
func (s *Store) service(ctx context.Context, cred oauth2.TokenSource) (*calendar.Service, error) {
	if cred == nil {
		return nil, errors.New("missing credential")
	}

	base := http.DefaultTransport
	var timeout time.Duration
	if s.httpClient != nil {
		if s.httpClient.Transport != nil {
			base = s.httpClient.Transport
		}
		timeout = s.httpClient.Timeout
	}
	client := &http.Client{
		Transport: &oauth2.Transport{Source: cred, Base: base},
		Timeout:   timeout,
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar client: %w", err)
	}
	return srv, nil
}
