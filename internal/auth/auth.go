// Package auth resolves bearer tokens to principals.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrUnavailable  = errors.New("auth: identity service unavailable")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
}

type Resolver interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// StaticResolver maps fixed tokens to user ids. Used in dev and tests.
type StaticResolver map[string]string

func (s StaticResolver) Resolve(_ context.Context, token string) (Principal, error) {
	user, ok := s[strings.TrimSpace(token)]
	if !ok || user == "" {
		return Principal{}, ErrUnauthorized
	}
	return Principal{UserID: user}, nil
}

// HTTPResolver asks the identity service who owns the token.
type HTTPResolver struct {
	URL    string
	Client *http.Client
}

func NewHTTPResolver(url string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPResolver{URL: url, Client: &http.Client{Timeout: timeout}}
}

// userProfile is the identity service's /auth/me body.
type userProfile struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return Principal{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	resp, err := r.Client.Do(req)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Principal{}, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return Principal{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var profile userProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Principal{}, fmt.Errorf("%w: decode profile: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(profile.ID) == "" {
		return Principal{}, ErrUnauthorized
	}
	principal := Principal{UserID: profile.ID}
	if len(profile.Roles) > 0 {
		principal.Role = profile.Roles[0]
	}
	return principal, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
