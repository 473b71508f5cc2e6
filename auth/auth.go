// Package auth obtains OAuth2 client credentials tokens for outbound calls.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCred caches the current token and fetches a new one once it expired.
// It is safe for concurrent use.
type ClientCred struct {
	conf clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

func NewClientCred(conf Conf) *ClientCred {
	return &ClientCred{conf: conf.toOauth2Config()}
}

// GetToken returns the cached access token while it is valid and requests a
// new one otherwise.
func (c *ClientCred) GetToken(ctx context.Context) (string, error) {
	tok, err := c.valid(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// ForceRefresh drops the cached token and requests a new one, typically after
// the resource server answered 401.
func (c *ClientCred) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
	return c.GetToken(ctx)
}

// SetAuthHeader sets the Authorization header of r from a valid token.
func (c *ClientCred) SetAuthHeader(r *http.Request) error {
	tok, err := c.valid(r.Context())
	if err != nil {
		return err
	}
	tok.SetAuthHeader(r)
	return nil
}

func (c *ClientCred) valid(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token.Valid() {
		return c.token, nil
	}
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	c.token = tok
	return tok, nil
}
