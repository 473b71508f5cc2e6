package auth

import (
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// Conf holds the OAuth2 client credentials used for outbound webhooks.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
}

// Validate requires the client id and the token endpoint.
func (c Conf) Validate() error {
	if c.ClientID == "" || c.TokenURL == "" {
		return fmt.Errorf("auth: client_id and token_url are required")
	}
	return nil
}

func (c Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
}
