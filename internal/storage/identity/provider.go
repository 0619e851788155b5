// Defines the external identity provider contract and its Google implementation.

package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Identity is the verified result of a credential exchange with the provider.
type Identity struct {
	ExternalID   string
	Email        string
	Name         string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
}

// Provider verifies OAuth authorization codes against an external identity
// provider. Implementations must be safe for concurrent use.
type Provider interface {
	// AuthCodeURL returns the provider's consent page URL for the given
	// anti-forgery state.
	AuthCodeURL(state string) string
	// Exchange redeems an authorization code for a verified identity and a
	// revocable access/refresh credential pair.
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// GoogleProvider implements Provider on top of Google OAuth2.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// googleUserInfoURL is the OpenID userinfo endpoint.
const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// NewGoogleProvider creates a Google identity provider.
//
// The documents and drive.file scopes are requested so the stored access
// token can drive the external Document Service on the user's behalf.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
				"https://www.googleapis.com/auth/documents",
				"https://www.googleapis.com/auth/drive.file",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// HTTPClient returns an http.Client authenticated with the user's stored
// credentials. The underlying oauth2 transport refreshes the access token
// transparently when a refresh token is present.
func (p *GoogleProvider) HTTPClient(ctx context.Context, accessToken, refreshToken string) *http.Client {
	return p.config.Client(ctx, &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// AuthCodeURL implements Provider.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	// AccessTypeOffline is required to receive a refresh token.
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange implements Provider.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	client := p.config.Client(ctx, token)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info request returned %d", resp.StatusCode)
	}

	var info struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("no email associated with this account")
	}

	return &Identity{
		ExternalID:   info.ID,
		Email:        info.Email,
		Name:         info.Name,
		AvatarURL:    info.Picture,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}
