package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Kabilan-0809/chat-application/internal/identity"
)

// ProfileExchanger abstracts the OAuth consent/exchange handshake.
// The relay only ever sees the verified profile that comes back; the
// handshake itself belongs to the identity provider.
type ProfileExchanger interface {
	// AuthCodeURL returns the provider consent URL for a CSRF state value.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a verified profile.
	Exchange(ctx context.Context, code string) (identity.Profile, error)
}

// googleEndpoint is spelled out here to keep the import surface small.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleExchanger is the concrete Google-backed ProfileExchanger.
type GoogleExchanger struct {
	oauth       *oauth2.Config
	userinfoURL string
	httpTimeout time.Duration
}

// NewGoogleExchanger builds an exchanger from OAuth client credentials.
func NewGoogleExchanger(clientID, clientSecret, redirectURL string) (*GoogleExchanger, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, errors.New("authapi: missing oauth client credentials")
	}
	if strings.TrimSpace(redirectURL) == "" {
		return nil, errors.New("authapi: missing oauth redirect url")
	}

	return &GoogleExchanger{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     googleEndpoint,
		},
		userinfoURL: googleUserinfoURL,
		httpTimeout: 10 * time.Second,
	}, nil
}

// AuthCodeURL returns the Google consent URL.
func (g *GoogleExchanger) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

// Exchange trades the authorization code for the verified Google profile.
func (g *GoogleExchanger) Exchange(ctx context.Context, code string) (identity.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, g.httpTimeout)
	defer cancel()

	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return identity.Profile{}, fmt.Errorf("authapi: code exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userinfoURL, nil)
	if err != nil {
		return identity.Profile{}, err
	}

	resp, err := g.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return identity.Profile{}, fmt.Errorf("authapi: userinfo fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return identity.Profile{}, fmt.Errorf("authapi: userinfo status %d", resp.StatusCode)
	}

	var info struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return identity.Profile{}, fmt.Errorf("authapi: userinfo decode: %w", err)
	}
	if info.ID == "" {
		return identity.Profile{}, errors.New("authapi: userinfo missing subject id")
	}

	return identity.Profile{
		ProviderID:  info.ID,
		DisplayName: info.Name,
		Email:       info.Email,
		AvatarURL:   info.Picture,
	}, nil
}
