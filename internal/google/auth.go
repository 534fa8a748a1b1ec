package google

import (
	"context"

	"github.com/rankpulse/rankpulse/internal/config"
	"golang.org/x/oauth2"
)

// TokenURL is Google's OAuth2 token endpoint.
const TokenURL = "https://oauth2.googleapis.com/token"

// NewTokenSource builds a caching token source that exchanges the stored
// refresh token for short-lived access tokens on demand. The same source
// is shared by all clients so concurrent jobs reuse one access token.
func NewTokenSource(ctx context.Context, cfg config.GoogleConfig) oauth2.TokenSource {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: TokenURL},
	}
	tok := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	return oauth2.ReuseTokenSource(nil, conf.TokenSource(ctx, tok))
}
