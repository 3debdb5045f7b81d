package tiktok

import (
	"net/url"
	"strings"

	autherrors "github.com/brandpulse-io/adconnect/errors"
)

// BuildAuthURL constructs the provider authorization URL the browser is
// redirected to. The state parameter must come from the state token
// service so the callback can be validated.
func BuildAuthURL(appID, redirectURI, state string) (string, error) {
	missing := map[string]bool{
		"appId":       appID == "",
		"redirectUri": redirectURI == "",
		"state":       state == "",
	}
	for _, absent := range missing {
		if absent {
			return "", autherrors.NewValidation("missing required fields for auth URL", missing)
		}
	}

	params := url.Values{}
	params.Set("app_id", appID)
	params.Set("redirect_uri", redirectURI)
	params.Set("state", state)
	params.Set("scope", strings.Join(Scopes, ","))
	params.Set("response_type", "code")

	return AuthURL + "?" + params.Encode(), nil
}
