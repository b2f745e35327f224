package oauth2

import (
	"context"
	"errors"
	"strings"

	golangoauth2 "golang.org/x/oauth2"
)

// DefaultScope is requested when no scopes are configured; it covers ARM and the Kudu API.
const DefaultScope = "https://management.azure.com/.default"

// DefaultAuthority is the Microsoft identity platform host.
const DefaultAuthority = "https://login.microsoftonline.com"

// Method is implemented by each grant.
type Method interface {
	Acquire(ctx context.Context) (string, error)
}

// App identifies the Azure AD app registration a grant authenticates as. The token endpoint is
// TokenURL when set, otherwise derived from Authority and TenantID.
type App struct {
	ClientID  string   `mapstructure:"client_id"`
	ClientSec string   `mapstructure:"client_secret"`
	TokenURL  string   `mapstructure:"token_url"`
	TenantID  string   `mapstructure:"tenant_id"`
	Authority string   `mapstructure:"authority"`
	Scopes    []string `mapstructure:"scopes"`
}

func (a App) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"client_id":     a.ClientID,
		"client_secret": a.ClientSec,
		"token_url":     a.TokenURL,
		"tenant_id":     a.TenantID,
		"authority":     a.Authority,
	}
	if len(a.Scopes) > 0 {
		m["scopes"] = a.Scopes
	}
	return m
}

// endpoint returns the v2.0 token endpoint.
func (a App) endpoint() (string, error) {
	if u := strings.TrimSpace(a.TokenURL); u != "" {
		return u, nil
	}
	tenant := strings.TrimSpace(a.TenantID)
	if tenant == "" {
		return "", errors.New("oauth2: token_url or tenant_id is required")
	}
	authority := strings.TrimRight(strings.TrimSpace(a.Authority), "/")
	if authority == "" {
		authority = DefaultAuthority
	}
	return authority + "/" + tenant + "/oauth2/v2.0/token", nil
}

func (a App) scopes() []string {
	if len(a.Scopes) == 0 {
		return []string{DefaultScope}
	}
	return a.Scopes
}

// accessToken returns the bare access token.
func accessToken(tok *golangoauth2.Token, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if tok == nil || !tok.Valid() || strings.TrimSpace(tok.AccessToken) == "" {
		return "", errors.New("oauth2: received invalid token")
	}
	return tok.AccessToken, nil
}
