package oauth2

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	acommon "github.com/loykin/funcprov/internal/auth/common"
)

// ClientCredentialsConfig configures the Client Credentials grant, typically an Azure AD service
// principal.
type ClientCredentialsConfig struct {
	App `mapstructure:",squash"`
}

// ToMap returns a spec compatible with the oauth2 provider factory.
func (c ClientCredentialsConfig) ToMap() map[string]interface{} {
	return map[string]interface{}{"grant_type": GrantClientCredentials, "grant_config": c.App.toMap()}
}

type clientCredentialsMethod struct{ c ClientCredentialsConfig }

func (m clientCredentialsMethod) Acquire(ctx context.Context) (string, error) {
	clientID := strings.TrimSpace(m.c.ClientID)
	clientSecret := strings.TrimSpace(m.c.ClientSec)
	if clientID == "" || clientSecret == "" {
		return "", errors.New("oauth2: client_id and client_secret are required for client_credentials grant")
	}
	tu, err := m.c.endpoint()
	if err != nil {
		return "", err
	}
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tu,
		Scopes:       m.c.scopes(),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return accessToken(cc.Token(acommon.WithHTTPClient(ctx)))
}
