package oauth2

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"

	acommon "github.com/loykin/funcprov/internal/auth/common"
)

// PasswordConfig configures the Resource Owner Password Credentials grant for a user account
// without MFA, e.g. a build account.
type PasswordConfig struct {
	App      `mapstructure:",squash"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ToMap returns a spec compatible with the oauth2 provider factory.
func (c PasswordConfig) ToMap() map[string]interface{} {
	sub := c.App.toMap()
	sub["username"] = c.Username
	sub["password"] = c.Password
	return map[string]interface{}{"grant_type": GrantPassword, "grant_config": sub}
}

type passwordMethod struct{ c PasswordConfig }

func (m passwordMethod) Acquire(ctx context.Context) (string, error) {
	clientID := strings.TrimSpace(m.c.ClientID)
	username := strings.TrimSpace(m.c.Username)
	if clientID == "" || username == "" || m.c.Password == "" {
		return "", errors.New("oauth2: client_id, username and password are required for password grant")
	}
	tu, err := m.c.endpoint()
	if err != nil {
		return "", err
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: strings.TrimSpace(m.c.ClientSec),
		Endpoint:     oauth2.Endpoint{TokenURL: tu, AuthStyle: oauth2.AuthStyleInParams},
		Scopes:       m.c.scopes(),
	}
	return accessToken(cfg.PasswordCredentialsToken(acommon.WithHTTPClient(ctx), username, m.c.Password))
}
