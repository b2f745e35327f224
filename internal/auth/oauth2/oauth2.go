package oauth2

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Grant names accepted in grant_type.
const (
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
)

// Auth2Config is the oauth2 provider spec: a grant name plus that grant's settings.
type Auth2Config struct {
	GrantType   string                 `mapstructure:"grant_type"`
	GrantConfig map[string]interface{} `mapstructure:"grant_config"`
}

var grants = map[string]func(map[string]interface{}) (Method, error){
	GrantClientCredentials: func(sub map[string]interface{}) (Method, error) {
		var c ClientCredentialsConfig
		err := decode(sub, &c)
		return clientCredentialsMethod{c: c}, err
	},
	GrantPassword: func(sub map[string]interface{}) (Method, error) {
		var c PasswordConfig
		err := decode(sub, &c)
		return passwordMethod{c: c}, err
	},
}

func decode(sub map[string]interface{}, out interface{}) error {
	if err := mapstructure.Decode(sub, out); err != nil {
		return fmt.Errorf("auth: oauth2 grant_config: %w", err)
	}
	return nil
}

// GetGrantMethod builds the grant-specific Method from GrantType and GrantConfig.
func (c Auth2Config) GetGrantMethod() (Method, error) {
	gt := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c.GrantType)), "-", "_")
	if gt == "" {
		return nil, fmt.Errorf("auth: oauth2 grant_type is required")
	}
	if c.GrantConfig == nil {
		return nil, fmt.Errorf("auth: oauth2 grant_config is required")
	}
	build, ok := grants[gt]
	if !ok {
		return nil, fmt.Errorf("auth: unsupported oauth2 grant_type: %s", gt)
	}
	m, err := build(c.GrantConfig)
	if err != nil {
		return nil, err
	}
	return m, nil
}
