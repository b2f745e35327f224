package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/loykin/funcprov/internal/auth/oauth2"
	"github.com/loykin/funcprov/internal/auth/static"
)

// Method is the plugin interface for a credential source.
// Acquire returns the bare access token; callers add the "Bearer " scheme.
type Method interface {
	Acquire(ctx context.Context) (value string, err error)
}

// Factory builds a Method instance from a loosely-typed spec map.
type Factory func(spec map[string]interface{}) (Method, error)

// In-memory registry of provider factories keyed by normalized type.
var providers = map[string]Factory{}

func normalizeKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register registers a provider factory under a type key (e.g., "oauth2", "static").
func Register(typ string, f Factory) {
	key := normalizeKey(typ)
	if key == "" || f == nil {
		return
	}
	providers[key] = f
}

// AcquireFromMap builds a Method from the provider type and spec and acquires a token.
func AcquireFromMap(ctx context.Context, typ string, spec map[string]interface{}) (string, error) {
	f, ok := providers[normalizeKey(typ)]
	if !ok {
		return "", errors.New("auth: unsupported provider type: " + typ)
	}
	m, err := f(spec)
	if err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	v, err := m.Acquire(ctx)
	if err != nil {
		return "", err
	}
	return Normalize(v), nil
}

// AcquireAndStoreWithName is AcquireFromMap plus caching the token under name.
func AcquireAndStoreWithName(ctx context.Context, typ string, name string, spec map[string]interface{}) (string, error) {
	v, err := AcquireFromMap(ctx, typ, spec)
	if err == nil {
		SetToken(name, v)
	}
	return v, err
}

func init() {
	Register("oauth2", func(spec map[string]interface{}) (Method, error) {
		var c oauth2.Auth2Config
		if err := mapstructure.Decode(spec, &c); err != nil {
			return nil, err
		}
		m, err := c.GetGrantMethod()
		if err != nil {
			return nil, err
		}
		return oauth2.Adapter{M: m}, nil
	})

	Register("static", func(spec map[string]interface{}) (Method, error) {
		var c static.Config
		if err := mapstructure.Decode(spec, &c); err != nil {
			return nil, err
		}
		return static.Method{C: c}, nil
	})
}
