package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when a JWT access token is past its exp claim.
var ErrTokenExpired = errors.New("auth: token expired")

// Auth is a named credential source from configuration.
type Auth struct {
	Type   string                 `mapstructure:"type" yaml:"type"`
	Name   string                 `mapstructure:"name" yaml:"name"`
	Config map[string]interface{} `mapstructure:"config" yaml:"config"`
}

// Acquire returns a token for this source, reusing a cached one while it has not expired.
func (a *Auth) Acquire(ctx context.Context) (string, error) {
	if a == nil {
		return "", nil
	}
	pt := strings.TrimSpace(a.Type)
	if pt == "" {
		return "", fmt.Errorf("auth: missing type")
	}
	name := strings.TrimSpace(a.Name)
	if name == "" {
		name = pt
	}
	if v, ok := GetToken(name); ok {
		if err := CheckExpiry(v, time.Now()); err == nil {
			return v, nil
		}
		ForgetToken(name)
	}
	v, err := AcquireAndStoreWithName(ctx, pt, name, a.Config)
	if err != nil {
		return "", err
	}
	if err := CheckExpiry(v, time.Now()); err != nil {
		ForgetToken(name)
		return "", err
	}
	return v, nil
}

// Normalize strips surrounding whitespace and a leading "Bearer " scheme.
func Normalize(token string) string {
	t := strings.TrimSpace(token)
	if len(t) > 7 && strings.EqualFold(t[:7], "bearer ") {
		t = strings.TrimSpace(t[7:])
	}
	return t
}

// CheckExpiry fails fast on a JWT whose exp claim is before now. Opaque tokens and JWTs without
// exp pass. The signature is not verified; the server is the authority on validity.
func CheckExpiry(token string, now time.Time) error {
	t := Normalize(token)
	if strings.Count(t, ".") != 2 {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !now.Before(exp.Time) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
