package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimsKey is the gin context key holding verified jwt.MapClaims.
const ClaimsKey = "jwt_claims"

// VerifyConfig configures bearer verification for the listener. Only HS256 tokens are accepted.
type VerifyConfig struct {
	Secret          []byte
	RequireJTI      bool
	AllowedIssuer   string
	AllowedAudience string
	ClockSkew       time.Duration
}

// JWTMiddleware rejects requests without a valid HS256 bearer token.
func JWTMiddleware(cfg VerifyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(cfg.Secret) == 0 {
			abort(c, http.StatusInternalServerError, "jwt secret not configured")
			return
		}
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			abort(c, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		raw := strings.TrimSpace(header[len("Bearer "):])
		tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return cfg.Secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(cfg.ClockSkew))
		if err != nil || !tok.Valid {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, http.StatusUnauthorized, "invalid token claims")
			return
		}
		if err := validateClaims(claims, cfg, time.Now()); err != nil {
			abort(c, http.StatusUnauthorized, err.Error())
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the claims stored by JWTMiddleware, or nil.
func ClaimsFromContext(c *gin.Context) jwt.MapClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(jwt.MapClaims)
	return claims
}

func validateClaims(c jwt.MapClaims, cfg VerifyConfig, now time.Time) error {
	if v, ok := c["exp"]; ok {
		if tt, err := toTime(v); err == nil && now.After(tt.Add(cfg.ClockSkew)) {
			return errors.New("token expired")
		}
	}
	if v, ok := c["nbf"]; ok {
		if tt, err := toTime(v); err == nil && now.Add(cfg.ClockSkew).Before(tt) {
			return errors.New("token not yet valid")
		}
	}
	if cfg.RequireJTI {
		if _, ok := c["jti"]; !ok {
			return errors.New("token missing jti")
		}
	}
	if cfg.AllowedIssuer != "" {
		if iss, _ := c["iss"].(string); iss != cfg.AllowedIssuer {
			return errors.New("invalid iss")
		}
	}
	if cfg.AllowedAudience != "" {
		aud, err := c.GetAudience()
		if err != nil {
			return errors.New("invalid aud")
		}
		found := false
		for _, a := range aud {
			if a == cfg.AllowedAudience {
				found = true
				break
			}
		}
		if !found {
			return errors.New("invalid aud")
		}
	}
	return nil
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		return time.Unix(int64(t), 0), nil
	case int64:
		return time.Unix(t, 0), nil
	case string:
		if n, err := time.Parse(time.RFC3339, t); err == nil {
			return n, nil
		}
		return time.Time{}, fmt.Errorf("unsupported time string")
	default:
		return time.Time{}, fmt.Errorf("unsupported time type: %T", v)
	}
}

// IssueConfig mints listener tokens for callers such as a browser extension or a script.
type IssueConfig struct {
	Secret   string
	Subject  string
	Issuer   string
	Audience []string
	ID       string
	TTL      time.Duration
}

// Issue returns a signed HS256 token. TTL defaults to five minutes.
func (c IssueConfig) Issue(now time.Time) (string, error) {
	if c.Secret == "" {
		return "", errors.New("server: jwt secret required")
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if c.Subject != "" {
		claims["sub"] = c.Subject
	}
	if c.Issuer != "" {
		claims["iss"] = c.Issuer
	}
	if len(c.Audience) > 0 {
		claims["aud"] = c.Audience
	}
	if c.ID != "" {
		claims["jti"] = c.ID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.Secret))
}
