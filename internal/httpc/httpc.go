package httpc

import (
	"crypto/tls"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgent is sent on every request unless overridden.
const DefaultUserAgent = "funcprov"

// Httpc builds resty clients sharing one TLS and timeout policy. The same factory serves the
// archive downloads and the ARM metadata requests, so a configured timeout applies to both.
type Httpc struct {
	TLSConfig *tls.Config
	// Timeout bounds a whole request including reading the body. Zero disables it.
	Timeout   time.Duration
	UserAgent string
}

// New returns a resty.Client configured according to the receiver's settings.
// Defaults: MinVersion TLS1.3 when a TLS config is given with MinVersion zero.
func (h *Httpc) New() *resty.Client {
	c := resty.New()
	ua := strings.TrimSpace(h.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	c.SetHeader("User-Agent", ua)
	if h.Timeout > 0 {
		c.SetTimeout(h.Timeout)
	}
	cfg := h.TLSConfig
	if cfg == nil {
		return c
	}
	cfg = cfg.Clone()
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS13
	}
	c.SetTLSClientConfig(cfg)
	return c
}

// ParseTLSVersion converts "1.2", "12", "tls1.2", "tls12" (and the 1.0/1.1/1.3 variants) to the
// crypto/tls constant. Unknown or empty strings return 0.
func ParseTLSVersion(version string) uint16 {
	switch strings.ToLower(strings.TrimSpace(version)) {
	case "1.0", "10", "tls1.0", "tls10":
		return tls.VersionTLS10
	case "1.1", "11", "tls1.1", "tls11":
		return tls.VersionTLS11
	case "1.2", "12", "tls1.2", "tls12":
		return tls.VersionTLS12
	case "1.3", "13", "tls1.3", "tls13":
		return tls.VersionTLS13
	default:
		return 0
	}
}

// TLSConfig builds a tls.Config from textual bounds. It returns nil when nothing is constrained,
// leaving resty's transport defaults in place.
func TLSConfig(minVersion, maxVersion string, insecure bool) *tls.Config {
	minV := ParseTLSVersion(minVersion)
	maxV := ParseTLSVersion(maxVersion)
	if minV == 0 && maxV == 0 && !insecure {
		return nil
	}
	cfg := &tls.Config{MinVersion: minV, MaxVersion: maxV}
	if insecure {
		// #nosec G402 -- only when explicitly configured, e.g. for a local Kudu emulator
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
