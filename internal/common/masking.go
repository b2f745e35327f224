package common

import (
	"regexp"
	"strings"
)

// MaskedValue replaces any secret rendered into logs.
const MaskedValue = "***MASKED***"

// SensitivePattern describes one kind of secret that must never reach a log sink.
type SensitivePattern struct {
	Name        string
	Regex       *regexp.Regexp // matched against free text
	Replacement string
	Keys        []string // attribute keys whose values are always masked (case-insensitive)
}

// DefaultSensitivePatterns covers the credentials funcprov handles: bearer tokens for the SCM
// site, OAuth2 client secrets, and SAS signatures that Kudu sometimes appends to redirect URLs.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "Bearer " + MaskedValue,
	},
	{
		Name:        "authorization",
		Regex:       regexp.MustCompile(`(?i)(authorization)(["']?\s*[:=]\s*["']?)([^"',}\]\s]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"authorization"},
	},
	{
		Name:        "token",
		Regex:       regexp.MustCompile(`(?i)((?:access[_-]?|auth[_-]?)?token)(["']?\s*[:=]\s*["']?)([^"',}\]\s&]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"token", "access_token", "auth_token", "access-token", "auth-token"},
	},
	{
		Name:        "secret",
		Regex:       regexp.MustCompile(`(?i)((?:client[_-]?)?secret)(["']?\s*[:=]\s*["']?)([^"',}\]\s&]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"secret", "client_secret", "client-secret", "jwt_secret"},
	},
	{
		Name:        "sas_signature",
		Regex:       regexp.MustCompile(`(?i)([?&]sig=)([^&\s"]+)`),
		Replacement: "${1}" + MaskedValue,
	},
}

// Masker rewrites log attributes and strings so that secrets are not emitted.
type Masker struct {
	patterns []SensitivePattern
	enabled  bool
}

// NewMasker creates a masker with DefaultSensitivePatterns.
func NewMasker() *Masker {
	return &Masker{patterns: DefaultSensitivePatterns, enabled: true}
}

// NewMaskerWithPatterns creates a masker with custom patterns.
func NewMaskerWithPatterns(patterns []SensitivePattern) *Masker {
	return &Masker{patterns: patterns, enabled: true}
}

func (m *Masker) SetEnabled(enabled bool) { m.enabled = enabled }

func (m *Masker) IsEnabled() bool { return m != nil && m.enabled }

// MaskString masks every sensitive fragment found in input.
func (m *Masker) MaskString(input string) string {
	if !m.IsEnabled() {
		return input
	}
	out := input
	for _, p := range m.patterns {
		if p.Regex == nil {
			continue
		}
		out = p.Regex.ReplaceAllString(out, p.Replacement)
	}
	return out
}

// IsSensitiveKey reports whether an attribute key always carries a secret.
func (m *Masker) IsSensitiveKey(key string) bool {
	lk := strings.ToLower(strings.TrimSpace(key))
	for _, p := range m.patterns {
		for _, k := range p.Keys {
			if lk == k {
				return true
			}
		}
	}
	return false
}

// MaskValue masks value when key is sensitive, and scrubs secrets out of string values otherwise.
// Non-string values are returned unchanged.
func (m *Masker) MaskValue(key string, value any) any {
	if !m.IsEnabled() {
		return value
	}
	if m.IsSensitiveKey(key) {
		return MaskedValue
	}
	switch v := value.(type) {
	case string:
		return m.MaskString(v)
	case error:
		if v == nil {
			return value
		}
		return m.MaskString(v.Error())
	default:
		return value
	}
}

var globalMasker = NewMasker()

// GetGlobalMasker returns the process masker used by loggers created without an explicit one.
func GetGlobalMasker() *Masker { return globalMasker }

// EnableMasking toggles the process masker.
func EnableMasking(enabled bool) { globalMasker.SetEnabled(enabled) }

// MaskSensitiveData masks input using the process masker.
func MaskSensitiveData(input string) string { return globalMasker.MaskString(input) }
