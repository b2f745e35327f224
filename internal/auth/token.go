package auth

import (
	"strings"
	"sync"
)

type Token struct {
	Value string
}

// TokenStore caches acquired tokens by logical name.
type TokenStore struct {
	mu     sync.RWMutex
	byName map[string]Token
}

func (s *TokenStore) set(name, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || value == "" {
		return
	}
	s.mu.Lock()
	s.byName[name] = Token{Value: value}
	s.mu.Unlock()
}

func (s *TokenStore) get(name string) (value string, ok bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	s.mu.RLock()
	tok, exists := s.byName[name]
	s.mu.RUnlock()
	if !exists {
		return "", false
	}
	return tok.Value, true
}

func (s *TokenStore) remove(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	s.mu.Lock()
	delete(s.byName, name)
	s.mu.Unlock()
}

func (s *TokenStore) clear() {
	s.mu.Lock()
	s.byName = make(map[string]Token)
	s.mu.Unlock()
}

var tokens = &TokenStore{byName: make(map[string]Token)}

// SetToken stores value under name (case-insensitive). Empty inputs are ignored.
func SetToken(name, value string) { tokens.set(name, value) }

// GetToken returns the token stored under name.
func GetToken(name string) (string, bool) { return tokens.get(name) }

// ForgetToken drops a cached token.
func ForgetToken(name string) { tokens.remove(name) }

// ClearTokens drops every cached token.
func ClearTokens() { tokens.clear() }
