package common

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// HTTP client used by token providers, so token requests honor the same TLS and timeout
// settings as downloads.
var (
	mu         sync.RWMutex
	httpClient *http.Client
)

// SetHTTPClient sets the client used by token providers. nil restores http.DefaultClient.
func SetHTTPClient(c *http.Client) {
	mu.Lock()
	httpClient = c
	mu.Unlock()
}

// HTTPClient returns the configured client or nil.
func HTTPClient() *http.Client {
	mu.RLock()
	defer mu.RUnlock()
	return httpClient
}

// WithHTTPClient attaches the configured client to ctx for golang.org/x/oauth2.
func WithHTTPClient(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if c := HTTPClient(); c != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c)
	}
	return ctx
}
