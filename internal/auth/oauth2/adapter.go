package oauth2

import "context"

// Adapter exposes a grant Method through the parent auth.Method interface.
type Adapter struct {
	M Method
}

func (a Adapter) Acquire(ctx context.Context) (string, error) {
	return a.M.Acquire(ctx)
}
