package ports

import "context"

// TokenVerifier turns a bearer credential into a principal id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}
