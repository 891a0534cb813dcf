package ports

import "context"

// IdentityVerifier checks a third-party sign-in credential and returns the
// stable external id it was issued for
type IdentityVerifier interface {
	Verify(ctx context.Context, providerToken string) (string, error)
}
