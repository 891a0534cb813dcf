package ports

import "github.com/layer-3/keeper/core"

// Tokenizer mints and checks signed tokens in isolated signing domains
type Tokenizer interface {
	Mint(domain core.Domain, subject string) (string, core.Claims, error)
	Verify(domain core.Domain, token string) (core.Claims, error)

	// Decode extracts claims without checking signature or expiry.
	// Its output must never be treated as authenticated on its own.
	Decode(token string) (core.Claims, error)
}
