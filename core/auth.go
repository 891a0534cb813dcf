package core

import "time"

// Domain identifies a token signing domain
type Domain string

const (
	DomainAccess  Domain = "session:access"
	DomainRefresh Domain = "session:refresh"
	DomainBonding Domain = "bonding"
)

// DomainPolicy holds the secret and lifetime of one signing domain
type DomainPolicy struct {
	Secret []byte
	TTL    time.Duration
}

// Claims is the content of a signed token
type Claims struct {
	ID        string    // Unique token identifier (jti)
	Subject   string    // Identity the token was minted for
	Domain    Domain    // Signing domain, carried as audience
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token stops verifying
}

// SessionPackage is the pair of tokens handed to a client on sign-in or rotation
type SessionPackage struct {
	Access    string    `json:"auth"`
	Refresh   string    `json:"refresh"`
	ExpiresAt time.Time `json:"expiration"`
}

// SessionState is the lifecycle state of a ledger record
type SessionState string

const (
	SessionOpen   SessionState = "open"
	SessionClosed SessionState = "closed"
)

// SessionRecord is the ledger entry for one (access, refresh) tuple
type SessionRecord struct {
	Access           string
	Refresh          string
	Subject          string
	RefreshExpiresAt time.Time
	State            SessionState
}

// Usable reports whether the record is open and its refresh lifetime has not passed.
func (r SessionRecord) Usable(now time.Time) bool {
	return r.State == SessionOpen && now.Before(r.RefreshExpiresAt)
}
