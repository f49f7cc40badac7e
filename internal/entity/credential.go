package entity

import "time"

// Source identifiers for the two crawled systems.
const (
	SourceCFM         = "cfm"
	SourcePegaPlantao = "pegaplantao"
)

// Credential is a time-bounded authorization artifact for one source:
// the board's captcha-derived token or the marketplace session cookies.
type Credential struct {
	Source      string
	Token       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	ExpiryKnown bool
}

// Valid reports whether the credential can still be presented to the
// source. A credential with an unknown expiry stays valid until a request
// proves otherwise and it gets invalidated.
func (c *Credential) Valid(now time.Time) bool {
	if c == nil || c.Token == "" {
		return false
	}
	if !c.ExpiryKnown {
		return true
	}
	return now.Before(c.ExpiresAt)
}

// TTL returns the remaining lifetime, or zero when expired or unknown.
func (c *Credential) TTL(now time.Time) time.Duration {
	if c == nil || !c.ExpiryKnown {
		return 0
	}
	if ttl := c.ExpiresAt.Sub(now); ttl > 0 {
		return ttl
	}
	return 0
}
