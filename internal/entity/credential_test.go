package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredentialValid(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		cred *Credential
		want bool
	}{
		{"nil credential", nil, false},
		{"empty token", &Credential{Source: SourceCFM}, false},
		{"unknown expiry stays valid", &Credential{Token: "t"}, true},
		{"before expiry", &Credential{Token: "t", ExpiresAt: now.Add(time.Minute), ExpiryKnown: true}, true},
		{"at expiry", &Credential{Token: "t", ExpiresAt: now, ExpiryKnown: true}, false},
		{"past expiry", &Credential{Token: "t", ExpiresAt: now.Add(-time.Minute), ExpiryKnown: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cred.Valid(now))
		})
	}
}

func TestCredentialTTL(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	var nilCred *Credential
	assert.Zero(t, nilCred.TTL(now))
	assert.Zero(t, (&Credential{Token: "t"}).TTL(now), "unknown expiry has no TTL")

	live := &Credential{Token: "t", ExpiresAt: now.Add(30 * time.Minute), ExpiryKnown: true}
	assert.Equal(t, 30*time.Minute, live.TTL(now))

	expired := &Credential{Token: "t", ExpiresAt: now.Add(-time.Minute), ExpiryKnown: true}
	assert.Zero(t, expired.TTL(now))
}
