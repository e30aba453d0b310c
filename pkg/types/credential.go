package types

import "time"

// Credential is one CLOB L2 API credential in the rotation pool.
type Credential struct {
	ID         string    `json:"id"`
	APIKey     string    `json:"api_key"`
	Secret     string    `json:"secret"`
	Passphrase string    `json:"passphrase"`
	// ExhaustedUntil is zero while the credential is usable. Set with a
	// reason-specific cooldown when the venue rejects it.
	ExhaustedUntil time.Time `json:"exhausted_until,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// Exhausted reports whether the credential is cooling down at now.
func (c *Credential) Exhausted(now time.Time) bool {
	return !c.ExhaustedUntil.IsZero() && now.Before(c.ExhaustedUntil)
}

// CredentialPool is the persisted rotation state: the slice order is the
// round-robin order, ActiveIndex the credential currently configured on
// the execution client.
type CredentialPool struct {
	Credentials []Credential `json:"credentials"`
	ActiveIndex int          `json:"active_index"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
