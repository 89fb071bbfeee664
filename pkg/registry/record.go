// Package registry holds the broker's durable per-workspace state: one
// record per tenant, its pending/active/inactive lifecycle, and the bot
// token encrypted at rest.
package registry

import "time"

// Status of a workspace record.
const (
	StatusPending  = "pending"
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Record is one tenant. Invariants: active records carry server URL and both
// public keys and no auth-code hash; non-active records carry none of the
// three. BotToken holds ciphertext in the store and plaintext only on
// records returned by Service.Get.
type Record struct {
	WorkspaceID      string    `json:"workspace_id"`
	TeamName         string    `json:"team_name"`
	Status           string    `json:"status"`
	ServerURL        string    `json:"server_url,omitempty"`
	ServerPubKey     string    `json:"server_pubkey,omitempty"`
	ServerSigningKey string    `json:"server_signing_pubkey,omitempty"`
	BotToken         string    `json:"bot_token,omitempty"`
	AuthCodeHash     string    `json:"auth_code_hash,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Version increments on every store write; conditional Puts compare it
	// so a concurrent activation loses instead of silently re-keying.
	Version int64 `json:"version"`
}

// Active reports whether the record can receive forwarded events.
func (r *Record) Active() bool {
	return r != nil && r.Status == StatusActive
}
