// Package wire defines the JSON payloads that cross the broker boundary and
// the bridge's local loopback API, plus the field validation applied before
// any crypto or network work.
package wire

// Envelope is a broker-to-server delivery: the sealed platform event plus
// the detached signature over its canonical form.
type Envelope struct {
	WorkspaceID string `json:"workspace_id"`
	Encrypted   string `json:"encrypted"`
	Timestamp   int64  `json:"timestamp"`
	Signature   string `json:"signature"`
}

// InboxMessage is an Envelope queued for pull-mode delivery. MessageID is
// unique per delivery attempt and is the dedup and ack key.
type InboxMessage struct {
	MessageID string `json:"message_id"`
	Envelope
}

// SendRequest is a server-to-broker outbound action. Routing stays
// unencrypted because the broker needs it to address the platform call; the
// action payload itself travels in the authenticated box.
type SendRequest struct {
	WorkspaceID   string `json:"workspace_id"`
	Action        string `json:"action"`
	Routing       string `json:"routing"`
	EncryptedBody string `json:"encrypted_body"`
	Nonce         string `json:"nonce"`
	Timestamp     int64  `json:"timestamp"`
	Signature     string `json:"signature"`
}

// PullRequest leases up to MaxMessages queued envelopes.
type PullRequest struct {
	WorkspaceID string `json:"workspace_id"`
	MaxMessages int    `json:"max_messages"`
	Timestamp   int64  `json:"timestamp"`
	Signature   string `json:"signature"`
}

// PullResponse returns the leased batch. Messages stay queued until acked.
type PullResponse struct {
	Messages []InboxMessage `json:"messages"`
}

// AckRequest removes delivered messages from the workspace inbox.
type AckRequest struct {
	WorkspaceID string   `json:"workspace_id"`
	MessageIDs  []string `json:"message_ids"`
	Timestamp   int64    `json:"timestamp"`
	Signature   string   `json:"signature"`
}

// RegistrationRequest activates a pending workspace: the one-time auth code
// from the OAuth install proves control of the workspace, the keys and URL
// tell the broker how to reach and encrypt for the server.
type RegistrationRequest struct {
	WorkspaceID      string `json:"workspace_id"`
	ServerURL        string `json:"server_url"`
	ServerPubKey     string `json:"server_pubkey"`
	ServerSigningKey string `json:"server_signing_pubkey"`
	AuthCode         string `json:"auth_code"`
}

// UnregisterRequest deactivates a workspace. Signed so only the holder of
// the registered signing key can unlink it.
type UnregisterRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Timestamp   int64  `json:"timestamp"`
	Signature   string `json:"signature"`
}

// BrokerKeys is the key-discovery response: what a server needs to seal for
// and verify signatures from this broker.
type BrokerKeys struct {
	EncryptionPubKey string `json:"encryption_pubkey"`
	SigningPubKey    string `json:"signing_pubkey"`
}

// PullModeURL is the server_url a pull-mode tenant registers instead of a
// push callback: deliveries go to the inbox, not over the network.
const PullModeURL = "inbox"

// Action names accepted on the outbound send path.
const (
	ActionPostMessage = "chat.postMessage"
	ActionAddReaction = "reactions.add"
)

// ActionBody is the plaintext inside an outbound authenticated box.
type ActionBody struct {
	Text  string `json:"text,omitempty"`
	Emoji string `json:"emoji,omitempty"`
}

// Routing addresses a platform call: channel always, thread timestamp for
// threaded replies, message timestamp for reactions.
type Routing struct {
	Channel   string `json:"channel"`
	ThreadTS  string `json:"thread_ts,omitempty"`
	MessageTS string `json:"message_ts,omitempty"`
}

// Local loopback API payloads (bridge side).

type LocalSendRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type LocalReplyRequest struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

type LocalReactRequest struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
	Emoji     string `json:"emoji"`
}
