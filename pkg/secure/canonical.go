package secure

import (
	"fmt"
	"strings"
)

// Canonical strings are the only bytes ever signed or verified. Signing raw
// JSON would let a forger re-serialize a semantically equal payload into
// different bytes; these builders pin field order and separators per message
// class, and every class includes the timestamp so a signature cannot be
// replayed under a different one.

// CanonicalEnvelope covers a broker-to-server event envelope.
func CanonicalEnvelope(workspaceID, encrypted string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", workspaceID, encrypted, timestamp))
}

// CanonicalSendRequest covers a server-to-broker outbound action.
func CanonicalSendRequest(workspaceID, action string, timestamp int64, encryptedBody, nonce, routing string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d|%s|%s|%s", workspaceID, action, timestamp, encryptedBody, nonce, routing))
}

// CanonicalInboxPull covers a pull-mode lease request. The literal class tag
// keeps a pull signature from doubling as an ack signature: without it,
// pull("T1", 5, ts) and ack("T1", ["5"], ts) would share bytes.
func CanonicalInboxPull(workspaceID string, maxMessages int, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s|pull|%d|%d", workspaceID, maxMessages, timestamp))
}

// CanonicalInboxAck covers a pull-mode ack request. Message ids are joined
// in request order; the broker acks exactly the ids the bridge signed.
func CanonicalInboxAck(workspaceID string, messageIDs []string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s|ack|%s|%d", workspaceID, strings.Join(messageIDs, ","), timestamp))
}

// CanonicalUnregister covers a workspace unlink request. The literal class
// tag keeps it from colliding with any other two-field form.
func CanonicalUnregister(workspaceID string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s|unregister|%d", workspaceID, timestamp))
}
