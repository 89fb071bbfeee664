// Package broker implements the relay's HTTP surface: the platform event
// webhook, OAuth install, workspace registration, outbound send relay,
// pull-mode inbox, key discovery, and the forwarder that seals events toward
// tenant servers. Handlers are stateless per request; the registry and inbox
// are the only cross-request state.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/burrowlabs/burrow/pkg/inbox"
	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// PullModeURL keeps the "active implies server_url set" invariant for
// pull-mode tenants while routing deliveries into the inbox.
const PullModeURL = wire.PullModeURL

var (
	ErrWorkspaceNotActive = errors.New("broker: workspace not active")
	ErrMissingServerConf  = errors.New("broker: missing server configuration")
)

// Forwarder seals inbound platform events into signed envelopes and delivers
// them: POST to the tenant's callback in push mode, queue in pull mode. It
// never retries; the caller owns redelivery policy.
type Forwarder struct {
	keys   *secure.KeySet
	queue  inbox.Queue
	client *http.Client
	now    func() time.Time
}

func NewForwarder(keys *secure.KeySet, queue inbox.Queue) *Forwarder {
	return &Forwarder{
		keys:   keys,
		queue:  queue,
		client: &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
	}
}

// seal builds the signed envelope for one event.
func (f *Forwarder) seal(event []byte, serverPubKey string) (*wire.Envelope, error) {
	recipient, err := secure.DecodeBoxKey(serverPubKey)
	if err != nil {
		return nil, err
	}
	ciphertext, err := secure.SealedEncrypt(event, recipient)
	if err != nil {
		return nil, err
	}
	env := &wire.Envelope{
		Encrypted: secure.EncodeKey(ciphertext),
		Timestamp: f.now().Unix(),
	}
	return env, nil
}

// Forward delivers one platform event to a workspace. Preconditions fail
// locally with zero network calls: the workspace must be active with both a
// server URL and an encryption key on record.
func (f *Forwarder) Forward(ctx context.Context, event []byte, ws *registry.Record) (bool, int, error) {
	if !ws.Active() {
		return false, 0, ErrWorkspaceNotActive
	}
	if ws.ServerURL == "" || ws.ServerPubKey == "" {
		return false, 0, ErrMissingServerConf
	}

	env, err := f.seal(event, ws.ServerPubKey)
	if err != nil {
		return false, 0, err
	}
	env.WorkspaceID = ws.WorkspaceID
	canonical := secure.CanonicalEnvelope(env.WorkspaceID, env.Encrypted, env.Timestamp)
	env.Signature = secure.Sign(canonical, f.keys.SignPrivate)

	if ws.ServerURL == PullModeURL {
		msg := wire.InboxMessage{MessageID: uuid.NewString(), Envelope: *env}
		if err := f.queue.Push(ctx, ws.WorkspaceID, msg); err != nil {
			return false, 0, err
		}
		logger.DebugCF("forwarder", "event queued", map[string]interface{}{
			"workspace_id": ws.WorkspaceID,
			"message_id":   msg.MessageID,
		})
		return true, 0, nil
	}

	return f.push(ctx, env, ws)
}

func (f *Forwarder) push(ctx context.Context, env *wire.Envelope, ws *registry.Record) (bool, int, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return false, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.ServerURL, bytes.NewReader(body))
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Burrow-Signature", env.Signature)
	req.Header.Set("X-Burrow-Timestamp", fmt.Sprintf("%d", env.Timestamp))

	resp, err := f.client.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("push to %s: %w", ws.WorkspaceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, resp.StatusCode, fmt.Errorf("push to %s: status %d", ws.WorkspaceID, resp.StatusCode)
	}
	return true, resp.StatusCode, nil
}
