package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// BrokerClient signs and sends the bridge's requests to the broker: inbox
// pull/ack in pull mode, outbound send in broker mode.
type BrokerClient struct {
	baseURL     string
	workspaceID string
	keys        *secure.KeySet
	http        *http.Client
	now         func() time.Time
}

func NewBrokerClient(baseURL, workspaceID string, keys *secure.KeySet) *BrokerClient {
	return &BrokerClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		workspaceID: workspaceID,
		keys:        keys,
		http:        &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
	}
}

// Register activates this workspace at the broker with the one-time auth
// code from the install page. serverURL is wire.PullModeURL for pull mode or
// an https callback for push.
func (c *BrokerClient) Register(ctx context.Context, serverURL, authCode string) error {
	req := wire.RegistrationRequest{
		WorkspaceID:      c.workspaceID,
		ServerURL:        serverURL,
		ServerPubKey:     secure.EncodeKey(c.keys.BoxPublic[:]),
		ServerSigningKey: secure.EncodeKey(c.keys.SignPublic),
		AuthCode:         authCode,
	}
	return c.post(ctx, "/register", &req, nil)
}

// Pull leases up to max queued envelopes.
func (c *BrokerClient) Pull(ctx context.Context, max int) ([]wire.InboxMessage, error) {
	ts := c.now().Unix()
	req := wire.PullRequest{
		WorkspaceID: c.workspaceID,
		MaxMessages: max,
		Timestamp:   ts,
		Signature:   secure.Sign(secure.CanonicalInboxPull(c.workspaceID, max, ts), c.keys.SignPrivate),
	}
	var resp wire.PullResponse
	if err := c.post(ctx, "/inbox/pull", &req, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Ack removes delivered messages from the broker's queue.
func (c *BrokerClient) Ack(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	ts := c.now().Unix()
	req := wire.AckRequest{
		WorkspaceID: c.workspaceID,
		MessageIDs:  messageIDs,
		Timestamp:   ts,
		Signature:   secure.Sign(secure.CanonicalInboxAck(c.workspaceID, messageIDs, ts), c.keys.SignPrivate),
	}
	return c.post(ctx, "/inbox/ack", &req, nil)
}

// Send relays an already-encrypted outbound action through the broker. The
// caller builds the encrypted body and routing; this signs and posts.
func (c *BrokerClient) Send(ctx context.Context, action, routing, encryptedBody, nonce string) error {
	ts := c.now().Unix()
	req := wire.SendRequest{
		WorkspaceID:   c.workspaceID,
		Action:        action,
		Routing:       routing,
		EncryptedBody: encryptedBody,
		Nonce:         nonce,
		Timestamp:     ts,
	}
	canonical := secure.CanonicalSendRequest(c.workspaceID, action, ts, encryptedBody, nonce, routing)
	req.Signature = secure.Sign(canonical, c.keys.SignPrivate)
	return c.post(ctx, "/send", &req, nil)
}

// Unregister asks the broker to deactivate this workspace.
func (c *BrokerClient) Unregister(ctx context.Context) error {
	ts := c.now().Unix()
	req := wire.UnregisterRequest{
		WorkspaceID: c.workspaceID,
		Timestamp:   ts,
		Signature:   secure.Sign(secure.CanonicalUnregister(c.workspaceID, ts), c.keys.SignPrivate),
	}
	return c.post(ctx, "/unregister", &req, nil)
}

func (c *BrokerClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bridge: encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bridge: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bridge: decode %s response: %w", path, err)
	}
	return nil
}
