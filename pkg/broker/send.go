package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"

	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// slackAPI is the slice of the platform client the send path uses; tests
// substitute a fake.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

// newSlackAPI is swapped out in tests.
var newSlackAPI = func(token string) slackAPI {
	return slack.New(token)
}

// handleSend relays an outbound action to the platform. The caller's
// signature is checked against the signing key stored at registration, never
// against anything in the request, then the authenticated box is opened with
// the broker's key and the stored server encryption key.
func (s *Server) handleSend(c *gin.Context) {
	var req wire.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if req.WorkspaceID == "" || req.Action == "" || req.EncryptedBody == "" || req.Nonce == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}
	if !s.timestampFresh(req.Timestamp) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "stale request"})
		return
	}

	ws, err := s.workspaces.Get(c.Request.Context(), req.WorkspaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if ws == nil || !ws.Active() {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not registered"})
		return
	}

	canonical := secure.CanonicalSendRequest(req.WorkspaceID, req.Action, req.Timestamp, req.EncryptedBody, req.Nonce, req.Routing)
	if !s.verifyTenantSignature(ws, canonical, req.Signature) {
		logger.WarnCF("broker", "send signature rejected", map[string]interface{}{
			"workspace_id": req.WorkspaceID,
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	body, err := s.openSendBody(ws, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "undecryptable body"})
		return
	}

	var routing wire.Routing
	if err := json.Unmarshal([]byte(req.Routing), &routing); err != nil || routing.Channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid routing"})
		return
	}

	if err := s.dispatch(c.Request.Context(), ws, req.Action, &routing, body); err != nil {
		var unknown *UnknownActionError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusBadRequest, gin.H{"error": unknown.Error()})
			return
		}
		logger.ErrorCF("broker", "platform call failed", map[string]interface{}{
			"workspace_id": req.WorkspaceID,
			"action":       req.Action,
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "platform call failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// openSendBody decrypts the authenticated box: sender is the workspace's
// registered encryption key, recipient is the broker.
func (s *Server) openSendBody(ws *registry.Record, req *wire.SendRequest) (*wire.ActionBody, error) {
	senderPub, err := secure.DecodeBoxKey(ws.ServerPubKey)
	if err != nil {
		return nil, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(req.EncryptedBody)
	if err != nil {
		return nil, err
	}
	nonce, err := base64.StdEncoding.DecodeString(req.Nonce)
	if err != nil {
		return nil, err
	}
	plaintext, err := secure.AuthBoxDecrypt(ciphertext, nonce, senderPub, s.keys.BoxPrivate)
	if err != nil {
		return nil, err
	}
	var body wire.ActionBody
	if err := json.Unmarshal(plaintext, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// dispatch maps an action name onto the platform API using the workspace's
// stored bot token.
func (s *Server) dispatch(ctx context.Context, ws *registry.Record, action string, routing *wire.Routing, body *wire.ActionBody) error {
	api := newSlackAPI(ws.BotToken)

	switch action {
	case wire.ActionPostMessage:
		opts := []slack.MsgOption{slack.MsgOptionText(body.Text, false)}
		if routing.ThreadTS != "" {
			opts = append(opts, slack.MsgOptionTS(routing.ThreadTS))
		}
		_, _, err := api.PostMessageContext(ctx, routing.Channel, opts...)
		return err

	case wire.ActionAddReaction:
		return api.AddReactionContext(ctx, body.Emoji, slack.NewRefToMessage(routing.Channel, routing.MessageTS))

	default:
		return &UnknownActionError{Action: action}
	}
}

// UnknownActionError rejects actions outside the allowed set; the broker
// relays a fixed vocabulary, not arbitrary API methods.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return "unknown action: " + e.Action
}
