package broker

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/burrowlabs/burrow/pkg/logger"
)

// handleSlackEvents is the platform webhook. The platform's own request
// signature and timestamp are verified before any other work: a request
// outside the freshness window or with a bad signature never reaches the
// forwarder.
func (s *Server) handleSlackEvents(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ts, err := strconv.ParseInt(c.GetHeader("X-Slack-Request-Timestamp"), 10, 64)
	if err != nil || !s.timestampFresh(ts) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "stale request"})
		return
	}

	verifier, err := slack.NewSecretsVerifier(c.Request.Header, s.cfg.SlackSigningSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	verifier.Write(body)
	if err := verifier.Ensure(); err != nil {
		logger.WarnCF("broker", "webhook signature rejected", map[string]interface{}{
			"path": c.Request.URL.Path,
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unparseable event"})
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unparseable challenge"})
			return
		}
		c.String(http.StatusOK, challenge.Challenge)

	case slackevents.CallbackEvent:
		s.forwardEvent(c, event.TeamID, body)
		c.JSON(http.StatusOK, gin.H{"ok": true})

	default:
		// Anything else is acknowledged and dropped.
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// forwardEvent seals the raw event payload toward the workspace's server.
// Delivery failures are logged, never surfaced to the platform: a 5xx here
// would make the platform retry against a tenant we already know is broken.
func (s *Server) forwardEvent(c *gin.Context, teamID string, body []byte) {
	if teamID == "" {
		logger.WarnC("broker", "event callback without team id")
		return
	}
	ws, err := s.workspaces.Get(c.Request.Context(), teamID)
	if err != nil {
		logger.ErrorCF("broker", "registry lookup failed", map[string]interface{}{
			"workspace_id": teamID,
		})
		return
	}
	if ws == nil {
		logger.WarnCF("broker", "event for unknown workspace", map[string]interface{}{
			"workspace_id": teamID,
		})
		return
	}

	ok, status, err := s.forwarder.Forward(c.Request.Context(), body, ws)
	if !ok {
		logger.WarnCF("broker", "event delivery failed", map[string]interface{}{
			"workspace_id": teamID,
			"http_status":  status,
			"error":        err.Error(),
		})
	}
}
