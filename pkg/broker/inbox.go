package broker

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// maxPullBatch caps a single lease regardless of what the bridge asks for.
const maxPullBatch = 50

// handleInboxPull leases queued envelopes for a pull-mode workspace.
// Messages stay queued until acked.
func (s *Server) handleInboxPull(c *gin.Context) {
	var req wire.PullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if !s.timestampFresh(req.Timestamp) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "stale request"})
		return
	}

	ws, ok := s.pullModeWorkspace(c, req.WorkspaceID)
	if !ok {
		return
	}
	canonical := secure.CanonicalInboxPull(req.WorkspaceID, req.MaxMessages, req.Timestamp)
	if !s.verifyTenantSignature(ws, canonical, req.Signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	max := req.MaxMessages
	if max <= 0 || max > maxPullBatch {
		max = maxPullBatch
	}
	messages, err := s.queue.Lease(c.Request.Context(), req.WorkspaceID, max)
	if err != nil {
		logger.ErrorCF("broker", "inbox lease failed", map[string]interface{}{
			"workspace_id": req.WorkspaceID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if messages == nil {
		messages = []wire.InboxMessage{}
	}
	c.JSON(http.StatusOK, wire.PullResponse{Messages: messages})
}

// handleInboxAck removes delivered messages from the queue.
func (s *Server) handleInboxAck(c *gin.Context) {
	var req wire.AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if len(req.MessageIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_ids is required"})
		return
	}
	if !s.timestampFresh(req.Timestamp) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "stale request"})
		return
	}

	ws, ok := s.pullModeWorkspace(c, req.WorkspaceID)
	if !ok {
		return
	}
	canonical := secure.CanonicalInboxAck(req.WorkspaceID, req.MessageIDs, req.Timestamp)
	if !s.verifyTenantSignature(ws, canonical, req.Signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	removed, err := s.queue.Ack(c.Request.Context(), req.WorkspaceID, req.MessageIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acked": removed})
}

// pullModeWorkspace loads an active pull-mode workspace or writes the error
// response and reports false.
func (s *Server) pullModeWorkspace(c *gin.Context, workspaceID string) (*registry.Record, bool) {
	rec, err := s.workspaces.Get(c.Request.Context(), workspaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	if rec == nil || !rec.Active() {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not registered"})
		return nil, false
	}
	if rec.ServerURL != PullModeURL {
		c.JSON(http.StatusConflict, gin.H{"error": "workspace is not in pull mode"})
		return nil, false
	}
	return rec, true
}
