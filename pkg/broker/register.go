package broker

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// handleRegister activates a pending workspace when the caller presents the
// matching one-time auth code plus well-formed key material. Activation of
// an already-active workspace is rejected; the tenant must unregister first.
func (s *Server) handleRegister(c *gin.Context) {
	var req wire.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if req.WorkspaceID == "" || req.AuthCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id and auth_code are required"})
		return
	}
	if msg := validateRegistration(&req); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	ws, err := s.workspaces.Get(c.Request.Context(), req.WorkspaceID)
	if err != nil {
		logger.ErrorCF("broker", "registry lookup failed", map[string]interface{}{
			"workspace_id": req.WorkspaceID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	// Activation clears the auth code hash, so an already-active workspace
	// must conflict here rather than fall through to a code mismatch.
	if ws.Active() {
		c.JSON(http.StatusConflict, gin.H{"error": "workspace already registered"})
		return
	}
	if !registry.CheckAuthCode(ws, req.AuthCode) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid auth code"})
		return
	}

	activated, err := s.workspaces.Activate(c.Request.Context(), req.WorkspaceID, req.ServerURL, req.ServerPubKey, req.ServerSigningKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if activated == nil {
		// Already active, or we lost a race to a concurrent registration.
		c.JSON(http.StatusConflict, gin.H{"error": "workspace already registered"})
		return
	}

	logger.InfoCF("broker", "workspace activated", map[string]interface{}{
		"workspace_id": req.WorkspaceID,
		"pull_mode":    req.ServerURL == PullModeURL,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// validateRegistration checks key material and the callback URL before any
// registry write. Returns an empty string when valid.
func validateRegistration(req *wire.RegistrationRequest) string {
	if _, err := secure.DecodeBoxKey(req.ServerPubKey); err != nil {
		return "server_pubkey is not a valid key"
	}
	if _, err := secure.DecodeSignPublicKey(req.ServerSigningKey); err != nil {
		return "server_signing_pubkey is not a valid key"
	}
	if req.ServerURL == PullModeURL {
		return ""
	}
	u, err := url.Parse(req.ServerURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "server_url must be https or \"inbox\" for pull mode"
	}
	return ""
}

// handleUnregister deactivates a workspace. The request is signed with the
// registered server signing key, so only the current key holder can unlink.
func (s *Server) handleUnregister(c *gin.Context) {
	var req wire.UnregisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
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
	if !s.verifyTenantSignature(ws, secure.CanonicalUnregister(req.WorkspaceID, req.Timestamp), req.Signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	if _, err := s.workspaces.Deactivate(c.Request.Context(), req.WorkspaceID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	logger.InfoCF("broker", "workspace deactivated", map[string]interface{}{
		"workspace_id": req.WorkspaceID,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// verifyTenantSignature checks a signature against the workspace's stored
// signing key. A record with no key on file verifies nothing.
func (s *Server) verifyTenantSignature(ws *registry.Record, canonical []byte, signature string) bool {
	pub, err := secure.DecodeSignPublicKey(ws.ServerSigningKey)
	if err != nil {
		return false
	}
	return secure.Verify(canonical, signature, pub)
}
