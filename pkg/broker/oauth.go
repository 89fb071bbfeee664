package broker

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"golang.org/x/oauth2"

	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/secure"
)

var slackOAuthScopes = []string{"app_mentions:read", "chat:write", "reactions:write", "channels:history"}

const oauthStateWindow = 600 // seconds

// oauthConfig builds the authorize-redirect config. Token exchange itself
// goes through the platform SDK, which knows the v2 response shape.
func (s *Server) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.SlackClientID,
		ClientSecret: s.cfg.SlackClientSecret,
		RedirectURL:  s.cfg.SlackRedirectURL,
		Scopes:       slackOAuthScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL: "https://slack.com/oauth/v2/authorize",
		},
	}
}

// oauthState mints a self-authenticating state value: a timestamp signed
// with the broker's key. Handlers keep no cross-request memory, so the state
// must verify without a session store.
func (s *Server) oauthState() string {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	sig := secure.Sign([]byte("burrow-oauth-state|"+ts), s.keys.SignPrivate)
	return ts + "." + sig
}

func (s *Server) oauthStateValid(state string) bool {
	ts, sig, ok := strings.Cut(state, ".")
	if !ok {
		return false
	}
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := s.now().Unix() - issued
	if age < 0 || age > oauthStateWindow {
		return false
	}
	return secure.Verify([]byte("burrow-oauth-state|"+ts), sig, s.keys.SignPublic)
}

// handleInstall redirects the installer to the platform's consent screen.
func (s *Server) handleInstall(c *gin.Context) {
	if s.cfg.SlackClientID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "install flow not configured"})
		return
	}
	c.Redirect(http.StatusFound, s.oauthConfig().AuthCodeURL(s.oauthState()))
}

// handleOAuthCallback finishes the install: exchanges the code for a bot
// token, creates the pending workspace record, and shows the installer the
// one-time registration code. The code appears exactly once, here; only its
// hash is stored.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	if !s.oauthStateValid(c.Query("state")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid state"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	resp, err := slack.GetOAuthV2Response(s.client, s.cfg.SlackClientID, s.cfg.SlackClientSecret, code, s.cfg.SlackRedirectURL)
	if err != nil {
		logger.ErrorC("broker", "oauth code exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "code exchange failed"})
		return
	}
	if resp.Team.ID == "" || resp.AccessToken == "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": "incomplete oauth response"})
		return
	}

	authCode := uuid.NewString()
	err = s.workspaces.CreatePending(c.Request.Context(), resp.Team.ID, resp.Team.Name, resp.AccessToken, registry.HashAuthCode(authCode))
	if err != nil {
		logger.ErrorCF("broker", "pending workspace write failed", map[string]interface{}{
			"workspace_id": resp.Team.ID,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	logger.InfoCF("broker", "workspace installed", map[string]interface{}{
		"workspace_id": resp.Team.ID,
	})
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, installedPage, resp.Team.Name, resp.Team.ID, authCode)
}

const installedPage = `<!doctype html>
<html><head><title>Burrow</title></head><body>
<h1>Workspace linked</h1>
<p>%s (%s) is installed. Run this on your server to finish registration:</p>
<pre>burrow-bridge -config bridge.json -register -auth-code %s</pre>
<p>The code works once and expires with the next reinstall.</p>
</body></html>`
