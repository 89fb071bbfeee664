package broker

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/burrowlabs/burrow/pkg/config"
	"github.com/burrowlabs/burrow/pkg/inbox"
	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// signatureWindow bounds how far a signed request timestamp may drift from
// broker time. Applies to the platform webhook and to live tenant requests;
// queued envelope freshness is the bridge's concern, not ours.
const signatureWindow = 300 * time.Second

// Server wires the HTTP handlers to the registry, inbox, and broker keys.
// Handlers keep no state of their own across requests.
type Server struct {
	cfg        *config.BrokerConfig
	keys       *secure.KeySet
	workspaces *registry.Service
	queue      inbox.Queue
	forwarder  *Forwarder
	client     *http.Client
	now        func() time.Time
}

func NewServer(cfg *config.BrokerConfig, keys *secure.KeySet, workspaces *registry.Service, queue inbox.Queue) *Server {
	return &Server{
		cfg:        cfg,
		keys:       keys,
		workspaces: workspaces,
		queue:      queue,
		forwarder:  NewForwarder(keys, queue),
		client:     &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// Router builds the gin engine. Panics are caught at the top, logged with
// routing metadata only, and answered with a generic 500.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.ErrorCF("broker", "handler panic", map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}))

	r.POST("/slack/events", s.handleSlackEvents)
	r.GET("/slack/install", s.handleInstall)
	r.GET("/slack/oauth/callback", s.handleOAuthCallback)
	r.POST("/register", s.handleRegister)
	r.POST("/unregister", s.handleUnregister)
	r.POST("/send", s.handleSend)
	r.POST("/inbox/pull", s.handleInboxPull)
	r.POST("/inbox/ack", s.handleInboxAck)
	r.GET("/keys", s.handleKeys)
	return r
}

// handleKeys serves key discovery so a server can seal toward us and verify
// our envelope signatures.
func (s *Server) handleKeys(c *gin.Context) {
	c.JSON(http.StatusOK, wire.BrokerKeys{
		EncryptionPubKey: secure.EncodeKey(s.keys.BoxPublic[:]),
		SigningPubKey:    secure.EncodeKey(s.keys.SignPublic),
	})
}

// timestampFresh checks a signed request timestamp against the window.
func (s *Server) timestampFresh(ts int64) bool {
	drift := s.now().Unix() - ts
	if drift < 0 {
		drift = -drift
	}
	return drift <= int64(signatureWindow.Seconds())
}
