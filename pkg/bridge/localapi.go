package bridge

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/wire"
)

// LocalAPI is the loopback-only HTTP surface the automation process uses for
// outbound replies. Requests from any non-loopback address are rejected
// before parsing, and the whole surface shares one rate limiter.
type LocalAPI struct {
	outbound *Outbound
	threads  *ThreadRegistry
	limiter  *rate.Limiter
}

func NewLocalAPI(outbound *Outbound, threads *ThreadRegistry, perSecond float64, burst int) *LocalAPI {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &LocalAPI{
		outbound: outbound,
		threads:  threads,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Router builds the gin engine for the loopback listener.
func (a *LocalAPI) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.ErrorCF("localapi", "handler panic", map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}))
	r.Use(a.loopbackOnly, a.rateLimit)

	r.POST("/send", a.handleSend)
	r.POST("/reply", a.handleReply)
	r.POST("/react", a.handleReact)
	return r
}

func (a *LocalAPI) loopbackOnly(c *gin.Context) {
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		host = c.Request.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		logger.WarnCF("localapi", "non-loopback request rejected", map[string]interface{}{
			"remote_addr": c.Request.RemoteAddr,
		})
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "loopback only"})
		return
	}
	c.Next()
}

func (a *LocalAPI) rateLimit(c *gin.Context) {
	if !a.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
		return
	}
	c.Next()
}

func (a *LocalAPI) handleSend(c *gin.Context) {
	var req wire.LocalSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.outbound.SendMessage(c.Request.Context(), req.Channel, req.Text, req.ThreadTS); err != nil {
		logger.ErrorCF("localapi", "send failed", map[string]interface{}{
			"channel": req.Channel,
			"error":   err.Error(),
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "delivery failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *LocalAPI) handleReply(c *gin.Context) {
	var req wire.LocalReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	channel, threadTS, ok := a.threads.Resolve(req.ThreadID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown thread_id"})
		return
	}
	if err := a.outbound.SendMessage(c.Request.Context(), channel, req.Text, threadTS); err != nil {
		logger.ErrorCF("localapi", "reply failed", map[string]interface{}{
			"thread_id": req.ThreadID,
			"error":     err.Error(),
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "delivery failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *LocalAPI) handleReact(c *gin.Context) {
	var req wire.LocalReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.outbound.React(c.Request.Context(), req.Channel, req.Timestamp, req.Emoji); err != nil {
		logger.ErrorCF("localapi", "react failed", map[string]interface{}{
			"channel": req.Channel,
			"error":   err.Error(),
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "delivery failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
