// burrowd is the broker: it terminates the platform webhook and OAuth flow,
// runs the workspace registry, and relays traffic between the platform and
// tenant servers without ever holding plaintext it can read.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/burrowlabs/burrow/pkg/broker"
	"github.com/burrowlabs/burrow/pkg/config"
	"github.com/burrowlabs/burrow/pkg/inbox"
	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/secure"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	cfg, err := config.LoadBrokerConfig(*configPath)
	if err != nil {
		logger.FatalCF("burrowd", "config load failed", map[string]interface{}{"error": err.Error()})
	}
	if err := cfg.Validate(); err != nil {
		logger.FatalCF("burrowd", "config invalid", map[string]interface{}{"error": err.Error()})
	}

	if cfg.Logging.Debug {
		logger.SetLevel(logger.DEBUG)
	}
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(cfg.Logging.FilePath); err != nil {
			logger.FatalCF("burrowd", "file logging failed", map[string]interface{}{"error": err.Error()})
		}
	}

	keys, err := secure.DecodeKeySet(cfg.BoxPublicKey, cfg.BoxPrivateKey, cfg.SignPublicKey, cfg.SignPrivateKey)
	if err != nil {
		logger.FatalCF("burrowd", "key material invalid", map[string]interface{}{"error": err.Error()})
	}

	var store registry.Store
	var queue inbox.Queue
	switch cfg.StorageBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.FatalCF("burrowd", "redis unreachable", map[string]interface{}{
				"addr":  cfg.RedisAddr,
				"error": err.Error(),
			})
		}
		store = registry.NewRedisStore(client)
		queue = inbox.NewRedisQueue(client, cfg.InboxMaxDepth)
	default:
		store = registry.NewMemoryStore()
		queue = inbox.NewMemoryQueue(cfg.InboxMaxDepth)
	}

	workspaces := registry.NewService(store, registry.DeriveTokenCipher(keys.BoxPrivate[:]))
	server := broker.NewServer(cfg, keys, workspaces, queue)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoCF("burrowd", "listening", map[string]interface{}{
			"addr":    cfg.ListenAddr,
			"storage": cfg.StorageBackend,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCF("burrowd", "server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.InfoC("burrowd", "shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.ErrorCF("burrowd", "shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
}
