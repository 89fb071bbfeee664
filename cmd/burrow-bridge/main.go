// burrow-bridge runs next to a tenant's automation process: it pulls sealed
// events from the broker, hands them to the process over its control socket,
// and relays the process's replies back out.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burrowlabs/burrow/pkg/bridge"
	"github.com/burrowlabs/burrow/pkg/claw"
	"github.com/burrowlabs/burrow/pkg/config"
	"github.com/burrowlabs/burrow/pkg/logger"
	"github.com/burrowlabs/burrow/pkg/secure"
	"github.com/burrowlabs/burrow/pkg/wire"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	genKeys := flag.Bool("genkeys", false, "print a freshly generated key set and exit")
	register := flag.Bool("register", false, "register this server with the broker and exit")
	authCode := flag.String("auth-code", "", "one-time code from the install page (with -register)")
	unregister := flag.Bool("unregister", false, "unlink this workspace from the broker and exit")
	flag.Parse()

	if *genKeys {
		printKeySet()
		return
	}

	cfg, err := config.LoadBridgeConfig(*configPath)
	if err != nil {
		logger.FatalCF("bridge", "config load failed", map[string]interface{}{"error": err.Error()})
	}
	if err := cfg.Validate(); err != nil {
		logger.FatalCF("bridge", "config invalid", map[string]interface{}{"error": err.Error()})
	}

	if cfg.Logging.Debug {
		logger.SetLevel(logger.DEBUG)
	}
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(cfg.Logging.FilePath); err != nil {
			logger.FatalCF("bridge", "file logging failed", map[string]interface{}{"error": err.Error()})
		}
	}

	keys, err := secure.DecodeKeySet(cfg.BoxPublicKey, cfg.BoxPrivateKey, cfg.SignPublicKey, cfg.SignPrivateKey)
	if err != nil {
		logger.FatalCF("bridge", "key material invalid", map[string]interface{}{"error": err.Error()})
	}
	brokerBoxPub, err := secure.DecodeBoxKey(cfg.BrokerBoxPublicKey)
	if err != nil {
		logger.FatalCF("bridge", "broker box key invalid", map[string]interface{}{"error": err.Error()})
	}
	brokerSignPub, err := secure.DecodeSignPublicKey(cfg.BrokerSignPublicKey)
	if err != nil {
		logger.FatalCF("bridge", "broker signing key invalid", map[string]interface{}{"error": err.Error()})
	}

	client := bridge.NewBrokerClient(cfg.BrokerURL, cfg.WorkspaceID, keys)

	if *register {
		if *authCode == "" {
			logger.FatalC("bridge", "-register needs -auth-code")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Register(ctx, wire.PullModeURL, *authCode); err != nil {
			logger.FatalCF("bridge", "registration failed", map[string]interface{}{"error": err.Error()})
		}
		logger.InfoCF("bridge", "workspace registered", map[string]interface{}{
			"workspace_id": cfg.WorkspaceID,
		})
		return
	}

	if *unregister {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Unregister(ctx); err != nil {
			logger.FatalCF("bridge", "unregister failed", map[string]interface{}{"error": err.Error()})
		}
		logger.InfoCF("bridge", "workspace unlinked", map[string]interface{}{
			"workspace_id": cfg.WorkspaceID,
		})
		return
	}

	outbound := bridge.NewOutbound(cfg.SlackBotToken, client, keys, brokerBoxPub)
	threads := bridge.NewThreadRegistry(cfg.ThreadRegistryMaxSize)
	dedup := bridge.NewDedupCache(time.Duration(cfg.DedupTTLSeconds) * time.Second)
	clawClient := claw.NewClient(cfg.ClawSocketPath, time.Duration(cfg.ClawTimeoutSeconds)*time.Second)

	poller := bridge.NewPoller(client, clawClient, dedup, threads, keys, brokerSignPub,
		cfg.WorkspaceID,
		time.Duration(cfg.PollIntervalSeconds)*time.Second,
		cfg.MaxMessagesPerPull,
		time.Duration(cfg.MaxMessageAgeSeconds)*time.Second)

	localAPI := bridge.NewLocalAPI(outbound, threads, cfg.LocalRatePerSecond, cfg.LocalRateBurst)
	httpServer := &http.Server{
		Addr:              cfg.LocalListenAddr,
		Handler:           localAPI.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Run(ctx)
	go func() {
		logger.InfoCF("bridge", "local api listening", map[string]interface{}{
			"addr": cfg.LocalListenAddr,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCF("bridge", "local api failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.InfoC("bridge", "shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCF("bridge", "shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
}

// printKeySet mints provisioning key material: the four values the bridge
// config needs, plus the two public halves to hand to the broker at
// registration.
func printKeySet() {
	ks, err := secure.GenerateKeySet()
	if err != nil {
		fmt.Fprintf(os.Stderr, "key generation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("box_public_key:   %s\n", secure.EncodeKey(ks.BoxPublic[:]))
	fmt.Printf("box_private_key:  %s\n", secure.EncodeKey(ks.BoxPrivate[:]))
	fmt.Printf("sign_public_key:  %s\n", secure.EncodeKey(ks.SignPublic))
	fmt.Printf("sign_private_key: %s\n", secure.EncodeKey(ks.SignPrivate))
}
