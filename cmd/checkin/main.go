// Command checkin runs the conversational check-in orchestration server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkin/pkg/agent/llm"
	"checkin/pkg/backend"
	"checkin/pkg/config"
	"checkin/pkg/gateway"
	"checkin/pkg/httpapi"
	"checkin/pkg/logx"
	"checkin/pkg/metrics"
	"checkin/pkg/orch"
	"checkin/pkg/persistence"
	"checkin/pkg/stages"
	"checkin/pkg/state"
	"checkin/pkg/utils"
)

func main() {
	logger := logx.NewLogger("main")
	if err := run(logger); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(logger *logx.Logger) error {
	if password := os.Getenv("CHECKIN_SECRETS_PASSWORD"); password != "" && config.SecretsFileExists(".") {
		secrets, err := config.DecryptSecretsFile(".", password)
		if err != nil {
			return err
		}
		config.SetDecryptedSecrets(secrets)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var store state.Store
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		db, err := persistence.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		store = db
	default:
		store = state.NewMemoryStore()
	}
	if sized, ok := store.(interface{ Len() int }); ok {
		metrics.RegisterActiveSessions(sized.Len)
	}

	gwCfg, err := loadGatewayConfig(cfg, logger)
	if err != nil {
		return err
	}
	gw := gateway.New(gwCfg, nil)
	defer gw.Close()

	client, err := llm.NewClient(cfg.Model, cfg.OpenAIKey, cfg.AnthropicKey, cfg.OllamaHost)
	if err != nil {
		return err
	}
	counter, err := utils.NewTokenCounter(cfg.Model)
	if err != nil {
		logger.Warn("token counter unavailable, using estimates: %v", err)
	}

	handlers, err := stages.NewHandlers(stages.Deps{
		Broker:  gw,
		Client:  client,
		Counter: counter,
		Cfg:     cfg,
	})
	if err != nil {
		return err
	}

	o := orch.New(store, handlers, cfg.SessionTTL, cfg.MaxStageHops)
	api := httpapi.New(o)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s (model %s, store %s)", cfg.ListenAddr, client.ModelName(), cfg.StoreBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// loadGatewayConfig reads the catalog file, falling back to a single local
// tools-server connection when no file is present.
func loadGatewayConfig(cfg *config.Config, logger *logx.Logger) (*gateway.Config, error) {
	if _, err := os.Stat(cfg.GatewayConfigPath); err == nil {
		return gateway.LoadConfig(cfg.GatewayConfigPath)
	}
	logger.Warn("gateway config %s not found, using local tools server", cfg.GatewayConfigPath)
	gwCfg := &gateway.Config{
		Connections: []gateway.ConnectionConfig{{
			Name:     "checkin",
			Endpoint: "http://localhost" + cfg.ToolsAddr + backend.DefaultMountPath,
		}},
	}
	gwCfg.Collision = gateway.CollisionNamespace
	gwCfg.Separator = gateway.DefaultSeparator
	gwCfg.Connections[0].Namespace = gwCfg.Connections[0].Name
	return gwCfg, nil
}
