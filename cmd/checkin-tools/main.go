// Command checkin-tools serves the check-in backend tools over MCP
// streamable HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"checkin/pkg/backend"
	"checkin/pkg/logx"
)

func main() {
	logger := logx.NewLogger("tools")
	if err := run(logger); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(logger *logx.Logger) error {
	_ = godotenv.Load()

	addr := os.Getenv("CHECKIN_TOOLS_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	server := backend.NewServer(backend.Config{
		BaseURL: os.Getenv("CHECKIN_BACKEND_BASE_URL"),
	})

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Handle(backend.DefaultMountPath, handler)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tools server listening on %s%s", addr, backend.DefaultMountPath)
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
