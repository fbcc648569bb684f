// Command mock-upstream runs HTTP mocks of the relay's collaborators for local
// E2E runs without real credentials.
//
//	Gateway   :19001  (AI_BASE_URL=http://localhost:19001/v1)
//	Supabase  :19002  (SUPABASE_URL=http://localhost:19002)
//
// Environment overrides: PORT_GATEWAY, PORT_SUPABASE, MOCK_ANON_KEY.
// Behaviour flags are documented in package mock.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nulpointcorp/ai-relay/internal/mock"
)

func portFromEnv(key string, defaultPort int) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return strconv.Itoa(defaultPort)
}

func startServer(name, addr string, h http.Handler, log *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info("mock listening", slog.String("service", name), slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("service", name), slog.String("error", err.Error()))
		}
	}()
	return srv
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := mock.LoadConfig()

	anonKey := os.Getenv("MOCK_ANON_KEY")
	if anonKey == "" {
		anonKey = "mock-anon-key"
	}

	log.Info("starting mocks",
		slog.Int("latency_ms", cfg.LatencyMS),
		slog.Int("forced_status", cfg.Status),
		slog.Bool("omit_choices", cfg.OmitChoices),
		slog.Bool("store_fail", cfg.StoreFail),
		slog.String("anon_key", anonKey),
	)

	servers := []*http.Server{
		startServer("gateway", ":"+portFromEnv("PORT_GATEWAY", 19001), mock.NewGatewayHandler(cfg), log),
		startServer("supabase", ":"+portFromEnv("PORT_SUPABASE", 19002), mock.NewSupabase(anonKey, cfg).Handler(), log),
	}

	fmt.Println("READY")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down mocks")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(s *http.Server) {
			defer wg.Done()
			_ = s.Shutdown(ctx)
		}(srv)
	}
	wg.Wait()
	log.Info("mocks stopped")
}
