// The dashboard command is an interactive client for the sentiment backend:
// typed lines are analyzed in realtime mode, commands trigger manual
// submissions and analytics.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pscheid92/reviewpulse/internal/analysis"
	"github.com/pscheid92/reviewpulse/internal/api"
	"github.com/pscheid92/reviewpulse/internal/connection"
	"github.com/pscheid92/reviewpulse/internal/domain"
	"github.com/pscheid92/reviewpulse/internal/events"
	"github.com/pscheid92/reviewpulse/internal/platform/config"
	"github.com/pscheid92/reviewpulse/internal/platform/logging"
)

func main() {
	cfg := setupConfig()
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	bus := events.NewBus(logger)
	manager := setupConnection(cfg, bus, logger)
	apiClient := api.NewClient(cfg.ServerURL, cfg.HTTPTimeout)
	renderer := newConsoleRenderer(os.Stdout)

	coordinator := analysis.NewCoordinator(analysis.Config{
		DebounceWindow:   cfg.DebounceWindow,
		MinRealtimeChars: cfg.MinRealtimeChars,
		ResultTimeout:    cfg.ResultTimeout,
		PushEnabled:      cfg.PushChannel,
		SaveToDB:         true,
	}, manager, apiClient, renderer, bus, nil, logger)

	bus.On(events.Connected, func(any) { renderer.Status("push channel connected") })
	bus.On(events.Disconnected, func(any) { renderer.Status("push channel disconnected") })
	bus.On(events.Error, func(payload any) {
		if err, ok := payload.(error); ok {
			renderer.Status("push channel error: " + err.Error())
		}
	})

	setupMetrics(cfg, logger)

	if cfg.PushChannel {
		manager.Connect()
	}

	done := make(chan struct{})
	go readInput(coordinator, manager, apiClient, renderer, done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		slog.Info("Shutdown signal received, cleaning up...")
	case <-done:
	}

	coordinator.Close()
	manager.Close()
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupConnection(cfg *config.Config, bus *events.Bus, logger *slog.Logger) *connection.Manager {
	wsURL, err := connection.WebsocketURL(cfg.ServerURL)
	if err != nil {
		slog.Error("Failed to derive websocket URL", "error", err)
		os.Exit(1)
	}

	return connection.NewManager(connection.Config{
		URL:         wsURL,
		MaxAttempts: cfg.ReconnectMaxAttempts,
		BaseDelay:   cfg.ReconnectBaseDelay,
		MaxDelay:    cfg.ReconnectMaxDelay,
	}, bus, nil, nil, logger)
}

func setupMetrics(cfg *config.Config, logger *slog.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("Serving metrics", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
}

func readInput(coordinator *analysis.Coordinator, manager *connection.Manager, apiClient *api.Client, renderer *consoleRenderer, done chan<- struct{}) {
	defer close(done)

	fmt.Println("Type to analyze (realtime). Commands: /manual <text>, /analytics, /recent, /connect, /close, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "/quit":
			return
		case line == "/analytics":
			coordinator.RequestAnalytics()
		case line == "/recent":
			showRecent(apiClient, renderer)
		case line == "/connect":
			manager.Connect()
		case line == "/close":
			manager.Close()
		case strings.HasPrefix(line, "/manual "):
			coordinator.Submit(strings.TrimPrefix(line, "/manual "), domain.ModeManual)
		default:
			coordinator.Submit(line, domain.ModeRealtime)
		}
	}
}

func showRecent(apiClient *api.Client, renderer *consoleRenderer) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recent, err := apiClient.RecentReviews(ctx, 10, 0)
	if err != nil {
		renderer.Failure(err)
		return
	}
	for _, review := range recent.Reviews {
		renderer.NewAnalysis(domain.NewAnalysisData{
			Sentiment:   review.Sentiment,
			Confidence:  review.Confidence,
			TextPreview: review.Text,
			Timestamp:   review.Timestamp,
		})
	}
}
