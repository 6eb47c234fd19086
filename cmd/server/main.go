package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/andy6609/linechat/internal/chat"
	"github.com/andy6609/linechat/internal/config"
	"github.com/andy6609/linechat/internal/wire"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	addr := flag.String("addr", cfg.ListenAddr(), "chat listen address")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "metrics listen address, empty disables")
	flag.Parse()

	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	srv := chat.NewServer(chat.Options{
		Addr:             *addr,
		ServerName:       cfg.ServerName,
		Limits:           wire.Limits{MaxLine: cfg.MaxLine, MaxHeaders: cfg.MaxHeaders},
		ReplayLimit:      cfg.HistoryReplay,
		OutboundBuffer:   cfg.OutboundBuffer,
		RegistryBuffer:   cfg.RegistryBuffer,
		WriteTimeout:     cfg.WriteTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		IdleTimeout:      cfg.IdleTimeout,
	}, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	var metrics *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metrics = &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
		logger.Info("metrics endpoint started", "addr", *metricsAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	if metrics != nil {
		_ = metrics.Close()
	}
	srv.Stop()
}
