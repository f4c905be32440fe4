// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command msgchand serves message channels over TCP and WebSocket and
// echoes every received message back to its sender.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/someonegg/msgchan"
	"github.com/someonegg/msgchan/internal/observability"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML config file")
	flag.Parse()

	os.Exit(run(*configPath))
}

func run(configPath string) int {
	cfg, err := loadServerConfig(configPath)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("msgchand stopped", zap.Error(err))
		return 1
	}
	logger.Info("msgchand stopped")
	return 0
}

func serve(ctx context.Context, cfg serverConfig, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := msgchan.NewRegistry()
	metrics := msgchan.NewMetrics("msgchan")

	conf := cfg.Conn
	conf.Registry = registry
	conf.Logger = logger
	conf.Metrics = metrics
	if cfg.Dump {
		conf.Codec = &msgchan.MessageDump{Codec: conf.Codec, Dump: os.Stderr}
	}

	errC := make(chan error, 3)
	listen := func(addr string, serveF func(context.Context, net.Listener, *msgchan.Config) error) error {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		go func() { errC <- serveF(ctx, l, &conf) }()
		return nil
	}

	if cfg.TCPAddr != "" {
		if err := listen(cfg.TCPAddr, msgchan.Serve); err != nil {
			return err
		}
	}
	if cfg.WSAddr != "" {
		if err := listen(cfg.WSAddr, msgchan.ServeWebsocket); err != nil {
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errC <- err
			}
		}()
		defer srv.Close()
	}

	watcher := msgchan.NewWatcher(registry, msgchan.HandlerFunc(echo), logger)
	watchD := make(chan struct{})
	go func() {
		defer close(watchD)
		_ = watcher.Run(ctx)
	}()

	logger.Info("msgchand running",
		zap.String("tcp", cfg.TCPAddr), zap.String("ws", cfg.WSAddr), zap.String("metrics", cfg.MetricsAddr))

	var err error
	select {
	case <-ctx.Done():
	case err = <-errC:
	}
	cancel()
	registry.Close()
	<-watchD
	return err
}

// echo sends every received message back until the connection closes.
func echo(ctx context.Context, c *msgchan.Conn) {
	defer c.Close()

	for {
		m, err := c.Receive(ctx)
		if err != nil {
			return
		}
		if err := c.Send(ctx, m); err != nil {
			return
		}
	}
}
