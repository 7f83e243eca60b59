package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"paxth/internal/bootstrap"
	"paxth/internal/config"
	server "paxth/internal/http"
	"paxth/internal/jobs"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "log run progress lines")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Set up logger
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	rootCtx := context.Background()

	// Migrations run inside Build when a database is configured
	rt, err := bootstrap.Build(rootCtx, cfg, logger, bootstrap.Options{})
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer rt.Close()

	if rt.Store != nil {
		go jobs.NewSweeper(cfg.Retention, rt.Store, logger).Start(rootCtx)
	}

	s := server.NewServer(rt)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		if err := s.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
