// Command mockupd serves mockup editing sessions over HTTP and socket.io.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	mockupstudio "github.com/Skryldev/mockup-studio"
	"github.com/Skryldev/mockup-studio/adapters/vips"
	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/editor"
	"github.com/Skryldev/mockup-studio/hooks"
	"github.com/Skryldev/mockup-studio/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML configuration file")
	envFile := flag.String("env", ".env", "Dotenv file to load if present")
	logLevel := flag.String("loglevel", "", "Override the logging level: debug, info, warn, error")
	listenAddr := flag.String("listen", "", "Override the server listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	logger := hooks.NewLogrusLogger(log)

	opts := []mockupstudio.Option{
		mockupstudio.WithLogger(logger),
		mockupstudio.WithHook(hooks.NewLoggingHook(logger)),
	}
	if cfg.Backend == config.BackendVips {
		backend := vips.NewBackend(vips.BackendConfig{
			DefaultQuality: cfg.DefaultQuality,
			MaxWorkers:     cfg.WorkerCount,
		})
		defer backend.Shutdown()
		reg := mockupstudio.NewRegistry(cfg)
		vips.RegisterVipsBackend(reg, backend)
		opts = append(opts, mockupstudio.WithRegistry(reg))
	}

	ctx := context.Background()
	studio, err := mockupstudio.New(ctx, cfg, opts...)
	if err != nil {
		log.WithError(err).Fatal("failed to start studio")
	}
	if !studio.HasService() {
		log.Warn("no image service API key; background removal, blending and generation are disabled")
	}

	sessions := server.NewSessions(cfg.Server.MaxSessions, func(id string) (*editor.Editor, error) {
		return studio.NewEditor(id)
	})
	srv := server.New(server.Options{
		Config:   cfg.Server,
		Registry: studio.Registry(),
		Sessions: sessions,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.WithFields(logrus.Fields{
		"addr":    cfg.Server.Listen,
		"backend": cfg.Backend,
		"storage": cfg.Storage,
	}).Info("starting server")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	srv.Close()
	studio.Close()
	processed, failed := studio.Stats()
	log.WithFields(logrus.Fields{"jobs": processed, "failed": failed}).Info("stopped")
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	<-sig
	signal.Stop(sig)
}
