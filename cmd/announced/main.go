// Command announced is the multi-zone announcement daemon. It accepts
// announcements over HTTP and MQTT and plays them on Logitech Media Server
// players, restoring whatever they were doing afterwards.
// Run with --mock to use a simulated media server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micro-nova/lms-announce/internal/api"
	"github.com/micro-nova/lms-announce/internal/auth"
	"github.com/micro-nova/lms-announce/internal/config"
	"github.com/micro-nova/lms-announce/internal/controller"
	"github.com/micro-nova/lms-announce/internal/events"
	"github.com/micro-nova/lms-announce/internal/maintenance"
	"github.com/micro-nova/lms-announce/internal/mqtt"
	"github.com/micro-nova/lms-announce/internal/notify"
	"github.com/micro-nova/lms-announce/internal/presence"
	"github.com/micro-nova/lms-announce/internal/provider"
	"github.com/micro-nova/lms-announce/internal/transport"
	"github.com/micro-nova/lms-announce/internal/zeroconf"
)

func main() {
	var (
		cfgPath = flag.String("config", "/etc/lms-announce/config.yaml", "path to the YAML config file")
		envFile = flag.String("env", ".env", "optional .env file with ANNOUNCE_* overrides")
		addr    = flag.String("addr", "", "HTTP listen address (overrides server.address)")
		mock    = flag.Bool("mock", false, "use a simulated media server")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if err := config.LoadEnvFile(*envFile); err != nil {
		slog.Error("cannot load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("cannot load config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Playback provider
	var p provider.Provider
	if *mock {
		devices := make([]string, 0, len(cfg.Zones))
		for _, z := range cfg.Zones {
			devices = append(devices, z.Device)
		}
		slog.Info("using mock media server", "players", len(devices))
		p = provider.NewMock(devices...)
	} else {
		slog.Info("using Logitech Media Server", "host", cfg.LMS.Host, "port", cfg.LMS.Port)
		p = provider.NewLMS(cfg.LMS)
	}

	// Presence states, from a watched file and MQTT
	store := presence.NewStore()
	if cfg.Presence.File != "" {
		watcher, err := presence.NewWatcher(cfg.Presence.File, store)
		if err != nil {
			slog.Error("presence watcher initialization failed", "err", err)
			os.Exit(1)
		}
		defer watcher.Close()
	}

	bus := events.NewBus()

	opts := []controller.Option{controller.WithPresence(store), controller.WithEvents(bus)}
	if cfg.Notify.DBus {
		n, err := notify.New(cfg.Notify.AppName)
		if err != nil {
			slog.Warn("desktop notifications disabled", "err", err)
		} else {
			defer n.Close()
			opts = append(opts, controller.WithMirror(n))
		}
	}

	coord := controller.New(cfg, p, opts...)
	coord.Start(ctx)

	dispatcher := transport.NewDispatcher(coord)

	// Auth service
	authSvc, err := auth.NewService(cfg.Server.KeysFile)
	if err != nil {
		slog.Error("auth service initialization failed", "err", err)
		os.Exit(1)
	}
	defer authSvc.Close()
	if authSvc.IsOpenMode() {
		slog.Warn("no API keys configured, the HTTP API is open")
	}

	// Media server reachability
	var online func() bool
	if !*mock {
		maint := maintenance.New(cfg.LMS.Host, cfg.LMS.Port, 0, nil)
		go maint.Start(ctx)
		online = maint.Online
	}

	// MQTT transport
	if cfg.MQTT.Broker != "" {
		listener := mqtt.New(cfg.MQTT, dispatcher, store, bus)
		go func() {
			if err := listener.Start(ctx); err != nil {
				slog.Error("mqtt failed", "err", err)
			}
		}()
	}

	// Zeroconf mDNS registration
	if cfg.Server.Zeroconf {
		if port, err := zeroconf.Port(cfg.Server.Address); err != nil {
			slog.Warn("zeroconf disabled", "err", err)
		} else {
			name := cfg.Server.Name
			if name == "" {
				name, _ = os.Hostname()
			}
			zc := zeroconf.New(name, port, coord.Zones())
			go func() {
				if err := zc.Start(ctx); err != nil {
					slog.Warn("zeroconf failed", "err", err)
				}
			}()
		}
	}

	// HTTP server
	router := api.NewRouter(api.Deps{
		Coordinator: coord,
		Submitter:   dispatcher,
		Events:      bus,
		Auth:        authSvc,
		Zones:       cfg.Zones,
		LMSOnline:   online,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("lms-announce listening", "addr", cfg.Server.Address, "mock", *mock, "zones", len(cfg.Zones))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()

	// Graceful HTTP shutdown
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	// Stop the coordinator and its zone workers
	coord.Stop()

	slog.Info("shutdown complete")
}
