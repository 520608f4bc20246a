package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/config"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/daemon"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/decode"
	_ "github.com/nobid-lsp-latvia/lx-qr-scanner/internal/mock"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/monitor"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/scanner"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/ws"
)

var mockPayloads = []string{"ABC123", "https://example.com/scan?id=42", "WIFI:S:lab;T:WPA;P:secret;;"}

func main() {
	mockMode := flag.Bool("mock", false, "Film scripted QR codes instead of a real camera")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	device := flag.String("device", "", "Override capture device spec")
	continuous := flag.Bool("continuous", false, "Scan continuously, restarting after every result")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *device != "" {
		cfg.Capture.Device = *device
	}
	if *mockMode {
		log.Println("Starting in mock mode")
		cfg.Capture.Device = "mock:" + strings.Join(mockPayloads, ",")
		cfg.Capture.Loop = true
	}

	dev, err := capture.ParseDevice(cfg.Capture.Device, capture.DeviceOptions{
		FrameRate: cfg.Capture.FrameRate,
		Loop:      cfg.Capture.Loop,
		Token:     cfg.Capture.Token,
	})
	if err != nil {
		log.Fatalf("Failed to configure camera: %v", err)
	}
	status, err := capture.ParseAuthorizationStatus(cfg.Capture.Permission)
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if status == capture.NotDetermined {
		log.Println("camera permission is \"prompt\" but the daemon cannot ask; access will be denied")
	}

	capSess := capture.NewSession()
	store := session.NewStore()
	broadcaster := ws.NewBroadcaster(store, cfg.Broadcast.Throttle, cfg.Broadcast.SnapshotInterval, cfg.Broadcast.MaxConnections)
	defer broadcaster.Stop()

	mon := monitor.New(capSess, store, cfg.Broadcast.SnapshotInterval, cfg.Health.FailureThreshold, broadcaster.BroadcastHealth)
	broadcaster.SetHealthSource(mon.Health)

	d := daemon.New(capSess, capture.NewRegistry(dev), decode.New(decode.Options{TryHarder: cfg.Scanner.TryHarder}), store, broadcaster, daemon.Options{
		Continuous: *continuous,
		AutoStart:  *continuous,
		ScannerOptions: []scanner.Option{
			scanner.WithAuthorizer(capture.NewPolicyAuthorizer(status, nil)),
		},
	})

	server := ws.NewServer(store, broadcaster, d, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)
	server.SetStatsSource(func() interface{} { return mon.Stats() })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mon.Start(ctx)
		return nil
	})
	g.Go(func() error {
		return d.Run(ctx)
	})
	g.Go(func() error {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
