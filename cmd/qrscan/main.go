package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/config"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/decode"
	_ "github.com/nobid-lsp-latvia/lx-qr-scanner/internal/mock"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/scanner"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/app"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/tui/views/viewfinder"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	device := flag.String("device", "", "Capture device spec (dir:<path>, ws://..., webcam:<n>, mock:<payload,...>)")
	once := flag.Bool("once", false, "Print the first result and exit")
	logPath := flag.String("log", "qrscan.log", "Log file")
	style := flag.String("style", "dark", "Result style (dark, light, notty)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *device != "" {
		cfg.Capture.Device = *device
	}

	f, err := tea.LogToFile(*logPath, "qrscan")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	dev, err := capture.ParseDevice(cfg.Capture.Device, capture.DeviceOptions{
		FrameRate: cfg.Capture.FrameRate,
		Loop:      cfg.Capture.Loop,
		Token:     cfg.Capture.Token,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	status, err := capture.ParseAuthorizationStatus(cfg.Capture.Permission)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	bridge := app.NewBridge()
	capSess := capture.NewSession()
	opts := []scanner.Option{
		scanner.WithLogger(log.Default()),
		scanner.WithStateObserver(bridge.OnState),
		scanner.WithAuthorizer(capture.NewPolicyAuthorizer(status, bridge.Prompt)),
		scanner.WithOverlay(scanner.OverlayConfig{
			FocusSize:  cfg.Scanner.FocusSize,
			CloseInset: image.Pt(cfg.Scanner.CloseInsetX, cfg.Scanner.CloseInsetY),
			CloseSize:  cfg.Scanner.CloseSize,
		}),
	}
	if cfg.Scanner.Haptic {
		opts = append(opts, scanner.WithFeedback(bridge))
	}
	ctrl := scanner.New(capSess, capture.NewRegistry(dev), decode.New(decode.Options{TryHarder: cfg.Scanner.TryHarder}), opts...)
	unregister := ctrl.Register(bridge)

	m := app.New(app.Config{
		Controller:      ctrl,
		Session:         capSess,
		Surface:         viewfinder.NewSurface(0, 0),
		Bridge:          bridge,
		Once:            *once,
		GlamourStyle:    *style,
		HealthThreshold: cfg.Health.FailureThreshold,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	final, err := p.Run()
	bridge.Close()
	unregister()
	ctrl.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *once {
		res := final.(app.Model).Result()
		if res == "" {
			os.Exit(1)
		}
		fmt.Println(res)
	}
}
