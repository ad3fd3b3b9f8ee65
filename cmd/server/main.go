package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/thereceipt/ticketprint/internal/api"
	"github.com/thereceipt/ticketprint/internal/command"
	"github.com/thereceipt/ticketprint/internal/config"
	"github.com/thereceipt/ticketprint/internal/permission"
	"github.com/thereceipt/ticketprint/internal/printer"
	"github.com/thereceipt/ticketprint/internal/registry"
	"github.com/thereceipt/ticketprint/internal/service"
	"github.com/thereceipt/ticketprint/internal/tui"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	port := flag.String("port", "", "API port (overrides config)")
	headless := flag.Bool("headless", false, "Run without the dashboard")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid port: %v", err)
		}
	}
	cfg.RegistryPath = resolveRegistryPath(cfg.RegistryPath)

	reg, err := registry.New(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("Failed to open device registry: %v", err)
	}

	lister := &permission.USBLister{Label: reg.Label}
	authority := permission.NewPromptAuthority()
	broker := permission.NewBroker(lister, authority)
	jobs := printer.NewJobLog(0)
	station := printer.NewStation(jobs)

	svc := service.New(service.Options{
		Config:    cfg,
		Broker:    broker,
		Authority: authority,
		Station:   station,
		Registry:  reg,
	})
	defer svc.Close()

	executor := command.NewExecutor(svc)
	server := api.NewServer(svc, executor)
	hub := server.Hub()

	var tuiApp *tui.TViewApp
	if !*headless {
		tuiApp = tui.NewTViewApp(svc, executor)
		log.SetOutput(io.MultiWriter(os.Stderr, tuiApp.LogWriter()))
	}

	// permission prompts go to websocket clients and the dashboard modal
	cancelPrompts := authority.Subscribe(func(p permission.Prompt) {
		hub.BroadcastPrompt(p)
		if tuiApp != nil {
			tuiApp.ShowPrompt(p)
		}
	})
	defer cancelPrompts()

	broker.OnResolved(func(d permission.Device, granted bool) {
		hub.BroadcastResolved(d, granted)
		if tuiApp != nil {
			tuiApp.DismissPrompt(d.Name)
			tuiApp.Refresh()
		}
	})

	jobs.OnUpdate(func(job printer.PrintJob) {
		hub.BroadcastJob(job)
		if tuiApp != nil {
			tuiApp.Refresh()
		}
	})

	monitor := printer.NewMonitor(lister, cfg.VendorID, cfg.MonitorInterval)
	monitor.OnAdded(func(d permission.Device) {
		log.Printf("printer: attached %04X:%04X at %s", d.VendorID, d.ProductID, d.Name)
		hub.BroadcastDeviceAdded(d)
		if tuiApp != nil {
			tuiApp.Refresh()
		}
	})
	monitor.OnRemoved(func(d permission.Device) {
		log.Printf("printer: detached %04X:%04X at %s", d.VendorID, d.ProductID, d.Name)
		// a device that comes back must be asked for again
		authority.Revoke(d.Name)
		hub.BroadcastDeviceRemoved(d)
		if tuiApp != nil {
			tuiApp.DismissPrompt(d.Name)
			tuiApp.Refresh()
		}
	})
	monitor.Start()
	defer monitor.Stop()

	serverErrChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("0.0.0.0:%s", cfg.Port)
		log.Printf("api: ticketprint %s listening on %s (vendor %04X, %s)", Version, addr, cfg.VendorID, cfg.Transport)
		if err := server.Run(addr); err != nil {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	tuiDone := make(chan struct{})
	if tuiApp != nil {
		go func() {
			if err := tuiApp.Run(); err != nil {
				log.SetOutput(os.Stderr)
				log.Printf("TUI error: %v", err)
			}
			close(tuiDone)
		}()
	}

	select {
	case err := <-serverErrChan:
		if tuiApp != nil {
			tuiApp.Stop()
		}
		log.SetOutput(os.Stderr)
		log.Fatalf("Server error: %v", err)
	case <-sigChan:
		log.Printf("service: shutting down")
		if tuiApp != nil {
			tuiApp.Stop()
		}
	case <-tuiDone:
	}

	// the dashboard is gone, svc.Close logs to the terminal
	log.SetOutput(os.Stderr)
}

// resolveRegistryPath places a relative registry file next to the
// executable when that directory is writable, then falls back to the
// working directory and finally the user config directory.
func resolveRegistryPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	name := path

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		testFile := filepath.Join(exeDir, ".ticketprint-write-test")
		if f, err := os.Create(testFile); err == nil {
			f.Close()
			os.Remove(testFile)
			return filepath.Join(exeDir, name)
		}
	}

	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, name)
	}

	var configDir string
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			configDir = filepath.Join(appData, "ticketprint")
		} else {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "ticketprint")
		}
	} else if home := os.Getenv("HOME"); home != "" {
		configDir = filepath.Join(home, ".config", "ticketprint")
	}

	if configDir != "" {
		os.MkdirAll(configDir, 0755)
		return filepath.Join(configDir, name)
	}
	return name
}
