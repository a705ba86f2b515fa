package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/config"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/registry"
	"github.com/marmos91/dittorepo/pkg/server"
	"github.com/marmos91/dittorepo/pkg/session"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

const usage = `DittoRepo - path-scoped file repository service

Usage:
  dittorepo <command> [flags]

Commands:
  init      Write a default configuration file
  start     Start the server
  version   Print the version

Run 'dittorepo <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "version":
		fmt.Printf("dittorepo %s\n", version)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to write the config file (default: "+config.GetDefaultConfigPath()+")")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.InitConfig(*force); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	fmt.Println("Create the repository root directories, then run: dittorepo start")
	return nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the config file (default: "+config.GetDefaultConfigPath()+")")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Logging.Level != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("DittoRepo %s starting", version)

	// The registry does not exist yet when the metrics server is built;
	// /healthz resolves it lazily.
	var reg *registry.Registry
	metricsResult := config.InitializeMetrics(cfg, func(ctx context.Context) error {
		if reg == nil {
			return fmt.Errorf("registry not initialized")
		}
		return reg.Healthcheck(ctx)
	})

	bus := events.NewBus()

	reg, err = config.InitializeRegistry(ctx, cfg, config.RegistryOptions{
		Metrics: metricsResult,
		Events:  bus,
	})
	if err != nil {
		bus.Close()
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Error("Failed to close metadata stores: %v", err)
		}
	}()

	for _, entry := range reg.Entries() {
		logger.Info("Repository %q: root=%s store=%s read_only=%v watch=%v",
			entry.Name, entry.Repository.RootPath(), entry.MetadataStore, entry.ReadOnly, entry.Watch)
	}

	sessions := session.NewManager(cfg.Sessions, metricsResult.Session)

	adapters, err := config.CreateAdapters(cfg, config.AdapterDependencies{
		Sessions:    sessions,
		Events:      bus,
		HTTPMetrics: metricsResult.HTTP,
	})
	if err != nil {
		sessions.Shutdown()
		bus.Close()
		return err
	}

	srv := server.New(reg, server.Options{
		Sessions:        sessions,
		Events:          bus,
		MetricsServer:   metricsResult.Server,
		RecordGC:        cfg.Server.GC,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
		logger.Info("%s adapter listening on port %d", a.Protocol(), a.Port())
	}
	if metricsResult.Server != nil {
		logger.Info("Metrics available on port %d", metricsResult.Server.Port())
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
