package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bkyoung/llmsync/internal/adapter/cli"
	"github.com/bkyoung/llmsync/internal/adapter/litellm"
	"github.com/bkyoung/llmsync/internal/adapter/observability"
	"github.com/bkyoung/llmsync/internal/adapter/pricing"
	"github.com/bkyoung/llmsync/internal/config"
	"github.com/bkyoung/llmsync/internal/usecase/genconfig"
	"github.com/bkyoung/llmsync/internal/usecase/keys"
	"github.com/bkyoung/llmsync/internal/usecase/prices"
	"github.com/bkyoung/llmsync/internal/usecase/sync"
	"github.com/bkyoung/llmsync/internal/version"
)

// Compile-time checks that the gateway client satisfies every usecase port.
var (
	_ sync.AdminAPI        = (*litellm.Client)(nil)
	_ keys.UserAPI         = (*litellm.Client)(nil)
	_ prices.ModelAPI      = (*litellm.Client)(nil)
	_ prices.CatalogSource = (*pricing.Fetcher)(nil)
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	// Cancellable context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "llmsync",
		EnvPrefix:   "LITELLM",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := buildLogger(cfg.Logging)

	client := litellm.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	client.SetLogger(logger)
	if cfg.HTTP.Timeout != "" {
		timeout, err := time.ParseDuration(cfg.HTTP.Timeout)
		if err != nil {
			logger.Warn("invalid http.timeout, using default",
				map[string]any{"timeout": cfg.HTTP.Timeout, "error": err.Error()})
		} else {
			client.SetTimeout(timeout)
		}
	}

	generator := genconfig.NewGenerator(logger)
	provisioner := keys.NewProvisioner(client, logger)
	updater := prices.NewUpdater(client, pricing.NewFetcher(cfg.Pricing.CatalogURL), logger)

	newReconciler := func(force, prune bool) cli.Reconciler {
		return sync.NewSyncer(client, logger, sync.Options{
			Force:   force,
			Prune:   prune,
			Workers: cfg.Sync.Workers,
		})
	}

	// Offline commands (gen-config, sync --dry-run, --version) must work
	// without gateway configuration; only network-bound paths check it.
	gatewayPreflight := func() error {
		if cfg.Gateway.BaseURL == "" {
			return errors.New("gateway base URL is not configured; set LITELLM_BASE_URL or gateway.baseURL")
		}
		if cfg.Gateway.APIKey == "" {
			return errors.New("gateway API key is not configured; set LITELLM_API_KEY or gateway.apiKey")
		}
		return nil
	}

	root := cli.NewRootCommand(cli.Dependencies{
		Generator:        generator,
		NewReconciler:    newReconciler,
		Provisioner:      provisioner,
		PriceUpdater:     updater,
		GatewayPreflight: gatewayPreflight,
		Args: cli.Arguments{
			OutWriter: os.Stdout,
			ErrWriter: os.Stderr,
			InReader:  os.Stdin,
		},
		DefaultConfigFile: cfg.Sync.ConfigFile,
		Version:           version.Version(),
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return nil
		}
		return err
	}
	return nil
}

func buildLogger(cfg config.LoggingConfig) observability.Logger {
	level := observability.ParseLevel(cfg.Level)
	format := observability.DetectFormat(cfg.Format)
	return observability.NewDefaultLogger(level, format, cfg.RedactAPIKeys)
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "llmsync"))
	}
	return paths
}
