package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/tsconsole/config"
	"github.com/timzifer/tsconsole/console"
	"github.com/timzifer/tsconsole/processor"
	"github.com/timzifer/tsconsole/remote"
)

const healthResource = "/stream_procs.json"

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	healthcheck := flag.Bool("healthcheck", false, "Query the stream processing server once and exit")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	liveView := flag.Bool("live-view", false, "Enable live view web interface")
	liveViewListen := flag.String("live-view-listen", "", "Live view listen address (defaults to live_view.listen)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(cfg))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *healthcheck {
		if err := executeHealthCheck(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	opts := []processor.Option{processor.WithConfig(cfg), processor.WithConfigPath(*cfgPath, nil)}
	if *liveView {
		opts = append(opts, processor.WithLiveView(*liveViewListen))
	}
	proc, err := processor.New(ctx, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create console")
	}
	defer proc.Close()

	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("console stopped with error")
	}
}

func executeHealthCheck(ctx context.Context, cfg *config.Config) error {
	client, err := remote.NewHTTPClient(cfg)
	if err != nil {
		return err
	}
	return client.Get(ctx, healthResource, nil)
}

func executeConfigCheck(cfg *config.Config) int {
	fmt.Printf("Server: %s%s\n", cfg.BaseURL(), cfg.APIPrefix())
	fmt.Printf("  Request timeout: %s\n", cfg.RequestTimeout())
	limit, burst := cfg.RateLimit()
	fmt.Printf("  Rate limit: %.1f/s (burst %d)\n", limit, burst)
	fmt.Printf("  Breaker: %d failures, %s open\n", cfg.BreakerMaxFailures(), cfg.BreakerTimeout())
	fmt.Printf("Polling: stream processors every %s, system every %s\n", cfg.StreamProcsInterval(), cfg.SystemInterval())
	if cfg.LiveView.Enabled {
		fmt.Printf("Live view: %s\n", cfg.LiveViewListen())
	}
	if len(cfg.Sources) > 1 {
		fmt.Println("Sources:")
		for _, source := range cfg.Sources {
			fmt.Printf("  - %s\n", source)
		}
	}

	exitCode := 0
	if len(cfg.Labels) > 0 {
		fmt.Println("Labels:")
		kinds := make([]string, 0, len(cfg.Labels))
		for kind := range cfg.Labels {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Printf("  %s: %s\n", kind, cfg.Labels[kind])
			if _, err := console.NewLabeler(map[string]string{kind: cfg.Labels[kind]}, zerolog.Nop()); err != nil {
				exitCode = 1
				fmt.Printf("    Error: %v\n", err)
			}
		}
	}

	fmt.Println()
	if exitCode == 0 {
		fmt.Println("Configuration check completed successfully.")
	} else {
		fmt.Println("Configuration check completed with errors.")
	}
	return exitCode
}
