// Package main provides the entry point for the bantr server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aman-Thakur002/Bantr/internal/server"
	"github.com/Aman-Thakur002/Bantr/pkg/auth"
	"github.com/Aman-Thakur002/Bantr/pkg/platform"
)

// mintTokenTTL is the lifetime of tokens issued by -mint-token.
const mintTokenTTL = 24 * time.Hour

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath   string
	address      string
	mintToken    string
	migrate      string
	migrateSteps int
	showVersion  bool
}

func parseFlags(args []string, stderr io.Writer) (serverOptions, error) {
	opts := serverOptions{}
	fs := flag.NewFlagSet("bantr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.address, "address", "", "Listen address (overrides server.address)")
	fs.StringVar(&opts.mintToken, "mint-token", "", "Print an access token for the given user id and exit")
	fs.StringVar(&opts.migrate, "migrate", "", "Run a migration command (up, down, steps, version) and exit")
	fs.IntVar(&opts.migrateSteps, "steps", 0, "Migrations to apply with -migrate steps (negative rolls back)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func loadConfig(opts serverOptions) (*platform.Config, error) {
	cfg := platform.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = platform.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mintToken(cfg *platform.Config, userID string, stdout io.Writer) error {
	signer := &auth.Signer{Secret: []byte(cfg.Auth.AccessSecret), Issuer: cfg.Auth.Issuer}
	token, err := signer.Sign(userID, "", mintTokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if opts.showVersion {
		_, _ = fmt.Fprintf(stdout, "bantr version %s\n", server.Version)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.mintToken != "" {
		return mintToken(cfg, opts.mintToken, stdout)
	}
	if opts.migrate != "" {
		return runMigrate(cfg, opts, stdout)
	}

	logger := server.NewLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := platform.New(platform.WithConfig(cfg), platform.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating platform: %w", err)
	}
	return serve(ctx, cfg, p, logger)
}

// serve runs the HTTP server until ctx is cancelled, then drains and stops
// the platform within the configured shutdown timeout.
func serve(ctx context.Context, cfg *platform.Config, p *platform.Platform, logger *slog.Logger) error {
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}

	srv := server.New(cfg, p)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address, "version", server.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	p.Drain()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := p.Stop(shutdownCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("stopping platform: %w", err))
	}
	return serveErr
}
