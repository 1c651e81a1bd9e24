// Package main implements the taskdispatch API server, which owns the
// messaging channel session and runs reminder dispatches for the operator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/api/middleware"
	"github.com/facilitydesk/taskdispatch/internal/channel/bridge"
	"github.com/facilitydesk/taskdispatch/internal/config"
	"github.com/facilitydesk/taskdispatch/internal/platform/logger"
	"github.com/facilitydesk/taskdispatch/internal/platform/postgres"
)

// options are the command line flags of the server binary.
type options struct {
	configPath string
	migrate    string
	issueToken string
	tokenTTL   time.Duration
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file (default ./config.yaml if present)")
	fs.StringVar(&opts.migrate, "migrate", "", "run a migration command (up, down, status, version) and exit")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print an operator token for this subject and exit")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", 12*time.Hour, "lifetime of tokens printed by -issue-token")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.migrate != "" && !validMigrationCommand(opts.migrate) {
		return options{}, fmt.Errorf("unsupported migration command %q", opts.migrate)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("invalid arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"timezone", cfg.Dispatch.Timezone)

	if opts.issueToken != "" {
		return issueToken(cfg, opts.issueToken, opts.tokenTTL, out)
	}

	db, err := setupAppDatabase(ctx, cfg, l)
	if err != nil {
		return err
	}

	if opts.migrate != "" {
		defer func() { _ = db.Close() }()
		return runMigrations(ctx, db, opts.migrate, l)
	}

	app, err := newApplication(cfg, l, appDeps{
		db:          db,
		occurrences: postgres.NewPostgresOccurrenceStore(db, l),
		recipients:  postgres.NewPostgresRecipientStore(db, l),
		clients:     bridge.NewFactory(cfg.Channel.BridgeURL, nil, l),
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

func issueToken(cfg *config.Config, subject string, ttl time.Duration, out io.Writer) error {
	verifier, err := middleware.NewHMACVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	token, err := verifier.Issue(subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
