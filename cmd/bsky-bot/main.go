// Telegram-driven Bluesky bot: posts, replies, quotes, reposts, and profile
// updates for a single account, with a local record of everything authored.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bluesky-social/indigo/atproto/identity"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"

	"github.com/maurelioredfox/bsky-bot/atp"
	"github.com/maurelioredfox/bsky-bot/service"
	"github.com/maurelioredfox/bsky-bot/store"
	"github.com/maurelioredfox/bsky-bot/telegram"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:    "bsky-bot",
		Usage:   "telegram-controlled bluesky posting bot",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "pds-host",
			Usage:   "method, hostname, and port of the account's PDS",
			Value:   "https://bsky.social",
			EnvVars: []string{"ATP_PDS_HOST"},
		},
		&cli.StringFlag{
			Name:     "bsky-identifier",
			Usage:    "handle or DID to log in as",
			Required: true,
			EnvVars:  []string{"BSKY_USERNAME"},
		},
		&cli.StringFlag{
			Name:     "bsky-password",
			Usage:    "app password for the account",
			Required: true,
			EnvVars:  []string{"BSKY_PASSWORD"},
		},
		&cli.StringFlag{
			Name:     "telegram-token",
			Usage:    "telegram bot API token",
			Required: true,
			EnvVars:  []string{"TELEGRAM_TOKEN_BSKY"},
		},
		&cli.Int64Flag{
			Name:     "admin-id",
			Usage:    "telegram user id allowed to set the authorized user",
			Required: true,
			EnvVars:  []string{"ADMIN_ID"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string (sqlite:// or postgresql://)",
			Value:   "sqlite://data/bsky-bot/posts.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "bluesky-list",
			Usage:   "at:// URI of a list to support /addtolist (optional)",
			EnvVars: []string{"BLUESKY_LIST"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics",
			Value:   ":3989",
			EnvVars: []string{"BSKYBOT_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"BSKYBOT_LOG_LEVEL"},
		},
	}

	app.Action = runBot
	return app.Run(args)
}

func runBot(cctx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := configLogger(cctx.String("log-level"))

	db, err := store.Open(cctx.String("database-url"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	session, err := atp.NewSession(ctx,
		cctx.String("pds-host"),
		cctx.String("bsky-identifier"),
		cctx.String("bsky-password"),
		logger.With("subsystem", "atp"),
	)
	if err != nil {
		return err
	}

	dir := identity.DefaultDirectory()
	svc := service.New(session, dir, db, cctx.String("bluesky-list"), logger)

	bot, err := telegram.New(cctx.String("telegram-token"), svc, db, cctx.Int64("admin-id"), logger)
	if err != nil {
		return err
	}

	go func() {
		listen := cctx.String("metrics-listen")
		logger.Info("metrics listening", "addr", listen)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(listen, mux); err != nil {
			logger.Error("metrics listener failed", "err", err)
		}
	}()

	return bot.Run(ctx)
}

func configLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	return logger
}
