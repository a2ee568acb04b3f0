package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/portal-sniper/internal/config"
	"github.com/web3guy0/portal-sniper/internal/engine"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	var opts config.Options
	flag.StringVar(&opts.APIBase, "api-base", envOr("PORTAL_API_BASE", ""), "marketplace API base URL")
	flag.StringVar(&opts.AuthFile, "auth-file", envOr("AUTH_FILE", config.AuthFileDefault), "fallback authorization token file")
	flag.StringVar(&opts.StrategyFile, "strategy-file", envOr("STRATEGY_FILE", config.StrategyFileDefault), "strategy JSON document")
	flag.StringVar(&opts.AccountsFile, "accounts-file", envOr("PORTAL_ACCOUNTS_FILE", config.AccountsFileDefault), "accounts JSON file")
	flag.StringVar(&opts.StateDBPath, "state-db", envOr("STATE_DB_PATH", config.StateDBDefault), "trade ledger path or postgres:// DSN")
	flag.BoolVar(&opts.Live, "live", false, "execute real marketplace mutations (default dry-run)")
	flag.BoolVar(&opts.NoWarmStart, "no-warm-start", false, "process the current listings page instead of skipping it")
	flag.Parse()

	cfg, err := config.Load(opts)
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}

	mode := "DRY-RUN"
	if !cfg.Runtime.DryRun {
		mode = "LIVE"
	}
	log.Info().
		Str("mode", mode).
		Str("api", cfg.APIBase).
		Int("accounts", len(cfg.Accounts)).
		Int("offer_rules", len(cfg.OfferRules)).
		Int("order_rules", len(cfg.OrderRules)).
		Int("sell_rules", len(cfg.SellRules)).
		Msg("portal sniper starting")

	sup, err := engine.NewSupervisor(cfg)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		log.Error().Err(err).Msg("engine stopped")
		os.Exit(1)
	}
	log.Info().Msg("goodbye")
}
