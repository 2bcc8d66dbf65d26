package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggonzalez94/walletbot/internal/balance"
	"github.com/ggonzalez94/walletbot/internal/bot"
	"github.com/ggonzalez94/walletbot/internal/chain"
	"github.com/ggonzalez94/walletbot/internal/config"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/execution"
	"github.com/ggonzalez94/walletbot/internal/execution/planner"
	"github.com/ggonzalez94/walletbot/internal/metrics"
	"github.com/ggonzalez94/walletbot/internal/session"
	"github.com/ggonzalez94/walletbot/internal/telegram"
	"github.com/ggonzalez94/walletbot/internal/vault"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (s *runtimeState) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.settings.ValidateServe(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&s.flags.SessionBackend, "session-backend", "", "Session and wallet store (memory, sqlite, redis)")
	cmd.Flags().StringVar(&s.flags.MetricsListen, "metrics-listen", "", "Address for the Prometheus /metrics endpoint, e.g. :9090")
	cmd.Flags().StringVar(&s.flags.TransferChain, "transfer-chain", "", "Chain used for token transfers (base, polygon)")
	return cmd
}

// serve wires the bot components and blocks until ctx ends or the update
// stream closes.
func (s *runtimeState) serve(ctx context.Context) error {
	settings := s.settings
	log := s.log

	cipher, err := vault.NewCipher(settings.EncryptionKey)
	if err != nil {
		return clierr.Wrap(clierr.CodeConfig, "load encryption key", err)
	}
	// Wallets share the backend but never expire with idle sessions.
	sessions, err := openStore(ctx, settings, "sessions", settings.SessionTTL)
	if err != nil {
		return err
	}
	defer sessions.Close()
	wallets, err := openStore(ctx, settings, "wallets", 0)
	if err != nil {
		return err
	}
	defer wallets.Close()

	journal, err := execution.OpenStore(settings.ActionStorePath, settings.ActionLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "open action journal", err)
	}
	defer journal.Close()

	pool := chain.NewPool(settings.RPCURLs)
	defer pool.Close()

	mt := metrics.New()
	reader := balance.NewReader(pool, balance.WithLogger(log))
	engine := execution.NewEngine(pool, engineOptions(settings),
		execution.WithStore(journal),
		execution.WithLogger(log),
		execution.WithMetrics(mt),
	)
	migrator := planner.NewMigrator(reader, pool,
		planner.WithRouteOverrides(settings.RouteOverrides),
		planner.WithSlippageBps(settings.SlippageBps),
	)

	machine, err := bot.New(bot.Deps{
		Vault:    vault.New(cipher, wallets),
		Balances: reader,
		Executor: engine,
		Migrator: migrator,
		Sessions: sessions,
	},
		bot.WithLogger(log),
		bot.WithMetrics(mt),
		bot.WithTransferChain(settings.TransferChain),
		bot.WithAllowlist(settings.AllowedUsers),
	)
	if err != nil {
		return err
	}
	transport, err := telegram.New(settings.TelegramToken, machine, telegram.WithLogger(log))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	if settings.MetricsListen != "" {
		g.Go(func() error {
			log.Info().Str("addr", settings.MetricsListen).Msg("serving metrics")
			if err := metrics.Serve(gctx, settings.MetricsListen, mt); err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "serve metrics", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return transport.Run(gctx)
	})

	log.Info().
		Str("session_backend", settings.SessionBackend).
		Str("transfer_chain", settings.TransferChain).
		Int("allowed_users", len(settings.AllowedUsers)).
		Msg("bot started")
	err = g.Wait()
	log.Info().Msg("bot stopped")
	return err
}

// openStore opens the configured backend; table names the sqlite table or
// the redis key segment.
func openStore(ctx context.Context, settings config.Settings, table string, ttl time.Duration) (session.Store, error) {
	switch settings.SessionBackend {
	case config.SessionBackendSQLite:
		store, err := session.OpenSQLite(settings.SessionPath, settings.SessionLockPath, table, ttl)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "open sqlite session store", err)
		}
		return store, nil
	case config.SessionBackendRedis:
		store, err := session.NewRedis(ctx, session.RedisConfig{
			Address:  settings.RedisAddress,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
			Prefix:   settings.RedisPrefix + table + ":",
			TTL:      ttl,
		})
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "open redis session store", err)
		}
		return store, nil
	default:
		return session.NewMemory(ttl), nil
	}
}

func engineOptions(settings config.Settings) execution.Options {
	opts := execution.DefaultOptions()
	if settings.PollInterval > 0 {
		opts.PollInterval = settings.PollInterval
	}
	if settings.ConfirmTimeout > 0 {
		opts.ConfirmTimeout = settings.ConfirmTimeout
	}
	if settings.GasMultiplier > 1 {
		opts.GasMultiplier = settings.GasMultiplier
	}
	opts.MaxFeeGwei = settings.MaxFeeGwei
	opts.MaxPriorityFeeGwei = settings.MaxPriorityFeeGwei
	return opts
}
