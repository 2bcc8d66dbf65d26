package app

import (
	"context"
	"strings"

	"github.com/ggonzalez94/walletbot/internal/balance"
	"github.com/ggonzalez94/walletbot/internal/chain"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/execution"
	"github.com/ggonzalez94/walletbot/internal/id"
	"github.com/ggonzalez94/walletbot/internal/model"
	"github.com/ggonzalez94/walletbot/internal/registry"
	"github.com/ggonzalez94/walletbot/internal/schema"
	"github.com/ggonzalez94/walletbot/internal/vault"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random ENCRYPTION_KEY for the wallet vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := vault.GenerateKey()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "generate encryption key", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.EncryptionKey{Key: key, EnvVar: "ENCRYPTION_KEY"}, nil)
		},
	}
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Describe commands and flags as data",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), doc, nil)
		},
	}
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show native and token balances of an address on every chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := chain.NewPool(s.settings.RPCURLs)
			defer pool.Close()
			reader := balance.NewReader(pool, balance.WithLogger(s.log))

			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			report, err := reader.Report(ctx, args[0])
			if err != nil {
				return err
			}
			data, warnings := balanceReport(report)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, warnings)
		},
	}
}

func balanceReport(report balance.Report) (model.BalanceReport, []string) {
	out := model.BalanceReport{Address: report.Address.Hex()}
	var warnings []string
	for _, cb := range report.Chains {
		for _, line := range cb.Lines {
			out.Balances = append(out.Balances, model.BalanceRow{
				Chain:   cb.Chain.Slug,
				ChainID: cb.Chain.CAIP2,
				Token:   line.Token,
				Balance: line.Text,
			})
			if line.Text == balance.ErrorSentinel {
				warnings = append(warnings, "balance read failed for "+line.Token+" on "+cb.Chain.Slug)
			}
		}
	}
	return out, warnings
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List supported chains and the RPC endpoint each one uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := chain.NewPool(s.settings.RPCURLs)
			defer pool.Close()
			var items []model.ChainInfo
			for _, c := range id.Chains() {
				url, err := pool.RPCURL(c)
				if err != nil {
					return err
				}
				items = append(items, model.ChainInfo{Name: c.Name, Slug: c.Slug, ChainID: c.CAIP2, RPCURL: url})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
}

func (s *runtimeState) newRoutesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List supported position migration routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items := []model.RouteInfo{}
			for _, from := range registry.MigrationSources() {
				for _, to := range registry.MigrationDestinations(from) {
					route, ok := registry.Migration(from, to)
					if !ok {
						continue
					}
					route = route.WithOverrides(s.settings.RouteOverrides)
					items = append(items, model.RouteInfo{
						From:       route.From,
						To:         route.To,
						Token:      route.Token,
						Protocol:   route.Protocol,
						Aggregator: route.Aggregator,
					})
				}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Inspect the transaction journal"}

	var status, intent string
	var filter execution.ActionFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List journaled transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := execution.ParseActionStatus(status)
			if err != nil {
				return err
			}
			filter.Status = st
			filter.Intent = strings.ToLower(strings.TrimSpace(intent))
			store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open action journal", err)
			}
			defer store.Close()
			items, err := store.List(filter)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (planned, submitted, completed, failed)")
	list.Flags().StringVar(&intent, "intent", "", "Filter by intent (transfer, migrate_approval, migrate)")
	list.Flags().Int64Var(&filter.UserID, "user", 0, "Filter by Telegram user id")
	list.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of actions to return")

	var actionID string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show one journaled transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(actionID) == "" {
				return clierr.New(clierr.CodeUsage, "--action-id is required")
			}
			store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open action journal", err)
			}
			defer store.Close()
			action, err := store.Get(actionID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action, nil)
		},
	}
	show.Flags().StringVar(&actionID, "action-id", "", "Action identifier")

	root.AddCommand(list)
	root.AddCommand(show)
	return root
}
