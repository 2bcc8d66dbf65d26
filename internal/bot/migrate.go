package bot

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/walletbot/internal/execution"
	"github.com/ggonzalez94/walletbot/internal/execution/planner"
	"github.com/ggonzalez94/walletbot/internal/execution/signer"
	"github.com/ggonzalez94/walletbot/internal/id"
	"github.com/ggonzalez94/walletbot/internal/registry"
	"github.com/ggonzalez94/walletbot/internal/vault"
)

const (
	workflowMigration = string(SessionMigrating)

	textMigrateNetworksFirst = "Please choose the source and destination networks with the buttons first."
)

func (m *Machine) startMigration(t *turn) error {
	if _, ok, err := m.requireWallet(t); err != nil || !ok {
		return err
	}
	if err := m.begin(t, Session{Kind: SessionMigrating, Migration: &MigrationState{}}); err != nil {
		return err
	}
	m.say(t, textMigrateSource, networkKeyboard(prefixMigrateFrom, registry.MigrationSources()))
	return nil
}

func (m *Machine) migrationState(t *turn) (*MigrationState, error) {
	s, err := m.session(t)
	if err != nil {
		return nil, err
	}
	if s.Kind != SessionMigrating || s.Migration == nil {
		return nil, nil
	}
	return s.Migration, nil
}

func (m *Machine) saveMigration(t *turn, state *MigrationState) error {
	return m.save(t, Session{Kind: SessionMigrating, Migration: state})
}

func (m *Machine) selectMigrationSource(t *turn, from string) error {
	state, err := m.migrationState(t)
	if err != nil {
		return err
	}
	if state == nil {
		m.say(t, textNoMigration, mainMenuKeyboard())
		return nil
	}
	if !slices.Contains(registry.MigrationSources(), from) {
		m.say(t, textInvalidSelection, nil)
		return nil
	}
	*state = MigrationState{FromNetwork: from}
	if err := m.saveMigration(t, state); err != nil {
		return err
	}
	m.say(t, textMigrateDest, networkKeyboard(prefixMigrateTo, registry.MigrationDestinations(from)))
	return nil
}

func (m *Machine) selectMigrationDestination(t *turn, to string) error {
	state, err := m.migrationState(t)
	if err != nil {
		return err
	}
	if state == nil || state.FromNetwork == "" {
		m.say(t, textNoMigration, mainMenuKeyboard())
		return nil
	}
	route, err := m.migrator.Route(state.FromNetwork, to)
	if err != nil {
		m.say(t, textInvalidSelection, nil)
		return nil
	}
	state.ToNetwork = route.To
	state.Protocol = route.Protocol
	if err := m.saveMigration(t, state); err != nil {
		return err
	}
	m.say(t, textMigrateToken, nil)
	return nil
}

// migrationInput collects the token and then the amount. The token is taken
// from the route, so any reply moves on to the amount prompt; a valid amount
// starts execution.
func (m *Machine) migrationInput(t *turn, s Session, text string) error {
	state := s.Migration
	if state == nil || state.FromNetwork == "" || state.ToNetwork == "" {
		m.say(t, textMigrateNetworksFirst, nil)
		return nil
	}
	route, err := m.migrator.Route(state.FromNetwork, state.ToNetwork)
	if err != nil {
		return err
	}
	switch {
	case state.Token == "":
		state.Token = route.Token
		if err := m.saveMigration(t, state); err != nil {
			return err
		}
		m.say(t, fmt.Sprintf("Migrating your %s %s position from %s to %s. %s",
			route.Protocol, route.Token, chainName(route.From), chainName(route.To), textMigrateAmount), nil)
		return nil
	case state.Amount == "":
		amount, err := id.NormalizeAmount(text)
		if err != nil {
			m.say(t, textInvalidAmount, nil)
			return nil
		}
		token, err := id.ParseToken(route.Token)
		if err != nil {
			return err
		}
		if _, err := id.ToBaseUnits(amount, token.Decimals); err != nil {
			m.say(t, userMessage(err), nil)
			return nil
		}
		state.Amount = amount
		if err := m.saveMigration(t, state); err != nil {
			return err
		}
		w, ok, err := m.requireWallet(t)
		if err != nil || !ok {
			m.finish(t)
			return err
		}
		m.runMigration(t, w, *state)
		return nil
	}
	m.say(t, textUnknown, mainMenuKeyboard())
	return nil
}

// runMigration sends the approval on its own, then the aggregated batch.
// The session is cleared on every exit path.
func (m *Machine) runMigration(t *turn, w vault.UserWallet, state MigrationState) {
	defer m.finish(t)
	log := t.log.With().Str("from", state.FromNetwork).Str("to", state.ToNetwork).Str("amount", state.Amount).Logger()

	req := planner.MigrationRequest{
		From:   state.FromNetwork,
		To:     state.ToNetwork,
		Token:  state.Token,
		Amount: state.Amount,
		User:   common.HexToAddress(w.Address),
	}
	approvalStep, approvalAmount, err := m.migrator.Approval(req)
	if err != nil {
		m.failWorkflow(t, workflowMigration, err, "", textMigrateFailed)
		return
	}

	var lastHash string
	err = m.vault.WithSigner(w, func(txSigner signer.Signer) error {
		m.say(t, textMigrateApproving, nil)
		approval := execution.PlanDirect(execution.IntentMigrateApproval, state.FromNetwork, approvalStep)
		approval.UserID = t.user
		approval.InputAmount = approvalAmount.String()
		receipt, err := m.executor.Execute(t.ctx, &approval, txSigner)
		lastHash = approval.TxHash
		if err != nil {
			return err
		}
		log.Info().Str("tx_hash", receipt.TxHash.Hex()).Msg("migration approval confirmed")
		m.say(t, fmt.Sprintf("Approval transaction confirmed. Hash: %s", receipt.TxHash.Hex()), nil)

		plan, err := m.migrator.BuildMigration(t.ctx, req)
		lastHash = ""
		if err != nil {
			return err
		}
		m.say(t, textMigrateBuilt, nil)
		batch, err := execution.PlanBatch(execution.IntentMigrate, plan.Chain, plan.Aggregator, plan.Steps, plan.Value)
		if err != nil {
			return err
		}
		batch.UserID = t.user
		batch.InputAmount = plan.BaseAmount.String()
		receipt, err = m.executor.Execute(t.ctx, &batch, txSigner)
		lastHash = batch.TxHash
		if err != nil {
			return err
		}
		log.Info().Str("action_id", batch.ActionID).Str("tx_hash", receipt.TxHash.Hex()).Msg("migration batch confirmed")
		m.metrics.Workflow(workflowMigration, "completed")
		m.say(t, fmt.Sprintf("Migration transaction confirmed! Hash: %s\nYour %s is being bridged from %s to %s and will be supplied to %s on arrival.",
			receipt.TxHash.Hex(), plan.Route.Token, chainName(plan.Route.From), chainName(plan.Route.To), plan.Route.Protocol), nil)
		return nil
	})
	if err != nil {
		m.failWorkflow(t, workflowMigration, err, lastHash, textMigrateFailed)
		return
	}
	m.say(t, textNext, backToMainMenuKeyboard())
}

func (m *Machine) cancelMigration(t *turn) error {
	s, err := m.session(t)
	if err != nil {
		return err
	}
	if s.Kind == SessionMigrating {
		if err := m.reset(t); err != nil {
			return err
		}
		m.metrics.Workflow(workflowMigration, "cancelled")
	}
	m.say(t, textMigrateCancel, mainMenuKeyboard())
	return nil
}
