package bot

import (
	"fmt"

	"github.com/ggonzalez94/walletbot/internal/execution"
	"github.com/ggonzalez94/walletbot/internal/execution/planner"
	"github.com/ggonzalez94/walletbot/internal/execution/signer"
	"github.com/ggonzalez94/walletbot/internal/id"
)

const workflowTransfer = string(SessionTransferring)

func (m *Machine) startTransfer(t *turn) error {
	if _, ok, err := m.requireWallet(t); err != nil || !ok {
		return err
	}
	m.say(t, textSelectAsset, transferAssetKeyboard())
	return nil
}

func (m *Machine) selectTransferTicker(t *turn, ticker string) error {
	token, err := id.ParseToken(ticker)
	if err != nil {
		m.say(t, textInvalidSelection, nil)
		return nil
	}
	if _, ok, err := m.requireWallet(t); err != nil || !ok {
		return err
	}
	next := Session{Kind: SessionTransferring, Transfer: &TransferState{Ticker: token.Symbol}}
	if err := m.begin(t, next); err != nil {
		return err
	}
	m.say(t, fmt.Sprintf("You selected %s. Please enter the recipient address:", token.Symbol), nil)
	return nil
}

// transferInput fills the recipient, then the amount. Invalid input
// re-prompts without touching the collected fields.
func (m *Machine) transferInput(t *turn, s Session, text string) error {
	if s.Transfer == nil {
		if err := m.reset(t); err != nil {
			return err
		}
		m.say(t, textNoTransfer, mainMenuKeyboard())
		return nil
	}
	state := *s.Transfer
	switch {
	case state.Recipient == "":
		recipient, err := id.ParseAddress(text)
		if err != nil {
			m.say(t, textInvalidRecipient, nil)
			return nil
		}
		state.Recipient = recipient.Hex()
		if err := m.save(t, Session{Kind: SessionTransferring, Transfer: &state}); err != nil {
			return err
		}
		m.say(t, fmt.Sprintf("Recipient set to %s. Now, please enter the amount to transfer:", state.Recipient), nil)
	case state.Amount == "":
		amount, err := id.NormalizeAmount(text)
		if err != nil {
			m.say(t, textInvalidAmount, nil)
			return nil
		}
		if token, err := id.ParseToken(state.Ticker); err == nil {
			if _, err := id.ToBaseUnits(amount, token.Decimals); err != nil {
				m.say(t, userMessage(err), nil)
				return nil
			}
		}
		state.Amount = amount
		if err := m.save(t, Session{Kind: SessionTransferring, Transfer: &state}); err != nil {
			return err
		}
		m.say(t, transferConfirmText(state), confirmTransferKeyboard())
	default:
		m.say(t, transferConfirmText(state), confirmTransferKeyboard())
	}
	return nil
}

// confirmTransfer signs and sends the collected transfer. The session is
// cleared whatever the outcome.
func (m *Machine) confirmTransfer(t *turn) error {
	s, err := m.session(t)
	if err != nil {
		return err
	}
	if s.Kind != SessionTransferring || s.Transfer == nil || !s.Transfer.Ready() {
		m.say(t, textNoTransfer, mainMenuKeyboard())
		return nil
	}
	defer m.finish(t)

	w, ok, err := m.requireWallet(t)
	if err != nil || !ok {
		return err
	}
	plan, err := planner.BuildTransfer(planner.TransferRequest{
		Chain:     m.transferChain,
		Ticker:    s.Transfer.Ticker,
		Recipient: s.Transfer.Recipient,
		Amount:    s.Transfer.Amount,
	})
	if err != nil {
		m.failWorkflow(t, workflowTransfer, err, "", textTransferFailed)
		return nil
	}

	action := execution.PlanDirect(execution.IntentTransfer, plan.Chain.Slug, plan.Step)
	action.UserID = t.user
	action.InputAmount = plan.BaseAmount.String()
	var receipt execution.Receipt
	err = m.vault.WithSigner(w, func(txSigner signer.Signer) error {
		var execErr error
		receipt, execErr = m.executor.Execute(t.ctx, &action, txSigner)
		return execErr
	})
	if err != nil {
		m.failWorkflow(t, workflowTransfer, err, action.TxHash, textTransferFailed)
		return nil
	}
	t.log.Info().Str("action_id", action.ActionID).Str("tx_hash", receipt.TxHash.Hex()).Msg("transfer confirmed")
	m.metrics.Workflow(workflowTransfer, "completed")
	m.say(t, fmt.Sprintf("Transfer successful!\nTransaction hash: %s", receipt.TxHash.Hex()), nil)
	m.say(t, textNext, backToMainMenuKeyboard())
	return nil
}

func (m *Machine) cancelTransfer(t *turn) error {
	s, err := m.session(t)
	if err != nil {
		return err
	}
	if s.Kind == SessionTransferring {
		if err := m.reset(t); err != nil {
			return err
		}
		m.metrics.Workflow(workflowTransfer, "cancelled")
	}
	m.say(t, textTransferCancel, backToMainMenuKeyboard())
	return nil
}
