package bot

import clierr "github.com/ggonzalez94/walletbot/internal/errors"

func (m *Machine) balanceMenu(t *turn) error {
	if _, ok, err := m.requireWallet(t); err != nil || !ok {
		return err
	}
	m.say(t, textBalanceChoice, checkBalanceKeyboard())
	return nil
}

func (m *Machine) checkMyBalance(t *turn) error {
	w, ok, err := m.requireWallet(t)
	if err != nil || !ok {
		return err
	}
	m.sendReport(t, w.Address)
	m.say(t, textNext, backToMainMenuKeyboard())
	return nil
}

func (m *Machine) startBalanceLookup(t *turn) error {
	if err := m.begin(t, Session{Kind: SessionAwaitingBalanceAddress}); err != nil {
		return err
	}
	m.say(t, textBalanceAddress, nil)
	return nil
}

// checkOtherBalance answers a balance lookup for an arbitrary address. An
// invalid address keeps the lookup pending.
func (m *Machine) checkOtherBalance(t *turn, s Session, address string) error {
	if !m.sendReport(t, address) {
		return nil
	}
	if s.Kind == SessionAwaitingBalanceAddress {
		if err := m.reset(t); err != nil {
			return err
		}
	}
	m.say(t, textNext, backToMainMenuKeyboard())
	return nil
}

// sendReport replies with the balance sweep. It returns false when the
// address was rejected.
func (m *Machine) sendReport(t *turn, address string) bool {
	report, err := m.balances.Report(t.ctx, address)
	if err != nil {
		if clierr.Is(err, clierr.CodeValidation) {
			m.say(t, textBalanceInvalid, nil)
			return false
		}
		t.log.Error().Err(err).Msg("balance report failed")
		m.say(t, textBalanceFailed, nil)
		return true
	}
	m.metrics.Workflow("check_balance", "completed")
	m.say(t, report.Text(), nil)
	return true
}
