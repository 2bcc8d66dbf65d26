package bot

import (
	"fmt"

	clierr "github.com/ggonzalez94/walletbot/internal/errors"
)

func (m *Machine) createWallet(t *turn) error {
	if err := m.begin(t, idleSession()); err != nil {
		return err
	}
	w, err := m.vault.Create()
	if err != nil {
		return err
	}
	if err := m.vault.Save(t.ctx, t.user, w); err != nil {
		return err
	}
	t.log.Info().Str("address", w.Address).Msg("wallet created")
	m.metrics.Workflow("create_wallet", "completed")
	m.say(t, walletCreatedText(w.Address, w.EncryptedPrivateKey), nil)
	m.say(t, textNext, backToMainMenuKeyboard())
	return nil
}

func (m *Machine) startImport(t *turn) error {
	if err := m.begin(t, Session{Kind: SessionImportingWallet}); err != nil {
		return err
	}
	m.say(t, textImportPrompt, nil)
	return nil
}

// importWallet consumes the private key text. A malformed key re-prompts and
// keeps the import pending.
func (m *Machine) importWallet(t *turn, raw string) error {
	w, err := m.vault.Import(raw)
	if err != nil {
		if clierr.Is(err, clierr.CodeInvalidKey) {
			m.say(t, userMessage(err), nil)
			return nil
		}
		return err
	}
	if err := m.vault.Save(t.ctx, t.user, w); err != nil {
		return err
	}
	if err := m.reset(t); err != nil {
		return err
	}
	t.log.Info().Str("address", w.Address).Msg("wallet imported")
	m.metrics.Workflow(string(SessionImportingWallet), "completed")
	m.say(t, fmt.Sprintf("Wallet imported successfully:\n\nAddress: %s", w.Address), nil)
	m.say(t, textNext, backToMainMenuKeyboard())
	return nil
}
