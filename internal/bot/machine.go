// Package bot is the per-user conversation state machine. It turns button
// presses, commands and free text into wallet, balance, transfer and
// migration workflows, and is independent of the chat transport.
package bot

import (
	"context"
	"fmt"
	"math/big"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/ggonzalez94/walletbot/internal/balance"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/execution"
	"github.com/ggonzalez94/walletbot/internal/execution/planner"
	"github.com/ggonzalez94/walletbot/internal/execution/signer"
	"github.com/ggonzalez94/walletbot/internal/metrics"
	"github.com/ggonzalez94/walletbot/internal/policy"
	"github.com/ggonzalez94/walletbot/internal/registry"
	"github.com/ggonzalez94/walletbot/internal/session"
	"github.com/ggonzalez94/walletbot/internal/vault"
	"github.com/rs/zerolog"
)

type BalanceReporter interface {
	Report(ctx context.Context, address string) (balance.Report, error)
}

// Executor signs, sends and confirms one journaled action.
type Executor interface {
	Execute(ctx context.Context, action *execution.Action, txSigner signer.Signer) (execution.Receipt, error)
}

type MigrationPlanner interface {
	Route(from, to string) (registry.MigrationRoute, error)
	Approval(req planner.MigrationRequest) (execution.CallStep, *big.Int, error)
	BuildMigration(ctx context.Context, req planner.MigrationRequest) (planner.MigrationPlan, error)
}

type Deps struct {
	Vault    *vault.Vault
	Balances BalanceReporter
	Executor Executor
	Migrator MigrationPlanner
	Sessions session.Store
}

type Option func(*Machine)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithTransferChain sets the chain ERC-20 transfers are sent on.
func WithTransferChain(slug string) Option {
	return func(m *Machine) {
		if s := strings.TrimSpace(slug); s != "" {
			m.transferChain = s
		}
	}
}

// WithAllowlist restricts the bot to the given user ids.
func WithAllowlist(ids []int64) Option {
	return func(m *Machine) { m.allowlist = append([]int64(nil), ids...) }
}

type Machine struct {
	vault    *vault.Vault
	balances BalanceReporter
	executor Executor
	migrator MigrationPlanner
	sessions *session.Keyed[Session]

	transferChain string
	allowlist     []int64
	metrics       *metrics.Metrics
	log           zerolog.Logger

	mu    sync.Mutex
	users map[int64]*sync.Mutex
}

func New(deps Deps, opts ...Option) (*Machine, error) {
	switch {
	case deps.Vault == nil:
		return nil, clierr.New(clierr.CodeConfig, "bot requires a wallet vault")
	case deps.Balances == nil:
		return nil, clierr.New(clierr.CodeConfig, "bot requires a balance reader")
	case deps.Executor == nil:
		return nil, clierr.New(clierr.CodeConfig, "bot requires an execution engine")
	case deps.Migrator == nil:
		return nil, clierr.New(clierr.CodeConfig, "bot requires a migration planner")
	case deps.Sessions == nil:
		return nil, clierr.New(clierr.CodeConfig, "bot requires a session store")
	}
	m := &Machine{
		vault:         deps.Vault,
		balances:      deps.Balances,
		executor:      deps.Executor,
		migrator:      deps.Migrator,
		sessions:      session.NewKeyed[Session](deps.Sessions, "session"),
		transferChain: planner.DefaultTransferChain,
		log:           zerolog.Nop(),
		users:         map[int64]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// turn carries the state of one event through the handlers.
type turn struct {
	ctx  context.Context
	user int64
	out  Responder
	log  zerolog.Logger
}

// Handle processes one event to completion. Events of the same user are
// serialized; a failing or panicking handler is answered with a generic
// apology and never escapes.
func (m *Machine) Handle(ctx context.Context, ev Event, out Responder) {
	lock := m.userLock(ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	t := &turn{
		ctx:  ctx,
		user: ev.UserID,
		out:  out,
		log:  m.log.With().Int64("user_id", ev.UserID).Str("event", string(ev.Kind)).Logger(),
	}
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("event handler panicked")
			m.say(t, textGenericError, nil)
		}
	}()

	m.metrics.Event(string(ev.Kind))
	if err := policy.CheckUserAllowed(m.allowlist, ev.UserID); err != nil {
		t.log.Warn().Msg("rejected user outside allowlist")
		m.say(t, userMessage(err), nil)
		return
	}

	var err error
	switch ev.Kind {
	case EventCommand:
		err = m.onCommand(t, ev.Data)
	case EventButton:
		err = m.onButton(t, strings.TrimSpace(ev.Data))
	case EventText:
		err = m.onText(t, ev)
	default:
		err = fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if err != nil {
		t.log.Error().Err(err).Msg("event handling failed")
		m.say(t, textGenericError, nil)
	}
}

func (m *Machine) onCommand(t *turn, raw string) error {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "/"))
	if i := strings.IndexAny(name, " @"); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "start":
		if err := m.begin(t, idleSession()); err != nil {
			return err
		}
		m.say(t, textWelcome, mainMenuKeyboard())
	case "menu":
		m.say(t, textMenu, mainMenuKeyboard())
	case "cancel":
		s, err := m.session(t)
		if err != nil {
			return err
		}
		if s.idle() {
			m.say(t, textNothingToCancel, mainMenuKeyboard())
			return nil
		}
		if err := m.reset(t); err != nil {
			return err
		}
		m.metrics.Workflow(string(s.Kind), "cancelled")
		m.say(t, fmt.Sprintf("Your %s was cancelled. What would you like to do?", s.workflow()), mainMenuKeyboard())
	default:
		m.say(t, textUnknown, mainMenuKeyboard())
	}
	return nil
}

func (m *Machine) onButton(t *turn, data string) error {
	switch data {
	case actionMainMenu:
		m.say(t, textMenu, mainMenuKeyboard())
		return nil
	case actionCreateWallet:
		return m.createWallet(t)
	case actionImportWallet:
		return m.startImport(t)
	case actionCheckBalance:
		return m.balanceMenu(t)
	case actionCheckMyBalance:
		return m.checkMyBalance(t)
	case actionCheckOtherBalance:
		return m.startBalanceLookup(t)
	case actionTransferAsset:
		return m.startTransfer(t)
	case actionConfirmTransfer:
		return m.confirmTransfer(t)
	case actionCancelTransfer:
		return m.cancelTransfer(t)
	case actionMigratePosition:
		return m.startMigration(t)
	case actionCancelMigration:
		return m.cancelMigration(t)
	case actionExit:
		if err := m.begin(t, idleSession()); err != nil {
			return err
		}
		m.say(t, textGoodbye, nil)
		return nil
	}
	switch {
	case strings.HasPrefix(data, prefixMigrateFrom):
		return m.selectMigrationSource(t, strings.TrimPrefix(data, prefixMigrateFrom))
	case strings.HasPrefix(data, prefixMigrateTo):
		return m.selectMigrationDestination(t, strings.TrimPrefix(data, prefixMigrateTo))
	case strings.HasPrefix(data, prefixTransfer):
		return m.selectTransferTicker(t, strings.TrimPrefix(data, prefixTransfer))
	}
	m.say(t, textUnknown, mainMenuKeyboard())
	return nil
}

// onText routes free text by the fixed priority: wallet import, balance
// lookup, transfer fields, migration fields, then the menu.
func (m *Machine) onText(t *turn, ev Event) error {
	s, err := m.session(t)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(ev.Data)
	switch {
	case s.Kind == SessionImportingWallet:
		return m.importWallet(t, text)
	case s.Kind == SessionAwaitingBalanceAddress || ev.ReplyToText == textBalanceAddress:
		return m.checkOtherBalance(t, s, text)
	case s.Kind == SessionTransferring:
		return m.transferInput(t, s, text)
	case s.Kind == SessionMigrating:
		return m.migrationInput(t, s, text)
	}
	m.say(t, textUnknown, mainMenuKeyboard())
	return nil
}

func (m *Machine) say(t *turn, text string, kb Keyboard) {
	if err := t.out.Reply(t.ctx, Message{Text: text, Keyboard: kb}); err != nil {
		t.log.Warn().Err(err).Msg("reply failed")
	}
}

func (m *Machine) userLock(userID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.users[userID]
	if !ok {
		l = &sync.Mutex{}
		m.users[userID] = l
	}
	return l
}

func sessionKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (m *Machine) session(t *turn) (Session, error) {
	s, ok, err := m.sessions.Get(t.ctx, sessionKey(t.user))
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return idleSession(), nil
	}
	return s, nil
}

func (m *Machine) save(t *turn, s Session) error {
	return m.sessions.Save(t.ctx, sessionKey(t.user), s)
}

func (m *Machine) reset(t *turn) error {
	return m.sessions.Delete(t.ctx, sessionKey(t.user))
}

// finish clears the session after a terminal transition. Failures are only
// logged since the workflow outcome has already been reported.
func (m *Machine) finish(t *turn) {
	if err := m.reset(t); err != nil {
		t.log.Error().Err(err).Msg("clear session")
	}
}

// begin replaces the user's session. A different pending workflow is
// cancelled and the user is told so.
func (m *Machine) begin(t *turn, next Session) error {
	var cancelled Session
	_, err := m.sessions.Update(t.ctx, sessionKey(t.user), func(cur Session, exists bool) (Session, error) {
		if exists && !cur.idle() && cur.Kind != next.Kind {
			cancelled = cur
		}
		return next, nil
	})
	if err != nil {
		return err
	}
	if !cancelled.idle() {
		m.metrics.Workflow(string(cancelled.Kind), "cancelled")
		m.say(t, fmt.Sprintf("Your pending %s was cancelled.", cancelled.workflow()), nil)
	}
	return nil
}

func (m *Machine) wallet(t *turn) (vault.UserWallet, bool, error) {
	return m.vault.Get(t.ctx, t.user)
}

// requireWallet loads the user's wallet or prompts them to create one.
func (m *Machine) requireWallet(t *turn) (vault.UserWallet, bool, error) {
	w, ok, err := m.wallet(t)
	if err != nil {
		return vault.UserWallet{}, false, err
	}
	if !ok {
		m.say(t, textNeedWallet, createOrImportKeyboard())
	}
	return w, ok, nil
}

// failWorkflow reports a failed terminal step. Transaction hashes are shown
// whenever a transaction was broadcast.
func (m *Machine) failWorkflow(t *turn, workflow string, err error, txHash, fallback string) {
	m.metrics.Workflow(workflow, "failed")
	t.log.Error().Err(err).Str("workflow", workflow).Str("tx_hash", txHash).Msg("workflow failed")
	m.say(t, failureText(err, txHash, fallback), backToMainMenuKeyboard())
}

func failureText(err error, txHash, fallback string) string {
	switch {
	case txHash != "" && clierr.Is(err, clierr.CodeConfirmationTimeout):
		return fmt.Sprintf("Transaction sent but not confirmed yet. Hash: %s", txHash)
	case txHash != "" && clierr.Is(err, clierr.CodeReverted):
		return fmt.Sprintf("Transaction failed on-chain. Hash: %s", txHash)
	case clierr.IsUserFacing(err):
		return userMessage(err)
	}
	return fallback
}

func userMessage(err error) string {
	if e, ok := clierr.As(err); ok && e.Message != "" {
		return e.Message
	}
	return textGenericError
}
