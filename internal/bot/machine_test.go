package bot

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/walletbot/internal/balance"
	"github.com/ggonzalez94/walletbot/internal/calldata"
	"github.com/ggonzalez94/walletbot/internal/chain"
	"github.com/ggonzalez94/walletbot/internal/chain/chaintest"
	"github.com/ggonzalez94/walletbot/internal/execution"
	"github.com/ggonzalez94/walletbot/internal/execution/planner"
	"github.com/ggonzalez94/walletbot/internal/execution/signer"
	"github.com/ggonzalez94/walletbot/internal/registry"
	"github.com/ggonzalez94/walletbot/internal/session"
	"github.com/ggonzalez94/walletbot/internal/vault"
)

const (
	testCipherKey  = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testPrivateKey = "0x59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	testUserID     = int64(1001)
	testRecipient  = "0x00000000000000000000000000000000000000BB"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) Reply(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) take() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs
	r.msgs = nil
	return out
}

type harness struct {
	t        *testing.T
	machine  *Machine
	vault    *vault.Vault
	sessions *session.Keyed[Session]
	polygon  *chaintest.Client
	base     *chaintest.Client
	out      *recorder
}

type harnessOption func(*Deps)

func newHarness(t *testing.T, opts ...any) *harness {
	t.Helper()
	cipher, err := vault.NewCipher(testCipherKey)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	store := session.NewMemory(0)
	v := vault.New(cipher, store)

	polygon := chaintest.New(137)
	polygon.Call = func(ethereum.CallMsg) ([]byte, error) { return math.U256Bytes(big.NewInt(0)), nil }
	base := chaintest.New(8453)
	base.Call = func(ethereum.CallMsg) ([]byte, error) { return math.U256Bytes(big.NewInt(0)), nil }
	pool := chain.NewStaticPool(map[string]chain.Client{"polygon": polygon, "base": base})

	reader := balance.NewReader(pool)
	execOpts := execution.DefaultOptions()
	execOpts.PollInterval = time.Millisecond
	execOpts.ConfirmTimeout = time.Second
	deps := Deps{
		Vault:    v,
		Balances: reader,
		Executor: execution.NewEngine(pool, execOpts),
		Migrator: planner.NewMigrator(reader, pool),
		Sessions: store,
	}
	var machineOpts []Option
	for _, o := range opts {
		switch o := o.(type) {
		case harnessOption:
			o(&deps)
		case Option:
			machineOpts = append(machineOpts, o)
		}
	}
	m, err := New(deps, machineOpts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{
		t:        t,
		machine:  m,
		vault:    v,
		sessions: session.NewKeyed[Session](store, "session"),
		polygon:  polygon,
		base:     base,
		out:      &recorder{},
	}
}

func (h *harness) send(ev Event) []Message {
	h.t.Helper()
	if ev.UserID == 0 {
		ev.UserID = testUserID
	}
	h.machine.Handle(context.Background(), ev, h.out)
	return h.out.take()
}

func (h *harness) press(data string) []Message {
	return h.send(Event{Kind: EventButton, Data: data})
}

func (h *harness) text(text string) []Message {
	return h.send(Event{Kind: EventText, Data: text})
}

func (h *harness) session() Session {
	h.t.Helper()
	s, ok, err := h.sessions.Get(context.Background(), sessionKey(testUserID))
	if err != nil {
		h.t.Fatalf("load session: %v", err)
	}
	if !ok {
		return idleSession()
	}
	return s
}

func (h *harness) importTestWallet() common.Address {
	h.t.Helper()
	h.press(actionImportWallet)
	msgs := h.text(testPrivateKey)
	if len(msgs) == 0 || !strings.HasPrefix(msgs[0].Text, "Wallet imported successfully") {
		h.t.Fatalf("import failed: %+v", msgs)
	}
	s, err := signer.NewLocalSignerFromHex(testPrivateKey)
	if err != nil {
		h.t.Fatalf("signer: %v", err)
	}
	defer s.Wipe()
	return s.Address()
}

func expectText(t *testing.T, msgs []Message, want string) Message {
	t.Helper()
	for _, m := range msgs {
		if strings.Contains(m.Text, want) {
			return m
		}
	}
	t.Fatalf("expected a reply containing %q, got %+v", want, msgs)
	return Message{}
}

func hasButton(kb Keyboard, data string) bool {
	for _, row := range kb {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

func TestStartShowsMainMenu(t *testing.T) {
	h := newHarness(t)
	msgs := h.send(Event{Kind: EventCommand, Data: "/start"})
	msg := expectText(t, msgs, textWelcome)
	for _, data := range []string{actionCreateWallet, actionImportWallet, actionCheckBalance, actionTransferAsset, actionMigratePosition, actionExit} {
		if !hasButton(msg.Keyboard, data) {
			t.Fatalf("main menu is missing %s", data)
		}
	}
}

func TestCreateWalletThenCheckMyBalance(t *testing.T) {
	h := newHarness(t)
	h.base.BalanceErr = errors.New("rpc down")

	msgs := h.press(actionCreateWallet)
	created := expectText(t, msgs, "New wallet created:")
	w, ok, err := h.vault.Get(context.Background(), testUserID)
	if err != nil || !ok {
		t.Fatalf("expected stored wallet, ok=%v err=%v", ok, err)
	}
	if !strings.Contains(created.Text, "Address: "+w.Address) {
		t.Fatalf("reply does not show the stored address: %q", created.Text)
	}
	h.polygon.NativeBalances[common.HexToAddress(w.Address)] = big.NewInt(3e18)

	msgs = h.press(actionCheckBalance)
	choice := expectText(t, msgs, textBalanceChoice)
	if !hasButton(choice.Keyboard, actionCheckMyBalance) {
		t.Fatalf("balance menu is missing the own-wallet button")
	}

	msgs = h.press(actionCheckMyBalance)
	report := expectText(t, msgs, "Balance:")
	for _, want := range []string{"Base:\n", "Polygon:\n", "ETH: Error\n", "MATIC: 3 MATIC\n", "USDT: Not available on this chain\n", "USDC: 0 USDC\n"} {
		if !strings.Contains(report.Text, want) {
			t.Fatalf("expected %q in report:\n%s", want, report.Text)
		}
	}
	expectText(t, msgs, textNext)
}

func TestCheckBalanceWithoutWalletPromptsCreate(t *testing.T) {
	h := newHarness(t)
	msgs := h.press(actionCheckBalance)
	msg := expectText(t, msgs, textNeedWallet)
	if !hasButton(msg.Keyboard, actionCreateWallet) || !hasButton(msg.Keyboard, actionImportWallet) {
		t.Fatalf("expected create/import keyboard, got %+v", msg.Keyboard)
	}
}

func TestImportRepromptsOnInvalidKey(t *testing.T) {
	h := newHarness(t)
	h.press(actionImportWallet)
	if h.session().Kind != SessionImportingWallet {
		t.Fatalf("expected importing session, got %+v", h.session())
	}

	msgs := h.text("0x1234")
	expectText(t, msgs, "Invalid private key. Please check and try again.")
	if h.session().Kind != SessionImportingWallet {
		t.Fatalf("invalid key must keep the import pending, got %+v", h.session())
	}

	addr := h.importTestWallet()
	if !h.session().idle() {
		t.Fatalf("expected idle session after import, got %+v", h.session())
	}
	w, ok, _ := h.vault.Get(context.Background(), testUserID)
	if !ok || !strings.EqualFold(w.Address, addr.Hex()) {
		t.Fatalf("unexpected stored wallet %+v", w)
	}
	if strings.Contains(w.EncryptedPrivateKey, testPrivateKey[2:]) {
		t.Fatal("private key stored in plaintext")
	}
}

func TestOtherBalanceLookup(t *testing.T) {
	h := newHarness(t)
	h.press(actionCheckOtherBalance)

	expectText(t, h.text("not-an-address"), textBalanceInvalid)
	if h.session().Kind != SessionAwaitingBalanceAddress {
		t.Fatalf("invalid address must keep the lookup pending")
	}
	expectText(t, h.text(testRecipient), "Balance:")
	if !h.session().idle() {
		t.Fatalf("expected idle session, got %+v", h.session())
	}

	msgs := h.send(Event{Kind: EventText, Data: testRecipient, ReplyToText: textBalanceAddress})
	expectText(t, msgs, "Balance:")
}

func TestImportTakesPriorityOverBalanceReply(t *testing.T) {
	h := newHarness(t)
	h.press(actionImportWallet)
	msgs := h.send(Event{Kind: EventText, Data: testRecipient, ReplyToText: textBalanceAddress})
	expectText(t, msgs, "Invalid private key")
}

func TestTransferFlow(t *testing.T) {
	h := newHarness(t)
	h.importTestWallet()

	msg := expectText(t, h.press(actionTransferAsset), textSelectAsset)
	if !hasButton(msg.Keyboard, "transfer_USDC") {
		t.Fatalf("asset keyboard is missing USDC: %+v", msg.Keyboard)
	}
	expectText(t, h.press("transfer_USDC"), "Please enter the recipient address")

	expectText(t, h.text("0x1234"), textInvalidRecipient)
	expectText(t, h.text(testRecipient), "Recipient set to")
	expectText(t, h.text("abc"), textInvalidAmount)
	if got := h.session().Transfer; got == nil || got.Amount != "" || got.Recipient == "" {
		t.Fatalf("invalid amount must leave the collected fields untouched: %+v", got)
	}
	confirm := expectText(t, h.text("12.5"), "Please confirm the transfer:")
	if !strings.Contains(confirm.Text, "Ticker: USDC") || !strings.Contains(confirm.Text, "Amount: 12.5") {
		t.Fatalf("unexpected confirmation text %q", confirm.Text)
	}
	if !hasButton(confirm.Keyboard, actionConfirmTransfer) || !hasButton(confirm.Keyboard, actionCancelTransfer) {
		t.Fatalf("confirmation keyboard missing buttons")
	}

	msgs := h.press(actionConfirmTransfer)
	if h.polygon.SentCount() != 1 {
		t.Fatalf("expected one transaction, got %d", h.polygon.SentCount())
	}
	tx := h.polygon.Sent[0]
	expectText(t, msgs, "Transfer successful!\nTransaction hash: "+tx.Hash().Hex())
	if *tx.To() != common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174") {
		t.Fatalf("unexpected transfer target %s", tx.To().Hex())
	}
	if !h.session().idle() {
		t.Fatalf("expected idle session after transfer, got %+v", h.session())
	}
}

func TestTransferUnsupportedTokenClearsSession(t *testing.T) {
	h := newHarness(t)
	h.importTestWallet()
	h.press("transfer_DAI")
	h.text(testRecipient)
	h.text("1")

	expectText(t, h.press(actionConfirmTransfer), "Token not supported on this chain.")
	if h.polygon.SentCount() != 0 {
		t.Fatalf("nothing should be broadcast")
	}
	if !h.session().idle() {
		t.Fatalf("expected idle session, got %+v", h.session())
	}
}

func TestTransferRevertShowsHash(t *testing.T) {
	h := newHarness(t)
	h.importTestWallet()
	h.polygon.ReceiptStatus = types.ReceiptStatusFailed
	h.press("transfer_USDC")
	h.text(testRecipient)
	h.text("1")

	msgs := h.press(actionConfirmTransfer)
	expectText(t, msgs, "Transaction failed on-chain. Hash: "+h.polygon.Sent[0].Hash().Hex())
	if !h.session().idle() {
		t.Fatalf("expected idle session, got %+v", h.session())
	}
}

func TestCancelTransfer(t *testing.T) {
	h := newHarness(t)
	h.importTestWallet()
	h.press("transfer_USDC")
	expectText(t, h.press(actionCancelTransfer), textTransferCancel)
	if !h.session().idle() {
		t.Fatalf("expected idle session")
	}
	expectText(t, h.press(actionConfirmTransfer), textNoTransfer)
}

func TestStartingWorkflowCancelsPendingOne(t *testing.T) {
	h := newHarness(t)
	h.importTestWallet()
	h.press("transfer_USDC")

	msgs := h.press(actionMigratePosition)
	expectText(t, msgs, "Your pending transfer was cancelled.")
	expectText(t, msgs, textMigrateSource)
	if s := h.session(); s.Kind != SessionMigrating || s.Transfer != nil {
		t.Fatalf("expected a lone migration session, got %+v", s)
	}
}

func TestCancelCommand(t *testing.T) {
	h := newHarness(t)
	expectText(t, h.send(Event{Kind: EventCommand, Data: "cancel"}), textNothingToCancel)
	h.press(actionImportWallet)
	expectText(t, h.send(Event{Kind: EventCommand, Data: "/cancel@walletbot"}), "Your wallet import was cancelled.")
	if !h.session().idle() {
		t.Fatalf("expected idle session")
	}
}

func TestUnknownTextShowsMenu(t *testing.T) {
	h := newHarness(t)
	msg := expectText(t, h.text("hello"), textUnknown)
	if !hasButton(msg.Keyboard, actionCreateWallet) {
		t.Fatalf("expected main menu keyboard")
	}
}

type migrationChain struct {
	allowance *big.Int
	balance   *big.Int
	fee       *big.Int
}

func (c migrationChain) call(msg ethereum.CallMsg) ([]byte, error) {
	allowance, _ := calldata.Selector("allowance")
	balanceOf, _ := calldata.Selector("balanceOf")
	quote, _ := calldata.Selector("quoteLayerZeroFee")
	switch {
	case len(msg.Data) < 4:
		return nil, nil
	case bytes.Equal(msg.Data[:4], allowance):
		return math.U256Bytes(new(big.Int).Set(c.allowance)), nil
	case bytes.Equal(msg.Data[:4], balanceOf):
		return math.U256Bytes(new(big.Int).Set(c.balance)), nil
	case bytes.Equal(msg.Data[:4], quote):
		return append(math.U256Bytes(new(big.Int).Set(c.fee)), make([]byte, 32)...), nil
	}
	return []byte{}, nil
}

func walkMigrationToAmount(t *testing.T, h *harness) {
	t.Helper()
	msg := expectText(t, h.press(actionMigratePosition), textMigrateSource)
	if !hasButton(msg.Keyboard, "migrate_from_polygon") || !hasButton(msg.Keyboard, actionCancelMigration) {
		t.Fatalf("unexpected source keyboard %+v", msg.Keyboard)
	}
	msg = expectText(t, h.press("migrate_from_polygon"), textMigrateDest)
	if !hasButton(msg.Keyboard, "migrate_to_base") {
		t.Fatalf("unexpected destination keyboard %+v", msg.Keyboard)
	}
	expectText(t, h.press("migrate_to_base"), textMigrateToken)
	expectText(t, h.text("usdc"), textMigrateAmount)
	if s := h.session(); s.Migration == nil || s.Migration.Token != "USDC" || s.Migration.Protocol != "aave-v3" {
		t.Fatalf("unexpected migration state %+v", s.Migration)
	}
	expectText(t, h.text("0"), textInvalidAmount)
}

func TestMigrationFlow(t *testing.T) {
	h := newHarness(t)
	h.importTestWallet()
	enough := big.NewInt(1_000_000_000)
	h.polygon.Call = migrationChain{allowance: enough, balance: enough, fee: big.NewInt(9_000)}.call

	walkMigrationToAmount(t, h)
	msgs := h.text("100")

	if h.polygon.SentCount() != 2 {
		t.Fatalf("expected approval and batch transactions, got %d", h.polygon.SentCount())
	}
	route, _ := registry.Migration("polygon", "base")
	approval, batch := h.polygon.Sent[0], h.polygon.Sent[1]
	if *approval.To() != common.HexToAddress(route.PositionToken) {
		t.Fatalf("approval sent to %s", approval.To().Hex())
	}
	if *batch.To() != common.HexToAddress(route.Aggregator) {
		t.Fatalf("batch sent to %s", batch.To().Hex())
	}
	if batch.Value().Int64() != 9_000 {
		t.Fatalf("expected bridge fee as batch value, got %s", batch.Value())
	}
	expectText(t, msgs, textMigrateApproving)
	expectText(t, msgs, "Approval transaction confirmed. Hash: "+approval.Hash().Hex())
	expectText(t, msgs, textMigrateBuilt)
	expectText(t, msgs, "Migration transaction confirmed! Hash: "+batch.Hash().Hex())
	if !h.session().idle() {
		t.Fatalf("expected idle session after migration, got %+v", h.session())
	}
}

func TestMigrationInsufficientAllowanceClearsSession(t *testing.T) {
	h := newHarness(t)
	h.importTestWallet()
	h.polygon.Call = migrationChain{allowance: big.NewInt(0), balance: big.NewInt(1_000_000_000), fee: big.NewInt(1)}.call

	walkMigrationToAmount(t, h)
	msgs := h.text("100")
	expectText(t, msgs, "Insufficient allowance. Current: 0, Required: 100")
	if h.polygon.SentCount() != 1 {
		t.Fatalf("only the approval should be broadcast, got %d", h.polygon.SentCount())
	}
	if !h.session().idle() {
		t.Fatalf("expected idle session, got %+v", h.session())
	}
}

func TestMigrationAmountPrecisionKeepsWorkflow(t *testing.T) {
	h := newHarness(t)
	h.importTestWallet()
	h.polygon.Call = migrationChain{allowance: big.NewInt(0), balance: big.NewInt(1_000_000_000), fee: big.NewInt(1)}.call

	walkMigrationToAmount(t, h)
	expectText(t, h.text("1.1234567"), "decimal places")
	s := h.session()
	if s.Kind != SessionMigrating || s.Migration == nil || s.Migration.Amount != "" || s.Migration.Token == "" {
		t.Fatalf("expected migration to wait for the amount again, got %+v", s)
	}
	if h.polygon.SentCount() != 0 {
		t.Fatalf("nothing should be broadcast, got %d", h.polygon.SentCount())
	}
}

func TestMigrationButtonsRequireSession(t *testing.T) {
	h := newHarness(t)
	expectText(t, h.press("migrate_to_base"), textNoMigration)
	expectText(t, h.press(actionCancelMigration), textMigrateCancel)
}

func TestAllowlistBlocksOtherUsers(t *testing.T) {
	h := newHarness(t, WithAllowlist([]int64{7}))
	msgs := h.send(Event{Kind: EventCommand, Data: "start"})
	expectText(t, msgs, "not available for your account")
}

type panicReporter struct{}

func (panicReporter) Report(context.Context, string) (balance.Report, error) {
	panic("boom")
}

func TestPanicIsAnsweredAndContained(t *testing.T) {
	h := newHarness(t, harnessOption(func(d *Deps) { d.Balances = panicReporter{} }))
	h.press(actionCheckOtherBalance)
	expectText(t, h.text(testRecipient), textGenericError)
	expectText(t, h.send(Event{Kind: EventCommand, Data: "start"}), textWelcome)
}
