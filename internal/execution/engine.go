package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/walletbot/internal/chain"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/execution/signer"
	"github.com/ggonzalez94/walletbot/internal/metrics"
	"github.com/rs/zerolog"
)

type Options struct {
	Simulate           bool
	PollInterval       time.Duration
	ConfirmTimeout     time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	AllowMaxApproval   bool
}

func DefaultOptions() Options {
	return Options{
		Simulate:       true,
		PollInterval:   2 * time.Second,
		ConfirmTimeout: 3 * time.Minute,
		GasMultiplier:  1.2,
	}
}

// Engine signs, broadcasts and confirms actions. Nothing is retried: a failed
// submission is reported and the caller decides what to do.
type Engine struct {
	provider chain.Provider
	opts     Options
	store    *Store
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

type EngineOption func(*Engine)

// WithStore journals every action. Without a store the idempotence guard
// only covers the in-memory action value.
func WithStore(store *Store) EngineOption {
	return func(e *Engine) { e.store = store }
}

func WithLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(provider chain.Provider, opts Options, engineOpts ...EngineOption) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 3 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	e := &Engine{provider: provider, opts: opts, log: zerolog.Nop()}
	for _, o := range engineOpts {
		o(e)
	}
	return e
}

// SubmitDirect signs and sends one step to its own target.
func (e *Engine) SubmitDirect(ctx context.Context, chainSlug string, txSigner signer.Signer, step CallStep) (Receipt, error) {
	action := PlanDirect(string(step.Type), chainSlug, step)
	return e.Execute(ctx, &action, txSigner)
}

// SubmitBatch sends the steps as one multicall through the aggregator.
func (e *Engine) SubmitBatch(ctx context.Context, chainSlug string, txSigner signer.Signer, aggregator common.Address, steps []CallStep, value *big.Int) (Receipt, error) {
	action, err := PlanBatch(string(StepTypeBatch), chainSlug, aggregator, steps, value)
	if err != nil {
		return Receipt{}, err
	}
	return e.Execute(ctx, &action, txSigner)
}

// Execute submits the action's call and waits for its receipt. An action
// that already carries a transaction hash is only awaited, never re-signed.
func (e *Engine) Execute(ctx context.Context, action *Action, txSigner signer.Signer) (Receipt, error) {
	if action == nil {
		return Receipt{}, clierr.New(clierr.CodeInternal, "missing action")
	}
	if txSigner == nil {
		return Receipt{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	log := e.log.With().Str("action_id", action.ActionID).Str("intent", action.IntentType).Str("chain", action.ChainID).Logger()

	client, err := e.provider.Client(ctx, action.ChainID)
	if err != nil {
		e.fail(action, err)
		return Receipt{}, err
	}

	if strings.TrimSpace(action.TxHash) != "" {
		log.Info().Str("tx_hash", action.TxHash).Msg("awaiting previously broadcast transaction")
		return e.confirm(ctx, client, action, common.HexToHash(action.TxHash))
	}

	if err := validateActionPolicy(action, e.opts); err != nil {
		e.fail(action, err)
		return Receipt{}, err
	}
	call, err := action.Call.callStep()
	if err != nil {
		wrapped := clierr.Wrap(clierr.CodeEncoding, "decode action call", err)
		e.fail(action, wrapped)
		return Receipt{}, wrapped
	}

	action.FromAddress = txSigner.Address().Hex()
	e.save(action)

	signed, err := e.buildAndSign(ctx, client, txSigner, call)
	if err != nil {
		e.fail(action, err)
		return Receipt{}, err
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		wrapped := clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
		e.fail(action, wrapped)
		e.metrics.Transaction(action.ChainID, "broadcast_failed")
		return Receipt{}, wrapped
	}
	action.TxHash = signed.Hash().Hex()
	action.Status = ActionStatusSubmitted
	action.Touch()
	e.save(action)
	log.Info().Str("tx_hash", action.TxHash).Msg("transaction broadcast")

	return e.confirm(ctx, client, action, signed.Hash())
}

func (e *Engine) buildAndSign(ctx context.Context, client chain.Client, txSigner signer.Signer, call CallStep) (*types.Transaction, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	target := call.Target
	msg := ethereum.CallMsg{From: txSigner.Address(), To: &target, Value: call.value(), Data: call.Data}

	if e.opts.Simulate {
		if _, err := client.CallContract(ctx, msg, nil); err != nil {
			return nil, clierr.Wrap(clierr.CodeReverted, "transaction would revert (eth_call)", err)
		}
	}

	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeReverted, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * e.opts.GasMultiplier)

	tipCap, err := resolveTipCap(ctx, client, e.opts.MaxPriorityFeeGwei)
	if err != nil {
		return nil, err
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, e.opts.MaxFeeGwei)
	if err != nil {
		return nil, err
	}

	nonce, err := client.PendingNonceAt(ctx, txSigner.Address())
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     call.value(),
		Data:      call.Data,
	})
	signed, err := txSigner.SignTx(chainID, tx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	return signed, nil
}

func (e *Engine) confirm(ctx context.Context, client chain.Client, action *Action, hash common.Hash) (Receipt, error) {
	started := time.Now()
	receipt, err := e.awaitReceipt(ctx, client, hash)
	if err != nil {
		e.fail(action, err)
		e.metrics.Transaction(action.ChainID, "timeout")
		return Receipt{TxHash: hash}, err
	}
	e.metrics.ConfirmationWait(action.ChainID, time.Since(started))
	out := Receipt{TxHash: hash, Status: receipt.Status, BlockNumber: receipt.BlockNumber, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		action.BlockNumber = receipt.BlockNumber.String()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err := clierr.New(clierr.CodeReverted, fmt.Sprintf("transaction %s reverted on-chain", hash.Hex()))
		e.fail(action, err)
		e.metrics.Transaction(action.ChainID, "reverted")
		return out, err
	}
	action.Status = ActionStatusCompleted
	action.Error = ""
	action.Touch()
	e.save(action)
	e.metrics.Transaction(action.ChainID, "confirmed")
	return out, nil
}

func (e *Engine) awaitReceipt(ctx context.Context, client chain.Client, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			e.log.Debug().Err(err).Str("tx_hash", hash.Hex()).Msg("receipt poll failed")
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, clierr.Wrap(clierr.CodeUnavailable, "receipt wait cancelled", ctx.Err())
			}
			return nil, clierr.Wrap(clierr.CodeConfirmationTimeout, "timed out waiting for receipt of "+hash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (e *Engine) fail(action *Action, err error) {
	action.Status = ActionStatusFailed
	action.Error = err.Error()
	action.Touch()
	e.save(action)
}

func (e *Engine) save(action *Action) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(*action); err != nil {
		e.log.Error().Err(err).Str("action_id", action.ActionID).Msg("journal write failed")
	}
}

func resolveTipCap(ctx context.Context, client chain.Client, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeConfig, "parse max priority fee", err)
		}
		return v, nil
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeConfig, "parse max fee", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeConfig, "max fee must be >= max priority fee")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}
