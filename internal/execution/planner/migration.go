package planner

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/walletbot/internal/calldata"
	"github.com/ggonzalez94/walletbot/internal/chain"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/execution"
	"github.com/ggonzalez94/walletbot/internal/id"
	"github.com/ggonzalez94/walletbot/internal/registry"
)

const (
	DefaultSlippageBps = 50
	maxSlippageBps     = 10_000

	// Stargate function type for a plain swap with payload.
	bridgeFunctionSwap uint8 = 1
)

// PositionReader reads the ERC-20 state the migration checks depend on.
type PositionReader interface {
	ContractBalance(ctx context.Context, chain string, contract, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, chain string, contract, owner, spender common.Address) (*big.Int, error)
}

type MigrationRequest struct {
	From   string
	To     string
	Token  string
	Amount string
	User   common.Address
}

type MigrationPlan struct {
	Route      registry.MigrationRoute
	Chain      string
	Aggregator common.Address
	BaseAmount *big.Int
	Decimals   int
	Steps      []execution.CallStep
	// Value is the native bridge fee, carried by the bridge step and by the
	// aggregate call.
	Value *big.Int
}

type Migrator struct {
	reader      PositionReader
	provider    chain.Provider
	overrides   registry.RouteOverrides
	slippageBps int64
}

type MigratorOption func(*Migrator)

func WithRouteOverrides(o registry.RouteOverrides) MigratorOption {
	return func(m *Migrator) { m.overrides = o }
}

func WithSlippageBps(bps int64) MigratorOption {
	return func(m *Migrator) {
		if bps >= 0 && bps < maxSlippageBps {
			m.slippageBps = bps
		}
	}
}

func NewMigrator(reader PositionReader, provider chain.Provider, opts ...MigratorOption) *Migrator {
	m := &Migrator{reader: reader, provider: provider, slippageBps: DefaultSlippageBps}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Route resolves the deployment for a source and destination pair.
func (m *Migrator) Route(from, to string) (registry.MigrationRoute, error) {
	route, ok := registry.Migration(from, to)
	if !ok {
		return registry.MigrationRoute{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("migration from %s to %s is not supported", from, to))
	}
	return route.WithOverrides(m.overrides), nil
}

// Approval builds the direct approval of the position token to the
// aggregator. It is sent on its own before the batch.
func (m *Migrator) Approval(req MigrationRequest) (execution.CallStep, *big.Int, error) {
	route, err := m.Route(req.From, req.To)
	if err != nil {
		return execution.CallStep{}, nil, err
	}
	decimals, err := routeDecimals(route, req.Token)
	if err != nil {
		return execution.CallStep{}, nil, err
	}
	amount, err := id.ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return execution.CallStep{}, nil, err
	}
	step, err := ApprovalStep(common.HexToAddress(route.PositionToken), common.HexToAddress(route.Aggregator), amount, "Approve position token for aggregator")
	if err != nil {
		return execution.CallStep{}, nil, err
	}
	return step, amount, nil
}

// BuildMigration checks allowance and balance, then returns the ordered
// batch: pull the position token, withdraw the underlying, approve the
// bridge router and bridge with a destination supply payload.
func (m *Migrator) BuildMigration(ctx context.Context, req MigrationRequest) (MigrationPlan, error) {
	route, err := m.Route(req.From, req.To)
	if err != nil {
		return MigrationPlan{}, err
	}
	if req.User == (common.Address{}) {
		return MigrationPlan{}, clierr.New(clierr.CodeUsage, "migration requires a user address")
	}
	decimals, err := routeDecimals(route, req.Token)
	if err != nil {
		return MigrationPlan{}, err
	}
	amount, err := id.ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return MigrationPlan{}, err
	}

	positionToken := common.HexToAddress(route.PositionToken)
	aggregator := common.HexToAddress(route.Aggregator)
	sourceAsset := common.HexToAddress(route.SourceAsset)

	allowance, err := m.reader.Allowance(ctx, route.From, positionToken, req.User, aggregator)
	if err != nil {
		return MigrationPlan{}, err
	}
	if allowance.Cmp(amount) < 0 {
		return MigrationPlan{}, clierr.Insufficient(clierr.CodeInsufficientAllowance, id.FormatUnits(allowance, decimals), id.FormatUnits(amount, decimals))
	}
	balance, err := m.reader.ContractBalance(ctx, route.From, positionToken, req.User)
	if err != nil {
		return MigrationPlan{}, err
	}
	if balance.Cmp(amount) < 0 {
		return MigrationPlan{}, clierr.Insufficient(clierr.CodeInsufficientBalance, id.FormatUnits(balance, decimals), id.FormatUnits(amount, decimals))
	}

	pull, err := calldata.Encode(calldata.TransferFrom{From: req.User, To: aggregator, Amount: amount})
	if err != nil {
		return MigrationPlan{}, err
	}
	withdraw, err := calldata.Encode(calldata.Withdraw{Asset: sourceAsset, Amount: amount, To: aggregator})
	if err != nil {
		return MigrationPlan{}, err
	}
	approveRouter, err := ApprovalStep(sourceAsset, common.HexToAddress(route.BridgeRouter), amount, "Approve bridge router")
	if err != nil {
		return MigrationPlan{}, err
	}
	payload, err := m.bridgePayload(route, req.User, amount)
	if err != nil {
		return MigrationPlan{}, err
	}
	lz := calldata.LzTxParams{DstGasForCall: big.NewInt(route.DstGasForCall)}
	receiver := calldata.PackAddress(common.HexToAddress(route.DestReceiver))
	fee, err := m.quoteFee(ctx, route, receiver, payload, lz)
	if err != nil {
		return MigrationPlan{}, err
	}
	bridge, err := calldata.Encode(calldata.BridgeSwap{
		DstChainID:    route.BridgeChainID,
		SrcPoolID:     big.NewInt(route.SrcPoolID),
		DstPoolID:     big.NewInt(route.DstPoolID),
		RefundAddress: req.User,
		AmountLD:      amount,
		MinAmountLD:   m.minAmount(amount),
		LzTx:          lz,
		To:            receiver,
		Payload:       payload,
	})
	if err != nil {
		return MigrationPlan{}, err
	}

	steps := []execution.CallStep{
		{Type: execution.StepTypeTransferFrom, Description: "Pull position token into aggregator", Target: positionToken, Data: pull, Value: new(big.Int)},
		{Type: execution.StepTypeWithdraw, Description: "Withdraw underlying from lending pool", Target: common.HexToAddress(route.SourcePool), Data: withdraw, Value: new(big.Int)},
		approveRouter,
		{Type: execution.StepTypeBridge, Description: "Bridge and supply on destination", Target: common.HexToAddress(route.BridgeRouter), Data: bridge, Value: new(big.Int).Set(fee)},
	}
	return MigrationPlan{
		Route:      route,
		Chain:      route.From,
		Aggregator: aggregator,
		BaseAmount: amount,
		Decimals:   decimals,
		Steps:      steps,
		Value:      fee,
	}, nil
}

func (m *Migrator) bridgePayload(route registry.MigrationRoute, user common.Address, amount *big.Int) ([]byte, error) {
	deposit, err := calldata.Encode(calldata.Supply{
		Asset:      common.HexToAddress(route.DestAsset),
		Amount:     amount,
		OnBehalfOf: user,
	})
	if err != nil {
		return nil, err
	}
	payload, err := calldata.EncodeBridgeMessage(calldata.BridgeMessage{
		TokenOut:    common.HexToAddress(route.SourceAsset),
		SwapData:    make([]byte, 32),
		Amount:      amount,
		LendingPool: common.HexToAddress(route.DestPool),
		Beneficiary: user,
		DepositData: deposit,
	})
	if err != nil {
		return nil, err
	}
	// The destination receiver credits whoever the message names.
	msg, err := calldata.DecodeBridgeMessage(payload)
	if err != nil {
		return nil, err
	}
	if msg.Beneficiary != user || msg.Amount.Cmp(amount) != 0 || msg.LendingPool != common.HexToAddress(route.DestPool) {
		return nil, clierr.New(clierr.CodeInternal, "bridge payload does not credit the wallet")
	}
	return payload, nil
}

func (m *Migrator) quoteFee(ctx context.Context, route registry.MigrationRoute, receiver, payload []byte, lz calldata.LzTxParams) (*big.Int, error) {
	data, err := calldata.Encode(calldata.QuoteBridgeFee{
		DstChainID:   route.BridgeChainID,
		FunctionType: bridgeFunctionSwap,
		ToAddress:    receiver,
		Payload:      payload,
		LzTx:         lz,
	})
	if err != nil {
		return nil, err
	}
	client, err := m.provider.Client(ctx, route.From)
	if err != nil {
		return nil, err
	}
	router := common.HexToAddress(route.BridgeRouter)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "quote bridge fee", err)
	}
	return calldata.DecodeFeeQuote(out)
}

func (m *Migrator) minAmount(amount *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(maxSlippageBps-m.slippageBps))
	return out.Quo(out, big.NewInt(maxSlippageBps))
}

// routeDecimals returns the position token decimals. A token named by the
// user must match the route's token; an empty one takes the route's.
func routeDecimals(route registry.MigrationRoute, token string) (int, error) {
	if t := strings.TrimSpace(token); t != "" && !strings.EqualFold(t, route.Token) {
		return 0, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("only %s positions can be migrated on this route", route.Token))
	}
	tok, err := id.ParseToken(route.Token)
	if err != nil {
		return 0, err
	}
	return tok.Decimals, nil
}
