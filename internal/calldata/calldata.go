// Package calldata encodes the closed set of contract calls the bot can make.
//
// Every operation is a small struct with typed fields. Amounts are always
// base units; nothing in this package scales by token decimals.
package calldata

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/registry"
)

// Op is one encodable contract call. The unexported args method keeps the
// set closed to the variants declared here.
type Op interface {
	Method() string
	args() ([]any, error)
}

var codecs = map[string]abi.ABI{
	"balanceOf":         mustABI(registry.ERC20BalanceOfABI),
	"allowance":         mustABI(registry.ERC20AllowanceABI),
	"approve":           mustABI(registry.ERC20ApproveABI),
	"transfer":          mustABI(registry.ERC20TransferABI),
	"transferFrom":      mustABI(registry.ERC20TransferFromABI),
	"supply":            mustABI(registry.AaveSupplyABI),
	"withdraw":          mustABI(registry.AaveWithdrawABI),
	"multicall":         mustABI(registry.MulticallABI),
	"swap":              mustABI(registry.StargateSwapABI),
	"quoteLayerZeroFee": mustABI(registry.StargateQuoteFeeABI),
}

type BalanceOf struct {
	Account common.Address
}

type Allowance struct {
	Owner   common.Address
	Spender common.Address
}

type Approve struct {
	Spender common.Address
	Amount  *big.Int
}

type Transfer struct {
	To     common.Address
	Amount *big.Int
}

type TransferFrom struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

type Supply struct {
	Asset        common.Address
	Amount       *big.Int
	OnBehalfOf   common.Address
	ReferralCode uint16
}

type Withdraw struct {
	Asset  common.Address
	Amount *big.Int
	To     common.Address
}

// Call is one inner call of an aggregated batch.
type Call struct {
	Target   common.Address
	CallData []byte
	Value    *big.Int
}

type Multicall struct {
	Calls []Call
}

// LzTxParams mirrors the bridge router's LayerZero parameters tuple.
type LzTxParams struct {
	DstGasForCall   *big.Int
	DstNativeAmount *big.Int
	DstNativeAddr   []byte
}

type BridgeSwap struct {
	DstChainID    uint16
	SrcPoolID     *big.Int
	DstPoolID     *big.Int
	RefundAddress common.Address
	AmountLD      *big.Int
	MinAmountLD   *big.Int
	LzTx          LzTxParams
	To            []byte
	Payload       []byte
}

type QuoteBridgeFee struct {
	DstChainID   uint16
	FunctionType uint8
	ToAddress    []byte
	Payload      []byte
	LzTx         LzTxParams
}

func (BalanceOf) Method() string      { return "balanceOf" }
func (Allowance) Method() string      { return "allowance" }
func (Approve) Method() string        { return "approve" }
func (Transfer) Method() string       { return "transfer" }
func (TransferFrom) Method() string   { return "transferFrom" }
func (Supply) Method() string         { return "supply" }
func (Withdraw) Method() string       { return "withdraw" }
func (Multicall) Method() string      { return "multicall" }
func (BridgeSwap) Method() string     { return "swap" }
func (QuoteBridgeFee) Method() string { return "quoteLayerZeroFee" }

func (o BalanceOf) args() ([]any, error) { return []any{o.Account}, nil }

func (o Allowance) args() ([]any, error) { return []any{o.Owner, o.Spender}, nil }

func (o Approve) args() ([]any, error) {
	if err := checkAmount("approve amount", o.Amount); err != nil {
		return nil, err
	}
	return []any{o.Spender, o.Amount}, nil
}

func (o Transfer) args() ([]any, error) {
	if err := checkAmount("transfer amount", o.Amount); err != nil {
		return nil, err
	}
	return []any{o.To, o.Amount}, nil
}

func (o TransferFrom) args() ([]any, error) {
	if err := checkAmount("transferFrom amount", o.Amount); err != nil {
		return nil, err
	}
	return []any{o.From, o.To, o.Amount}, nil
}

func (o Supply) args() ([]any, error) {
	if err := checkAmount("supply amount", o.Amount); err != nil {
		return nil, err
	}
	return []any{o.Asset, o.Amount, o.OnBehalfOf, o.ReferralCode}, nil
}

func (o Withdraw) args() ([]any, error) {
	if err := checkAmount("withdraw amount", o.Amount); err != nil {
		return nil, err
	}
	return []any{o.Asset, o.Amount, o.To}, nil
}

func (o Multicall) args() ([]any, error) {
	if len(o.Calls) == 0 {
		return nil, fmt.Errorf("multicall requires at least one call")
	}
	calls := make([]Call, len(o.Calls))
	for i, c := range o.Calls {
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		if value.Sign() < 0 {
			return nil, fmt.Errorf("multicall call %d has negative value", i)
		}
		data := c.CallData
		if data == nil {
			data = []byte{}
		}
		calls[i] = Call{Target: c.Target, CallData: data, Value: value}
	}
	return []any{calls}, nil
}

func (o BridgeSwap) args() ([]any, error) {
	for name, v := range map[string]*big.Int{
		"src pool id":    o.SrcPoolID,
		"dst pool id":    o.DstPoolID,
		"amount":         o.AmountLD,
		"minimum amount": o.MinAmountLD,
	} {
		if err := checkAmount("bridge "+name, v); err != nil {
			return nil, err
		}
	}
	if o.MinAmountLD.Cmp(o.AmountLD) > 0 {
		return nil, fmt.Errorf("bridge minimum amount exceeds amount")
	}
	if len(o.To) == 0 {
		return nil, fmt.Errorf("bridge destination address is empty")
	}
	lz, err := o.LzTx.normalized()
	if err != nil {
		return nil, err
	}
	payload := o.Payload
	if payload == nil {
		payload = []byte{}
	}
	return []any{o.DstChainID, o.SrcPoolID, o.DstPoolID, o.RefundAddress, o.AmountLD, o.MinAmountLD, lz, o.To, payload}, nil
}

func (o QuoteBridgeFee) args() ([]any, error) {
	lz, err := o.LzTx.normalized()
	if err != nil {
		return nil, err
	}
	payload := o.Payload
	if payload == nil {
		payload = []byte{}
	}
	return []any{o.DstChainID, o.FunctionType, o.ToAddress, payload, lz}, nil
}

func (p LzTxParams) normalized() (LzTxParams, error) {
	out := p
	if out.DstGasForCall == nil {
		out.DstGasForCall = new(big.Int)
	}
	if out.DstNativeAmount == nil {
		out.DstNativeAmount = new(big.Int)
	}
	if out.DstGasForCall.Sign() < 0 || out.DstNativeAmount.Sign() < 0 {
		return LzTxParams{}, fmt.Errorf("lz tx params must be non-negative")
	}
	if out.DstNativeAddr == nil {
		out.DstNativeAddr = []byte{}
	}
	return out, nil
}

// Encode packs the operation against its single-function ABI. Failures are
// programming defects and are reported as encoding errors.
func Encode(op Op) ([]byte, error) {
	if op == nil {
		return nil, clierr.New(clierr.CodeEncoding, "missing operation")
	}
	method := op.Method()
	parsed, ok := codecs[method]
	if !ok {
		return nil, clierr.New(clierr.CodeEncoding, fmt.Sprintf("no codec declared for %s", method))
	}
	args, err := op.args()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeEncoding, "encode "+method, err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeEncoding, "pack "+method+" calldata", err)
	}
	return data, nil
}

// DecodeUint returns the first uint256 output of a read call.
func DecodeUint(op Op, out []byte) (*big.Int, error) {
	method := op.Method()
	parsed, ok := codecs[method]
	if !ok {
		return nil, clierr.New(clierr.CodeEncoding, fmt.Sprintf("no codec declared for %s", method))
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeEncoding, "decode "+method+" result", err)
	}
	if len(values) == 0 {
		return nil, clierr.New(clierr.CodeEncoding, "empty "+method+" result")
	}
	v, ok := values[0].(*big.Int)
	if !ok || v == nil {
		return nil, clierr.New(clierr.CodeEncoding, "unexpected "+method+" result type")
	}
	return v, nil
}

// Selector returns the 4-byte method id for a declared method name.
func Selector(method string) ([]byte, bool) {
	parsed, ok := codecs[method]
	if !ok {
		return nil, false
	}
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, false
	}
	return m.ID, true
}

// PackAddress returns the 20-byte packed form of an address, as bridge
// routers expect for their destination field.
func PackAddress(addr common.Address) []byte {
	return addr.Bytes()
}

func checkAmount(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%s is missing", name)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%s is negative", name)
	}
	return nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
