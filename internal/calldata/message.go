package calldata

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
)

// BridgeMessage is the payload handed to the destination receiver. It tells
// the receiver what to do with the bridged funds once they land.
type BridgeMessage struct {
	IsSwap       bool
	TokenOut     common.Address
	SwapData     []byte
	MinAmountOut *big.Int
	Amount       *big.Int
	LendingPool  common.Address
	Beneficiary  common.Address
	ExtraToken   common.Address
	DepositData  []byte
}

var bridgeMessageArgs = mustArguments("bool", "address", "bytes", "uint256", "uint256", "address", "address", "address", "bytes")

func EncodeBridgeMessage(m BridgeMessage) ([]byte, error) {
	if err := checkAmount("message amount", m.Amount); err != nil {
		return nil, clierr.Wrap(clierr.CodeEncoding, "encode bridge message", err)
	}
	minOut := m.MinAmountOut
	if minOut == nil {
		minOut = new(big.Int)
	}
	swapData := m.SwapData
	if swapData == nil {
		swapData = []byte{}
	}
	deposit := m.DepositData
	if deposit == nil {
		deposit = []byte{}
	}
	out, err := bridgeMessageArgs.Pack(m.IsSwap, m.TokenOut, swapData, minOut, m.Amount, m.LendingPool, m.Beneficiary, m.ExtraToken, deposit)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeEncoding, "encode bridge message", err)
	}
	return out, nil
}

// DecodeBridgeMessage is the inverse of EncodeBridgeMessage. The migration
// planner uses it to confirm a payload credits the wallet before quoting it.
func DecodeBridgeMessage(data []byte) (BridgeMessage, error) {
	values, err := bridgeMessageArgs.Unpack(data)
	if err != nil {
		return BridgeMessage{}, clierr.Wrap(clierr.CodeEncoding, "decode bridge message", err)
	}
	return bridgeMessageFromValues(values)
}

func bridgeMessageFromValues(values []any) (BridgeMessage, error) {
	if len(values) != 9 {
		return BridgeMessage{}, clierr.New(clierr.CodeEncoding, "unexpected bridge message arity")
	}
	wrongType := func(field string) error {
		return clierr.New(clierr.CodeEncoding, "bridge message "+field+" has wrong type")
	}
	var (
		msg BridgeMessage
		ok  bool
	)
	if msg.IsSwap, ok = values[0].(bool); !ok {
		return BridgeMessage{}, wrongType("isSwap")
	}
	if msg.TokenOut, ok = values[1].(common.Address); !ok {
		return BridgeMessage{}, wrongType("tokenOut")
	}
	if msg.SwapData, ok = values[2].([]byte); !ok {
		return BridgeMessage{}, wrongType("swapData")
	}
	if msg.MinAmountOut, ok = values[3].(*big.Int); !ok || msg.MinAmountOut == nil {
		return BridgeMessage{}, wrongType("minAmountOut")
	}
	if msg.Amount, ok = values[4].(*big.Int); !ok || msg.Amount == nil {
		return BridgeMessage{}, wrongType("amount")
	}
	if msg.LendingPool, ok = values[5].(common.Address); !ok {
		return BridgeMessage{}, wrongType("lendingPool")
	}
	if msg.Beneficiary, ok = values[6].(common.Address); !ok {
		return BridgeMessage{}, wrongType("beneficiary")
	}
	if msg.ExtraToken, ok = values[7].(common.Address); !ok {
		return BridgeMessage{}, wrongType("extraToken")
	}
	if msg.DepositData, ok = values[8].([]byte); !ok {
		return BridgeMessage{}, wrongType("depositData")
	}
	return msg, nil
}

// DecodeFeeQuote returns the native fee from a quoteLayerZeroFee result.
func DecodeFeeQuote(out []byte) (*big.Int, error) {
	return DecodeUint(QuoteBridgeFee{}, out)
}

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, raw := range types {
		typ, err := abi.NewType(raw, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}
