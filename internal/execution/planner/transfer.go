package planner

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/walletbot/internal/calldata"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/execution"
	"github.com/ggonzalez94/walletbot/internal/id"
)

// DefaultTransferChain is where transfers go when no chain is configured.
const DefaultTransferChain = "polygon"

type TransferRequest struct {
	Chain     string
	Ticker    string
	Recipient string
	Amount    string
}

// TransferPlan is a ready-to-sign ERC-20 transfer plus the resolved inputs
// used to build it.
type TransferPlan struct {
	Chain      id.Chain
	Token      id.Token
	Contract   common.Address
	Recipient  common.Address
	BaseAmount *big.Int
	Step       execution.CallStep
}

func BuildTransfer(req TransferRequest) (TransferPlan, error) {
	chainSlug := strings.TrimSpace(req.Chain)
	if chainSlug == "" {
		chainSlug = DefaultTransferChain
	}
	c, err := id.ParseChain(chainSlug)
	if err != nil {
		return TransferPlan{}, err
	}
	token, err := id.ParseToken(req.Ticker)
	if err != nil {
		return TransferPlan{}, err
	}
	raw, ok := token.AddressOn(c.Slug)
	if !ok || raw == id.NativeSentinel || !common.IsHexAddress(raw) {
		return TransferPlan{}, clierr.New(clierr.CodeUnsupported, "Token not supported on this chain.")
	}
	recipient, err := id.ParseAddress(req.Recipient)
	if err != nil {
		return TransferPlan{}, err
	}
	amount, err := id.ToBaseUnits(req.Amount, token.Decimals)
	if err != nil {
		return TransferPlan{}, err
	}
	data, err := calldata.Encode(calldata.Transfer{To: recipient, Amount: amount})
	if err != nil {
		return TransferPlan{}, err
	}
	contract := common.HexToAddress(raw)
	return TransferPlan{
		Chain:      c,
		Token:      token,
		Contract:   contract,
		Recipient:  recipient,
		BaseAmount: amount,
		Step: execution.CallStep{
			Type:        execution.StepTypeTransfer,
			Description: fmt.Sprintf("Transfer %s %s", id.FormatUnits(amount, token.Decimals), token.Symbol),
			Target:      contract,
			Data:        data,
			Value:       new(big.Int),
		},
	}, nil
}
