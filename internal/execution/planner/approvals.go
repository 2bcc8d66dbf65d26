package planner

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/walletbot/internal/calldata"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/execution"
)

// ApprovalStep builds a direct approve(spender, amount) call on token.
// amount is in base units.
func ApprovalStep(token, spender common.Address, amount *big.Int, description string) (execution.CallStep, error) {
	if token == (common.Address{}) {
		return execution.CallStep{}, clierr.New(clierr.CodeUsage, "approval requires ERC20 token address")
	}
	if spender == (common.Address{}) {
		return execution.CallStep{}, clierr.New(clierr.CodeUsage, "approval requires spender address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return execution.CallStep{}, clierr.New(clierr.CodeUsage, "approval amount must be positive")
	}
	data, err := calldata.Encode(calldata.Approve{Spender: spender, Amount: amount})
	if err != nil {
		return execution.CallStep{}, err
	}
	if description == "" {
		description = fmt.Sprintf("Approve %s", spender.Hex())
	}
	return execution.CallStep{
		Type:        execution.StepTypeApproval,
		Description: description,
		Target:      token,
		Data:        data,
		Value:       new(big.Int),
	}, nil
}
