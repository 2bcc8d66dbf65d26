package execution

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ggonzalez94/walletbot/internal/calldata"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/registry"
)

var policyApproveABI = mustPolicyABI(registry.ERC20ApproveABI)

// validateActionPolicy checks the aggregate call and every recorded step
// before anything is signed.
func validateActionPolicy(action *Action, opts Options) error {
	if action == nil {
		return clierr.New(clierr.CodeInternal, "missing action")
	}
	if err := validateStepPolicy(action, action.Call, opts); err != nil {
		return err
	}
	for i := range action.Steps {
		if err := validateStepPolicy(action, action.Steps[i], opts); err != nil {
			return err
		}
	}
	return nil
}

func validateStepPolicy(action *Action, step ActionStep, opts Options) error {
	if !common.IsHexAddress(step.Target) {
		return clierr.New(clierr.CodeUsage, "invalid step target address")
	}
	if common.HexToAddress(step.Target) == (common.Address{}) {
		return clierr.New(clierr.CodeUsage, "step targets the zero address")
	}
	if step.Type != StepTypeApproval {
		return nil
	}
	data, err := decodeHex(step.Data)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "decode approval calldata", err)
	}
	return validateApprovalPolicy(action, data, opts)
}

func validateApprovalPolicy(action *Action, data []byte, opts Options) error {
	selector, ok := calldata.Selector("approve")
	if !ok || len(data) < 4 || !bytes.Equal(data[:4], selector) {
		return clierr.New(clierr.CodeUsage, "approval step must use ERC20 approve(spender,amount)")
	}
	args, err := policyApproveABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeUsage, "approval step calldata is invalid")
	}
	spender, ok := toAddress(args[0])
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeUsage, "approval step has invalid spender")
	}
	amount, ok := toBigInt(args[1])
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "approval step has invalid approval amount")
	}
	if opts.AllowMaxApproval {
		return nil
	}
	if amount.Cmp(math.MaxBig256) == 0 {
		return clierr.New(clierr.CodeBlocked, "unlimited approvals are not allowed")
	}
	if action == nil {
		return nil
	}
	requested, ok := parsePositiveBaseUnits(action.InputAmount)
	if !ok {
		return nil
	}
	if amount.Cmp(requested) > 0 {
		return clierr.New(clierr.CodeBlocked, fmt.Sprintf("approval amount %s exceeds requested amount %s", amount.String(), requested.String()))
	}
	return nil
}

func parsePositiveBaseUnits(value string) (*big.Int, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, false
	}
	parsed, ok := new(big.Int).SetString(v, 10)
	if !ok || parsed.Sign() <= 0 {
		return nil, false
	}
	return parsed, true
}

func toAddress(v any) (common.Address, bool) {
	switch value := v.(type) {
	case common.Address:
		return value, true
	case *common.Address:
		if value == nil {
			return common.Address{}, false
		}
		return *value, true
	default:
		return common.Address{}, false
	}
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}

func mustPolicyABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
