package execution

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/walletbot/internal/calldata"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/google/uuid"
)

func NewActionID() string {
	return "act_" + uuid.NewString()
}

// PlanDirect wraps a single step into an action sent straight to its target.
func PlanDirect(intent, chain string, step CallStep) Action {
	action := NewAction(NewActionID(), intent, chain)
	action.Call = toActionStep(step)
	action.Steps = []ActionStep{action.Call}
	return action
}

// PlanBatch wraps ordered steps into one aggregator multicall carrying value.
// Atomicity of the batch is the aggregator contract's responsibility.
func PlanBatch(intent, chain string, aggregator common.Address, steps []CallStep, value *big.Int) (Action, error) {
	if len(steps) == 0 {
		return Action{}, clierr.New(clierr.CodeUsage, "batch has no steps")
	}
	if aggregator == (common.Address{}) {
		return Action{}, clierr.New(clierr.CodeUsage, "batch aggregator is missing")
	}
	if value == nil {
		value = new(big.Int)
	}
	calls := make([]calldata.Call, len(steps))
	action := NewAction(NewActionID(), intent, chain)
	for i, s := range steps {
		calls[i] = calldata.Call{Target: s.Target, CallData: s.Data, Value: s.value()}
		action.Steps = append(action.Steps, toActionStep(s))
	}
	data, err := calldata.Encode(calldata.Multicall{Calls: calls})
	if err != nil {
		return Action{}, err
	}
	action.Call = toActionStep(CallStep{
		Type:        StepTypeBatch,
		Description: "aggregated multicall",
		Target:      aggregator,
		Data:        data,
		Value:       value,
	})
	return action, nil
}
