package execution

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type ActionStatus string

type StepType string

const (
	ActionStatusPlanned   ActionStatus = "planned"
	ActionStatusSubmitted ActionStatus = "submitted"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

const (
	StepTypeApproval     StepType = "approval"
	StepTypeTransfer     StepType = "transfer"
	StepTypeTransferFrom StepType = "transfer_from"
	StepTypeWithdraw     StepType = "withdraw"
	StepTypeBridge       StepType = "bridge_send"
	StepTypeBatch        StepType = "batch"
)

const (
	IntentTransfer        = "transfer"
	IntentMigrateApproval = "migrate_approval"
	IntentMigrate         = "migrate"
)

// CallStep is one contract call in base units, ready to sign or batch.
type CallStep struct {
	Type        StepType
	Description string
	Target      common.Address
	Data        []byte
	Value       *big.Int
}

func (s CallStep) value() *big.Int {
	if s.Value == nil {
		return new(big.Int)
	}
	return s.Value
}

type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	Status      uint64      `json:"status"`
	BlockNumber *big.Int    `json:"block_number,omitempty"`
	GasUsed     uint64      `json:"gas_used"`
}

// ActionStep is the journaled form of a CallStep.
type ActionStep struct {
	Type        StepType `json:"type"`
	Description string   `json:"description,omitempty"`
	Target      string   `json:"target"`
	Data        string   `json:"data"`
	Value       string   `json:"value"`
}

// Action is one signed transaction and the steps it carries. A batch action
// records its inner steps alongside the aggregate call.
type Action struct {
	ActionID    string       `json:"action_id"`
	UserID      int64        `json:"user_id,omitempty"`
	IntentType  string       `json:"intent_type"`
	Status      ActionStatus `json:"status"`
	ChainID     string       `json:"chain_id"`
	FromAddress string       `json:"from_address,omitempty"`
	InputAmount string       `json:"input_amount,omitempty"`
	Call        ActionStep   `json:"call"`
	Steps       []ActionStep `json:"steps,omitempty"`
	TxHash      string       `json:"tx_hash,omitempty"`
	BlockNumber string       `json:"block_number,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
}

func NewAction(actionID, intentType, chain string) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:   actionID,
		IntentType: intentType,
		Status:     ActionStatusPlanned,
		ChainID:    chain,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

func toActionStep(s CallStep) ActionStep {
	return ActionStep{
		Type:        s.Type,
		Description: s.Description,
		Target:      s.Target.Hex(),
		Data:        "0x" + hex.EncodeToString(s.Data),
		Value:       s.value().String(),
	}
}

func (s ActionStep) callStep() (CallStep, error) {
	if !common.IsHexAddress(s.Target) {
		return CallStep{}, fmt.Errorf("invalid step target %q", s.Target)
	}
	data, err := decodeHex(s.Data)
	if err != nil {
		return CallStep{}, err
	}
	value := new(big.Int)
	if strings.TrimSpace(s.Value) != "" {
		v, ok := new(big.Int).SetString(s.Value, 10)
		if !ok {
			return CallStep{}, fmt.Errorf("invalid step value %q", s.Value)
		}
		value = v
	}
	return CallStep{Type: s.Type, Description: s.Description, Target: common.HexToAddress(s.Target), Data: data, Value: value}, nil
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
