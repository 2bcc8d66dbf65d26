// Package chaintest provides an in-memory chain.Client for tests.
package chaintest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallFunc answers an eth_call. Returning an error simulates a failed read.
type CallFunc func(msg ethereum.CallMsg) ([]byte, error)

// Client records sent transactions and mines them on demand.
type Client struct {
	mu sync.Mutex

	ID             *big.Int
	NativeBalances map[common.Address]*big.Int
	Call           CallFunc
	BalanceErr     error
	EstimateErr    error
	SendErr        error
	Gas            uint64

	// Mine controls receipts: when true every sent transaction gets a
	// receipt with ReceiptStatus; when false receipts stay pending.
	Mine          bool
	ReceiptStatus uint64

	Sent     []*types.Transaction
	Calls    []ethereum.CallMsg
	receipts map[common.Hash]*types.Receipt
	nonce    uint64
	closed   bool
}

func New(chainID int64) *Client {
	return &Client{
		ID:             big.NewInt(chainID),
		NativeBalances: map[common.Address]*big.Int{},
		Gas:            100_000,
		Mine:           true,
		ReceiptStatus:  types.ReceiptStatusSuccessful,
		receipts:       map[common.Hash]*types.Receipt{},
	}
}

func (c *Client) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.ID), nil
}

func (c *Client) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, msg)
	call := c.Call
	c.mu.Unlock()
	if call == nil {
		return nil, errors.New("execution reverted")
	}
	return call(msg)
}

func (c *Client) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.NativeBalances[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (c *Client) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if c.EstimateErr != nil {
		return 0, c.EstimateErr
	}
	return c.Gas, nil
}

func (c *Client) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Client) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (c *Client) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce, nil
}

func (c *Client) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, tx)
	c.nonce++
	if c.Mine {
		c.receipts[tx.Hash()] = &types.Receipt{
			Status:      c.ReceiptStatus,
			TxHash:      tx.Hash(),
			BlockNumber: big.NewInt(int64(len(c.Sent))),
			GasUsed:     tx.Gas(),
		}
	}
	return nil
}

func (c *Client) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

// SetReceipt stores a receipt for a hash that may never have been sent here.
func (c *Client) SetReceipt(hash common.Hash, status uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[hash] = &types.Receipt{Status: status, TxHash: hash, BlockNumber: big.NewInt(1)}
}

func (c *Client) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
