// Package chain provides per-chain RPC clients.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/id"
	"github.com/ggonzalez94/walletbot/internal/registry"
)

// Client is the subset of an EVM RPC client the bot needs. *ethclient.Client
// satisfies it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Provider hands out a client for a chain slug.
type Provider interface {
	Client(ctx context.Context, chain string) (Client, error)
}

type DialFunc func(ctx context.Context, rpcURL string) (Client, error)

// Pool lazily dials one client per chain and reuses it.
type Pool struct {
	mu        sync.Mutex
	overrides map[string]string
	clients   map[string]Client
	dial      DialFunc
}

// NewPool builds a pool from chain slug to RPC URL overrides. Chains without
// an override use the registry default.
func NewPool(overrides map[string]string) *Pool {
	return NewPoolWithDialer(overrides, func(ctx context.Context, rpcURL string) (Client, error) {
		return ethclient.DialContext(ctx, rpcURL)
	})
}

func NewPoolWithDialer(overrides map[string]string, dial DialFunc) *Pool {
	cp := make(map[string]string, len(overrides))
	for k, v := range overrides {
		cp[k] = v
	}
	return &Pool{overrides: cp, clients: map[string]Client{}, dial: dial}
}

// NewStaticPool serves fixed clients, mainly for tests.
func NewStaticPool(clients map[string]Client) *Pool {
	p := &Pool{overrides: map[string]string{}, clients: map[string]Client{}}
	for k, v := range clients {
		p.clients[k] = v
	}
	p.dial = func(_ context.Context, rpcURL string) (Client, error) {
		return nil, fmt.Errorf("no client configured for %s", rpcURL)
	}
	return p
}

func (p *Pool) Client(ctx context.Context, chainSlug string) (Client, error) {
	c, err := id.ParseChain(chainSlug)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[c.Slug]; ok {
		return client, nil
	}
	rpcURL, err := p.RPCURL(c)
	if err != nil {
		return nil, err
	}
	client, err := p.dial(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	p.clients[c.Slug] = client
	return client, nil
}

func (p *Pool) RPCURL(c id.Chain) (string, error) {
	url, err := registry.ResolveRPCURL(p.overrides[c.Slug], c.EVMChainID)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeConfig, "resolve rpc url", err)
	}
	return url, nil
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, c := range p.clients {
		c.Close()
		delete(p.clients, k)
	}
}
