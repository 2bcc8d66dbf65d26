// Package balance reads native and ERC-20 balances and allowances across the
// supported chains.
package balance

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
	"github.com/ggonzalez94/walletbot/internal/id"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	NotAvailable  = "Not available on this chain"
	ErrorSentinel = "Error"

	defaultConcurrency = 4
)

type Reader struct {
	provider    chain.Provider
	log         zerolog.Logger
	concurrency int
}

type Option func(*Reader)

func WithLogger(log zerolog.Logger) Option {
	return func(r *Reader) { r.log = log }
}

// WithConcurrency bounds the number of in-flight reads during a sweep.
func WithConcurrency(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func NewReader(provider chain.Provider, opts ...Option) *Reader {
	r := &Reader{provider: provider, log: zerolog.Nop(), concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetBalance returns a display line for one token on one chain. It never
// fails: an unlisted token yields NotAvailable and any read failure yields
// ErrorSentinel.
func (r *Reader) GetBalance(ctx context.Context, chainSlug string, token id.Token, address common.Address) string {
	c, err := id.ParseChain(chainSlug)
	if err != nil {
		return ErrorSentinel
	}
	if _, ok := token.AddressOn(c.Slug); !ok {
		return NotAvailable
	}
	var raw *big.Int
	if token.IsNativeOn(c.Slug) {
		raw, err = r.Native(ctx, c.Slug, address)
	} else {
		raw, err = r.TokenBalance(ctx, c.Slug, token, address)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("chain", c.Slug).Str("token", token.Symbol).Msg("balance read failed")
		return ErrorSentinel
	}
	symbol := token.Symbol
	if token.IsNativeOn(c.Slug) {
		symbol = c.NativeSymbol
	}
	return fmt.Sprintf("%s %s", id.FormatUnits(raw, token.Decimals), symbol)
}

func (r *Reader) Native(ctx context.Context, chainSlug string, address common.Address) (*big.Int, error) {
	client, err := r.provider.Client(ctx, chainSlug)
	if err != nil {
		return nil, err
	}
	v, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
	}
	return v, nil
}

// TokenBalance reads balanceOf for the token's address on the chain.
func (r *Reader) TokenBalance(ctx context.Context, chainSlug string, token id.Token, owner common.Address) (*big.Int, error) {
	addr, err := tokenContract(chainSlug, token)
	if err != nil {
		return nil, err
	}
	return r.ContractBalance(ctx, chainSlug, addr, owner)
}

// ContractBalance reads balanceOf on an arbitrary ERC-20 contract, such as a
// lending position token that is not part of the token registry.
func (r *Reader) ContractBalance(ctx context.Context, chainSlug string, contract, owner common.Address) (*big.Int, error) {
	return r.readUint(ctx, chainSlug, contract, calldata.BalanceOf{Account: owner})
}

func (r *Reader) Allowance(ctx context.Context, chainSlug string, contract, owner, spender common.Address) (*big.Int, error) {
	return r.readUint(ctx, chainSlug, contract, calldata.Allowance{Owner: owner, Spender: spender})
}

func (r *Reader) readUint(ctx context.Context, chainSlug string, contract common.Address, op calldata.Op) (*big.Int, error) {
	client, err := r.provider.Client(ctx, chainSlug)
	if err != nil {
		return nil, err
	}
	data, err := calldata.Encode(op)
	if err != nil {
		return nil, err
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "call "+op.Method(), err)
	}
	return calldata.DecodeUint(op, out)
}

func tokenContract(chainSlug string, token id.Token) (common.Address, error) {
	raw, ok := token.AddressOn(chainSlug)
	if !ok || raw == id.NativeSentinel {
		return common.Address{}, clierr.New(clierr.CodeUnsupported, "Token not supported on this chain.")
	}
	return common.HexToAddress(raw), nil
}

// Line is one token row of a balance report.
type Line struct {
	Token string
	Text  string
}

type ChainBalances struct {
	Chain id.Chain
	Lines []Line
}

type Report struct {
	Address common.Address
	Chains  []ChainBalances
}

// Report sweeps every chain and token for the address. Individual read
// failures only mark their own line.
func (r *Reader) Report(ctx context.Context, address string) (Report, error) {
	addr, err := id.ParseAddress(address)
	if err != nil {
		return Report{}, err
	}
	chains := id.Chains()
	tokens := id.Tokens()
	report := Report{Address: addr, Chains: make([]ChainBalances, len(chains))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for ci, c := range chains {
		report.Chains[ci] = ChainBalances{Chain: c, Lines: make([]Line, len(tokens))}
		for ti, t := range tokens {
			ci, ti, c, t := ci, ti, c, t
			g.Go(func() error {
				report.Chains[ci].Lines[ti] = Line{Token: t.Symbol, Text: r.GetBalance(gctx, c.Slug, t, addr)}
				return nil
			})
		}
	}
	_ = g.Wait()
	return report, nil
}

// Text renders the report in the chat layout.
func (rep Report) Text() string {
	var b strings.Builder
	b.WriteString("Balance:\n\n")
	for _, cb := range rep.Chains {
		b.WriteString(cb.Chain.Name)
		b.WriteString(":\n")
		for _, line := range cb.Lines {
			b.WriteString(line.Token)
			b.WriteString(": ")
			b.WriteString(line.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
