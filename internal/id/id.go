package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
)

// NativeSentinel marks the chain's native asset in a token address mapping.
const NativeSentinel = "native"

var (
	evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	eip155Pattern     = regexp.MustCompile(`^eip155:[0-9]+$`)
)

type Chain struct {
	Name           string
	Slug           string
	CAIP2          string
	EVMChainID     int64
	NativeSymbol   string
	NativeDecimals int
}

type Token struct {
	Symbol    string
	Name      string
	Decimals  int
	Addresses map[string]string
}

// AddressOn returns the token address on a chain slug. The second return is
// false when the token is not listed there at all.
func (t Token) AddressOn(chain string) (string, bool) {
	v, ok := t.Addresses[strings.ToLower(strings.TrimSpace(chain))]
	return v, ok
}

// IsNativeOn reports whether the token is the chain's native asset.
func (t Token) IsNativeOn(chain string) bool {
	v, ok := t.AddressOn(chain)
	return ok && v == NativeSentinel
}

var chainOrder = []Chain{
	{Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453, NativeSymbol: "ETH", NativeDecimals: 18},
	{Name: "Polygon", Slug: "polygon", CAIP2: "eip155:137", EVMChainID: 137, NativeSymbol: "MATIC", NativeDecimals: 18},
}

var tokenOrder = []Token{
	{Symbol: "ETH", Name: "Ethereum", Decimals: 18, Addresses: map[string]string{
		"base": NativeSentinel,
	}},
	{Symbol: "MATIC", Name: "Polygon", Decimals: 18, Addresses: map[string]string{
		"polygon": NativeSentinel,
	}},
	{Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, Addresses: map[string]string{
		"base":    "0x4200000000000000000000000000000000000006",
		"polygon": "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619",
	}},
	{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Addresses: map[string]string{
		"base":    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		"polygon": "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
	}},
	{Symbol: "USDT", Name: "Tether USD", Decimals: 6, Addresses: map[string]string{
		"polygon": "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
	}},
	{Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18, Addresses: map[string]string{
		"base": "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb",
	}},
}

// Chains returns the supported chains in display order.
func Chains() []Chain {
	out := make([]Chain, len(chainOrder))
	copy(out, chainOrder)
	return out
}

// Tokens returns the supported tokens in display order.
func Tokens() []Token {
	out := make([]Token, len(tokenOrder))
	copy(out, tokenOrder)
	return out
}

// ParseChain accepts a slug, a numeric EVM chain id or a CAIP-2 identifier.
func ParseChain(input string) (Chain, error) {
	norm := strings.ToLower(strings.TrimSpace(input))
	if norm == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	if eip155Pattern.MatchString(norm) {
		norm = strings.TrimPrefix(norm, "eip155:")
	}
	if n, err := strconv.ParseInt(norm, 10, 64); err == nil {
		for _, c := range chainOrder {
			if c.EVMChainID == n {
				return c, nil
			}
		}
		return Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported chain id %d", n))
	}
	for _, c := range chainOrder {
		if c.Slug == norm {
			return c, nil
		}
	}
	return Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported chain %q", input))
}

func ParseToken(symbol string) (Token, error) {
	norm := strings.ToUpper(strings.TrimSpace(symbol))
	for _, t := range tokenOrder {
		if t.Symbol == norm {
			return t, nil
		}
	}
	return Token{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported token %q", symbol))
}

// ParseAddress validates a 0x-prefixed EVM address.
func ParseAddress(input string) (common.Address, error) {
	clean := strings.TrimSpace(input)
	if !evmAddressPattern.MatchString(clean) {
		return common.Address{}, clierr.New(clierr.CodeValidation, "Invalid address. Please send a valid 0x-prefixed wallet address.")
	}
	return common.HexToAddress(clean), nil
}

func IsAddress(input string) bool {
	return evmAddressPattern.MatchString(strings.TrimSpace(input))
}
