package calldata

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
)

var (
	testSpender = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	testUser    = common.HexToAddress("0x00000000000000000000000000000000000000AA")
)

func TestEncodeKnownSelectors(t *testing.T) {
	amount := big.NewInt(12_500_000)
	cases := []struct {
		op       Op
		selector string
	}{
		{op: Approve{Spender: testSpender, Amount: amount}, selector: "095ea7b3"},
		{op: Transfer{To: testSpender, Amount: amount}, selector: "a9059cbb"},
		{op: TransferFrom{From: testUser, To: testSpender, Amount: amount}, selector: "23b872dd"},
		{op: Supply{Asset: testSpender, Amount: amount, OnBehalfOf: testUser}, selector: "617ba037"},
		{op: Withdraw{Asset: testSpender, Amount: amount, To: testUser}, selector: "69328dec"},
		{op: BalanceOf{Account: testUser}, selector: "70a08231"},
		{op: Allowance{Owner: testUser, Spender: testSpender}, selector: "dd62ed3e"},
	}
	for _, tc := range cases {
		data, err := Encode(tc.op)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", tc.op.Method(), err)
		}
		if got := hex.EncodeToString(data[:4]); got != tc.selector {
			t.Fatalf("%s: expected selector %s, got %s", tc.op.Method(), tc.selector, got)
		}
	}
}

func TestEncodeAmountIsNotRescaled(t *testing.T) {
	amount := big.NewInt(12_500_000)
	data, err := Encode(Transfer{To: testSpender, Amount: amount})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	args, err := codecs["transfer"].Methods["transfer"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack transfer: %v", err)
	}
	if got := args[1].(*big.Int); got.Cmp(amount) != 0 {
		t.Fatalf("expected amount %s, got %s", amount, got)
	}
	if got := args[0].(common.Address); got != testSpender {
		t.Fatalf("unexpected recipient: %s", got.Hex())
	}
}

func TestEncodeRejectsMissingAmount(t *testing.T) {
	for _, op := range []Op{
		Approve{Spender: testSpender},
		Transfer{To: testSpender, Amount: big.NewInt(-1)},
		Withdraw{Asset: testSpender, To: testUser},
		Multicall{},
		BridgeSwap{SrcPoolID: big.NewInt(1), DstPoolID: big.NewInt(1), AmountLD: big.NewInt(1), MinAmountLD: big.NewInt(2), To: testUser.Bytes()},
	} {
		_, err := Encode(op)
		if err == nil {
			t.Fatalf("expected encoding error for %s", op.Method())
		}
		if !clierr.Is(err, clierr.CodeEncoding) {
			t.Fatalf("expected encoding code for %s, got %v", op.Method(), err)
		}
	}
	if _, err := Encode(nil); !clierr.Is(err, clierr.CodeEncoding) {
		t.Fatalf("expected encoding error for nil op, got %v", err)
	}
}

func TestEncodeMulticallPreservesOrderAndValue(t *testing.T) {
	first, _ := Encode(Approve{Spender: testSpender, Amount: big.NewInt(1)})
	second, _ := Encode(Transfer{To: testSpender, Amount: big.NewInt(2)})
	data, err := Encode(Multicall{Calls: []Call{
		{Target: testUser, CallData: first},
		{Target: testSpender, CallData: second, Value: big.NewInt(7)},
	}})
	if err != nil {
		t.Fatalf("Encode multicall failed: %v", err)
	}
	selector, ok := Selector("multicall")
	if !ok || !bytes.Equal(data[:4], selector) {
		t.Fatalf("unexpected multicall selector: %x", data[:4])
	}
	args, err := codecs["multicall"].Methods["multicall"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack multicall: %v", err)
	}
	calls := *abi.ConvertType(args[0], new([]Call)).(*[]Call)
	if len(calls) != 2 {
		t.Fatalf("expected 2 inner calls, got %d", len(calls))
	}
	if calls[0].Target != testUser || !bytes.Equal(calls[0].CallData, first) || calls[0].Value.Sign() != 0 {
		t.Fatalf("unexpected first call: %+v", calls[0])
	}
	if calls[1].Value.Int64() != 7 {
		t.Fatalf("unexpected second call value: %s", calls[1].Value)
	}
}

func TestBridgeSwapAndQuoteEncode(t *testing.T) {
	lz := LzTxParams{DstGasForCall: big.NewInt(800_000)}
	swap, err := Encode(BridgeSwap{
		DstChainID:    184,
		SrcPoolID:     big.NewInt(1),
		DstPoolID:     big.NewInt(1),
		RefundAddress: testUser,
		AmountLD:      big.NewInt(100_000_000),
		MinAmountLD:   big.NewInt(99_500_000),
		LzTx:          lz,
		To:            PackAddress(testSpender),
		Payload:       []byte{0x01},
	})
	if err != nil {
		t.Fatalf("Encode bridge swap failed: %v", err)
	}
	args, err := codecs["swap"].Methods["swap"].Inputs.Unpack(swap[4:])
	if err != nil {
		t.Fatalf("unpack swap: %v", err)
	}
	if args[0].(uint16) != 184 {
		t.Fatalf("unexpected dst chain id: %v", args[0])
	}
	if !bytes.Equal(args[7].([]byte), testSpender.Bytes()) {
		t.Fatalf("unexpected packed destination: %x", args[7])
	}

	if _, err := Encode(QuoteBridgeFee{DstChainID: 184, FunctionType: 1, ToAddress: PackAddress(testSpender), LzTx: lz}); err != nil {
		t.Fatalf("Encode quote failed: %v", err)
	}
}

func TestDecodeFeeQuote(t *testing.T) {
	out, err := codecs["quoteLayerZeroFee"].Methods["quoteLayerZeroFee"].Outputs.Pack(big.NewInt(42), big.NewInt(0))
	if err != nil {
		t.Fatalf("pack quote output: %v", err)
	}
	fee, err := DecodeFeeQuote(out)
	if err != nil {
		t.Fatalf("DecodeFeeQuote failed: %v", err)
	}
	if fee.Int64() != 42 {
		t.Fatalf("unexpected fee: %s", fee)
	}
	if _, err := DecodeFeeQuote([]byte{0x01}); err == nil {
		t.Fatal("expected decode error for short output")
	}
}

func TestBridgeMessageRoundTrip(t *testing.T) {
	deposit, err := Encode(Supply{Asset: testSpender, Amount: big.NewInt(5), OnBehalfOf: testUser})
	if err != nil {
		t.Fatalf("encode deposit: %v", err)
	}
	in := BridgeMessage{
		TokenOut:    testSpender,
		SwapData:    make([]byte, 32),
		Amount:      big.NewInt(5),
		LendingPool: common.HexToAddress("0x00000000000000000000000000000000000000CC"),
		Beneficiary: testUser,
		DepositData: deposit,
	}
	data, err := EncodeBridgeMessage(in)
	if err != nil {
		t.Fatalf("EncodeBridgeMessage failed: %v", err)
	}
	got, err := DecodeBridgeMessage(data)
	if err != nil {
		t.Fatalf("DecodeBridgeMessage failed: %v", err)
	}
	if got.IsSwap || got.TokenOut != in.TokenOut || got.Beneficiary != testUser || got.LendingPool != in.LendingPool {
		t.Fatalf("unexpected decoded message: %+v", got)
	}
	if got.Amount.Int64() != 5 || got.MinAmountOut.Sign() != 0 {
		t.Fatalf("unexpected decoded amounts: %+v", got)
	}
	if !bytes.Equal(got.DepositData, deposit) || len(got.SwapData) != 32 {
		t.Fatalf("unexpected decoded payloads: %+v", got)
	}
	if _, err := EncodeBridgeMessage(BridgeMessage{}); !clierr.Is(err, clierr.CodeEncoding) {
		t.Fatalf("expected encoding error without amount, got %v", err)
	}
}

func TestBridgeMessageRejectsWrongTypes(t *testing.T) {
	valid := func() []any {
		return []any{false, testSpender, []byte{}, big.NewInt(0), big.NewInt(5), testSpender, testUser, common.Address{}, []byte{0x01}}
	}
	if _, err := bridgeMessageFromValues(valid()); err != nil {
		t.Fatalf("expected well-typed values to decode, got %v", err)
	}
	cases := map[string]func(v []any){
		"tokenOut":    func(v []any) { v[1] = "0xbb" },
		"swapData":    func(v []any) { v[2] = "data" },
		"minAmount":   func(v []any) { v[3] = uint64(0) },
		"nilAmount":   func(v []any) { v[4] = (*big.Int)(nil) },
		"beneficiary": func(v []any) { v[6] = testUser.Bytes() },
		"depositData": func(v []any) { v[8] = nil },
		"arity":       func(v []any) {},
	}
	for name, mutate := range cases {
		values := valid()
		mutate(values)
		if name == "arity" {
			values = values[:8]
		}
		if _, err := bridgeMessageFromValues(values); !clierr.Is(err, clierr.CodeEncoding) {
			t.Fatalf("%s: expected encoding error, got %v", name, err)
		}
	}
	if _, err := DecodeBridgeMessage([]byte{0x01, 0x02}); !clierr.Is(err, clierr.CodeEncoding) {
		t.Fatalf("expected encoding error for truncated payload, got %v", err)
	}
}

func TestSelector(t *testing.T) {
	id, ok := Selector("approve")
	if !ok || hex.EncodeToString(id) != "095ea7b3" {
		t.Fatalf("unexpected approve selector %x", id)
	}
	if _, ok := Selector("mint"); ok {
		t.Fatal("expected unknown method to have no selector")
	}
}
