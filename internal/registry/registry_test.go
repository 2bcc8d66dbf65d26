package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestSingleFunctionABIsParse(t *testing.T) {
	fragments := map[string]string{
		"balanceOf":         ERC20BalanceOfABI,
		"allowance":         ERC20AllowanceABI,
		"approve":           ERC20ApproveABI,
		"transfer":          ERC20TransferABI,
		"transferFrom":      ERC20TransferFromABI,
		"supply":            AaveSupplyABI,
		"withdraw":          AaveWithdrawABI,
		"multicall":         MulticallABI,
		"swap":              StargateSwapABI,
		"quoteLayerZeroFee": StargateQuoteFeeABI,
	}
	for method, raw := range fragments {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			t.Fatalf("parse %s abi: %v", method, err)
		}
		if len(parsed.Methods) != 1 {
			t.Fatalf("expected exactly one method in %s fragment, got %d", method, len(parsed.Methods))
		}
		if _, ok := parsed.Methods[method]; !ok {
			t.Fatalf("fragment does not declare %s", method)
		}
	}
}

func TestMigrationRoute(t *testing.T) {
	route, ok := Migration("Polygon", "base")
	if !ok {
		t.Fatal("expected polygon->base route")
	}
	for name, addr := range map[string]string{
		"position token": route.PositionToken,
		"source asset":   route.SourceAsset,
		"source pool":    route.SourcePool,
		"bridge router":  route.BridgeRouter,
		"aggregator":     route.Aggregator,
		"dest asset":     route.DestAsset,
		"dest pool":      route.DestPool,
		"dest receiver":  route.DestReceiver,
	} {
		if !common.IsHexAddress(addr) {
			t.Fatalf("invalid %s address: %q", name, addr)
		}
	}
	if route.BridgeChainID != 184 {
		t.Fatalf("unexpected bridge chain id: %d", route.BridgeChainID)
	}
	if _, ok := Migration("base", "polygon"); ok {
		t.Fatal("did not expect reverse route")
	}
	if got := MigrationDestinations("polygon"); len(got) != 1 || got[0] != "base" {
		t.Fatalf("unexpected destinations: %v", got)
	}
}

func TestMigrationRouteOverrides(t *testing.T) {
	route, _ := Migration("polygon", "base")
	next := route.WithOverrides(RouteOverrides{Aggregator: " 0x00000000000000000000000000000000000000AA "})
	if next.Aggregator != "0x00000000000000000000000000000000000000AA" {
		t.Fatalf("override not applied: %s", next.Aggregator)
	}
	if next.BridgeRouter != route.BridgeRouter {
		t.Fatalf("unexpected bridge router change: %s", next.BridgeRouter)
	}
}

func TestResolveRPCURL(t *testing.T) {
	got, err := ResolveRPCURL("", 8453)
	if err != nil || got != "https://mainnet.base.org" {
		t.Fatalf("unexpected default rpc: %q err=%v", got, err)
	}
	got, err = ResolveRPCURL(" http://127.0.0.1:8545 ", 8453)
	if err != nil || got != "http://127.0.0.1:8545" {
		t.Fatalf("unexpected override rpc: %q err=%v", got, err)
	}
	if _, err := ResolveRPCURL("", 1); err == nil {
		t.Fatal("expected error for unknown chain")
	}
}
