package registry

import (
	"fmt"
	"sort"
	"strings"
)

// MigrationRoute describes every contract a position migration touches
// between two chains.
type MigrationRoute struct {
	From     string
	To       string
	Protocol string
	Token    string

	// Source chain.
	PositionToken string
	SourceAsset   string
	SourcePool    string
	BridgeRouter  string
	Aggregator    string

	// Destination chain.
	DestAsset    string
	DestPool     string
	DestReceiver string

	BridgeChainID uint16
	SrcPoolID     int64
	DstPoolID     int64
	DstGasForCall int64
}

// RouteOverrides replaces individual route contracts, typically from config.
type RouteOverrides struct {
	Aggregator   string
	BridgeRouter string
	SourcePool   string
	DestPool     string
	DestReceiver string
}

// Aave V3 USDC on Polygon bridged by Stargate into Aave V3 on Base.
var migrationRoutes = map[string]MigrationRoute{
	routeKey("polygon", "base"): {
		From:          "polygon",
		To:            "base",
		Protocol:      "aave-v3",
		Token:         "USDC",
		PositionToken: "0x625E7708f30cA75bfd92586e17077590C60eb4cD",
		SourceAsset:   "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		SourcePool:    "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
		BridgeRouter:  "0xeCc19E177d24551aA7ed6Bc6FE566eCa726CC8a9",
		Aggregator:    "0x5175963c90714a8d28669edd1b96d054b42cb2e8",
		DestAsset:     "0x4c80e24119cfb836cdf0a6b53dc23f04f7e652ca",
		DestPool:      "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5",
		DestReceiver:  "0x77a90ebb0C950cACe0fD4ce5274efac305C9a7e4",
		BridgeChainID: 184,
		SrcPoolID:     1,
		DstPoolID:     1,
		DstGasForCall: 800_000,
	},
}

func Migration(from, to string) (MigrationRoute, bool) {
	route, ok := migrationRoutes[routeKey(from, to)]
	return route, ok
}

// MigrationSources lists chains that have at least one outgoing route.
func MigrationSources() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, r := range migrationRoutes {
		if !seen[r.From] {
			seen[r.From] = true
			out = append(out, r.From)
		}
	}
	sort.Strings(out)
	return out
}

// MigrationDestinations lists chains reachable from the given source.
func MigrationDestinations(from string) []string {
	out := []string{}
	for _, r := range migrationRoutes {
		if r.From == strings.ToLower(from) {
			out = append(out, r.To)
		}
	}
	sort.Strings(out)
	return out
}

func (r MigrationRoute) WithOverrides(o RouteOverrides) MigrationRoute {
	if v := strings.TrimSpace(o.Aggregator); v != "" {
		r.Aggregator = v
	}
	if v := strings.TrimSpace(o.BridgeRouter); v != "" {
		r.BridgeRouter = v
	}
	if v := strings.TrimSpace(o.SourcePool); v != "" {
		r.SourcePool = v
	}
	if v := strings.TrimSpace(o.DestPool); v != "" {
		r.DestPool = v
	}
	if v := strings.TrimSpace(o.DestReceiver); v != "" {
		r.DestReceiver = v
	}
	return r
}

func (r MigrationRoute) String() string {
	return fmt.Sprintf("%s %s %s->%s", r.Protocol, r.Token, r.From, r.To)
}

func routeKey(from, to string) string {
	return strings.ToLower(strings.TrimSpace(from)) + "->" + strings.ToLower(strings.TrimSpace(to))
}
