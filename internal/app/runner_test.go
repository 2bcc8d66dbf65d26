package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/walletbot/internal/balance"
	"github.com/ggonzalez94/walletbot/internal/execution"
	"github.com/ggonzalez94/walletbot/internal/id"
	"github.com/ggonzalez94/walletbot/internal/version"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	Warnings []string `json:"warnings"`
	Meta     struct {
		Command string `json:"command"`
	} `json:"meta"`
}

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("XDG_DATA_HOME", tmp)
	for _, k := range []string{"TELEGRAM_BOT_TOKEN", "ENCRYPTION_KEY", "WALLETBOT_TELEGRAM_TOKEN", "WALLETBOT_ENCRYPTION_KEY", "WALLETBOT_OUTPUT", "WALLETBOT_SESSION_BACKEND"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return tmp
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr).Run(args)
	return code, stdout.String(), stderr.String()
}

func decode(t *testing.T, raw string) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, raw)
	}
	return env
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	code, stdout, _ := run(t, "version")
	if code != 0 || strings.TrimSpace(stdout) != version.CLIVersion {
		t.Fatalf("unexpected version output code=%d %q", code, stdout)
	}
	code, stdout, _ = run(t, "version", "--long")
	if code != 0 || !strings.Contains(stdout, "commit:") {
		t.Fatalf("unexpected long version output %q", stdout)
	}
}

func TestKeygenEmitsHexKey(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "keygen", "--results-only")
	if code != 0 {
		t.Fatalf("keygen failed code=%d stderr=%s", code, stderr)
	}
	var out struct {
		Key    string `json:"encryption_key"`
		EnvVar string `json:"env_var"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode keygen output: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(out.Key) || out.EnvVar != "ENCRYPTION_KEY" {
		t.Fatalf("unexpected key output %+v", out)
	}
}

func TestEnableCommandsBlocksOtherCommands(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "--enable-commands", "keygen", "routes")
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stdout=%s", code, stdout)
	}
	env := decode(t, stderr)
	if env.Success || env.Error == nil || env.Error.Type != "command_blocked" || env.Meta.Command != "routes" {
		t.Fatalf("unexpected error envelope %+v", env)
	}
}

func TestServeRequiresToken(t *testing.T) {
	isolate(t)
	code, _, stderr := run(t, "serve")
	if code != 5 {
		t.Fatalf("expected config exit code, got %d", code)
	}
	env := decode(t, stderr)
	if env.Error == nil || env.Error.Type != "config_error" || !strings.Contains(env.Error.Message, "TELEGRAM_BOT_TOKEN") {
		t.Fatalf("unexpected error envelope %+v", env.Error)
	}
}

func TestUnknownCommandIsUsageError(t *testing.T) {
	isolate(t)
	code, _, stderr := run(t, "launch")
	if code != 2 {
		t.Fatalf("expected usage exit code, got %d", code)
	}
	if env := decode(t, stderr); env.Error == nil || env.Error.Type != "usage_error" {
		t.Fatalf("unexpected error envelope %+v", env.Error)
	}
}

func TestRoutesListsPolygonToBase(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "routes", "--results-only")
	if code != 0 {
		t.Fatalf("routes failed: %s", stderr)
	}
	var routes []map[string]string
	if err := json.Unmarshal([]byte(stdout), &routes); err != nil {
		t.Fatalf("decode routes: %v", err)
	}
	found := false
	for _, r := range routes {
		if r["from"] == "polygon" && r["to"] == "base" && r["protocol"] != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected polygon to base route in %s", stdout)
	}
}

func TestChainsPlainSelect(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "chains", "--plain", "--results-only", "--select", "slug")
	if code != 0 {
		t.Fatalf("chains failed: %s", stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != len(id.Chains()) || lines[0] != "slug="+id.Chains()[0].Slug {
		t.Fatalf("unexpected plain output %q", stdout)
	}
}

func TestActionsListAndShow(t *testing.T) {
	tmp := isolate(t)
	dir := filepath.Join(tmp, "walletbot")
	store, err := execution.OpenStore(filepath.Join(dir, "actions.db"), filepath.Join(dir, "actions.lock"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	done := execution.NewAction("act_done", execution.IntentTransfer, "polygon")
	done.Status = execution.ActionStatusCompleted
	failed := execution.NewAction("act_failed", execution.IntentMigrate, "polygon")
	failed.Status = execution.ActionStatusFailed
	for _, a := range []execution.Action{done, failed} {
		if err := store.Save(a); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	_ = store.Close()

	code, stdout, stderr := run(t, "actions", "list", "--status", "completed")
	if code != 0 {
		t.Fatalf("actions list failed: %s", stderr)
	}
	var items []execution.Action
	if err := json.Unmarshal(decode(t, stdout).Data, &items); err != nil {
		t.Fatalf("decode actions: %v", err)
	}
	if len(items) != 1 || items[0].ActionID != "act_done" {
		t.Fatalf("unexpected actions %+v", items)
	}

	code, _, stderr = run(t, "actions", "show", "--action-id", "act_missing")
	if code != 17 {
		t.Fatalf("expected not found exit code, got %d stderr=%s", code, stderr)
	}
}

func TestBalanceReportFlagsFailedReads(t *testing.T) {
	chains := id.Chains()
	report := balance.Report{
		Address: common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		Chains: []balance.ChainBalances{{
			Chain: chains[0],
			Lines: []balance.Line{{Token: "USDC", Text: "1.5"}, {Token: "USDT", Text: balance.ErrorSentinel}},
		}},
	}
	data, warnings := balanceReport(report)
	if len(data.Balances) != 2 || data.Balances[0].ChainID != chains[0].CAIP2 || data.Balances[0].Balance != "1.5" {
		t.Fatalf("unexpected rows %+v", data.Balances)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "USDT") {
		t.Fatalf("unexpected warnings %v", warnings)
	}
}

func TestSchemaDescribesServeFlags(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "schema", "serve", "--results-only")
	if code != 0 {
		t.Fatalf("schema failed: %s", stderr)
	}
	var doc struct {
		Path  string `json:"path"`
		Flags []struct {
			Name string `json:"name"`
		} `json:"flags"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	names := map[string]bool{}
	for _, f := range doc.Flags {
		names[f.Name] = true
	}
	if doc.Path != "walletbot serve" || !names["session-backend"] || !names["metrics-listen"] {
		t.Fatalf("unexpected schema %s", stdout)
	}
}
