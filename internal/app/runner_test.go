package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/catalog"
	"github.com/ggonzalez94/defi-adapters/internal/config"
	"github.com/ggonzalez94/defi-adapters/internal/evmtest"
	"github.com/ggonzalez94/defi-adapters/internal/host"
)

func echoAdapter() adapter.Adapter {
	params := []adapter.Parameter{
		adapter.ChainParam([]string{"sonic"}),
		{Name: "text", Type: adapter.TypeString, Description: "Text to echo", Required: true},
		{Name: "loud", Type: adapter.TypeBoolean, Description: "Upper-case the text"},
	}
	say := func(ctx context.Context, props adapter.Props, opts adapter.FunctionOptions) adapter.Result {
		text := props.String("text")
		if text == "" {
			return adapter.Fail("text is required")
		}
		if props.Bool("loud") {
			text = strings.ToUpper(text)
		}
		_ = opts.Notify(ctx, "echoing "+text)
		return adapter.OK(text)
	}
	return adapter.Adapter{
		Name:        "echo",
		Description: "Echo test adapter",
		Tools: []adapter.Tool{
			{Name: "say", Description: "Echo text. Used by tests.", Parameters: params},
			{Name: "shout", Description: "Echo text loudly", Parameters: params},
		},
		Functions: map[string]adapter.Function{"say": say, "shout": say},
	}
}

type harness struct {
	host       *evmtest.Host
	hostBuilds int
	stdout     bytes.Buffer
	stderr     bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	isolate(t)
	return &harness{host: evmtest.NewHost(nil)}
}

func (h *harness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	r := NewRunnerWithWriters(&h.stdout, &h.stderr,
		WithLogWriter(io.Discard),
		WithCatalogFactory(func(settings config.Settings) (*catalog.Catalog, error) {
			return catalog.New(settings.EnableFunctions, echoAdapter())
		}),
		WithHostFactory(func(config.Settings) (adapter.FunctionOptions, func(), error) {
			h.hostBuilds++
			return h.host, nil, nil
		}),
	)
	return r.Run(args)
}

func (h *harness) errorEnvelope(t *testing.T) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal(h.stderr.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, h.stderr.String())
	}
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
	return env["error"].(map[string]any)
}

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, key := range []string{"ADAPTERS_CONFIG", "ADAPTERS_OUTPUT", "ADAPTERS_ENABLE_FUNCTIONS", "ADAPTERS_MODE", "ADAPTERS_PROPOSALS_PATH", "ADAPTERS_PROPOSALS_LOCK_PATH", "ADAPTERS_ENSO_URL", "ADAPTERS_MORPHO_URL", "ADAPTERS_BETSWIRL_URL"} {
		t.Setenv(key, "")
	}
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("adapters call beets stake"); got != "call beets stake" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestRunnerVersion(t *testing.T) {
	h := newHarness(t)
	if code := h.run("version"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	if strings.TrimSpace(h.stdout.String()) == "" {
		t.Fatal("expected a version")
	}
}

func TestRunnerList(t *testing.T) {
	h := newHarness(t)
	if code := h.run("list", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var rows []map[string]any
	if err := json.Unmarshal(h.stdout.Bytes(), &rows); err != nil {
		t.Fatalf("failed to parse output: %v output=%s", err, h.stdout.String())
	}
	if len(rows) != 1 || rows[0]["name"] != "echo" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if fns := rows[0]["functions"].([]any); len(fns) != 2 {
		t.Fatalf("unexpected functions: %v", fns)
	}
	if chains := rows[0]["chains"].([]any); len(chains) != 1 || chains[0] != "sonic" {
		t.Fatalf("unexpected chains: %v", chains)
	}
	if h.hostBuilds != 0 {
		t.Fatal("list must not build a host")
	}
}

func TestRunnerListRespectsAllowlist(t *testing.T) {
	h := newHarness(t)
	if code := h.run("list", "--results-only", "--enable-functions", "echo.shout"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	if !strings.Contains(h.stdout.String(), `"shout"`) || strings.Contains(h.stdout.String(), `"say"`) {
		t.Fatalf("unexpected output: %s", h.stdout.String())
	}
}

func TestRunnerCallWithFlags(t *testing.T) {
	h := newHarness(t)
	code := h.run("call", "echo", "say", "--chainName", "sonic", "--text", "gm", "--loud", "--results-only", "--plain")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	if h.stdout.String() != "GM\n" {
		t.Fatalf("unexpected output: %q", h.stdout.String())
	}
	if notes := h.host.Notes(); len(notes) != 1 || notes[0] != "echoing GM" {
		t.Fatalf("unexpected notifications: %v", notes)
	}
}

func TestRunnerCallEnvelope(t *testing.T) {
	h := newHarness(t)
	code := h.run("call", "echo", "say", "--params", `{"chainName":"sonic","text":"from json"}`, "--text", "from flag")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var env struct {
		Success bool   `json:"success"`
		Data    string `json:"data"`
		Meta    struct {
			Command  string `json:"command"`
			Adapter  string `json:"adapter"`
			Function string `json:"function"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(h.stdout.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse output: %v output=%s", err, h.stdout.String())
	}
	if !env.Success || env.Data != "from flag" {
		t.Fatalf("flags must win over --params: %+v", env)
	}
	if env.Meta.Command != "call echo say" || env.Meta.Adapter != "echo" || env.Meta.Function != "say" {
		t.Fatalf("unexpected meta: %+v", env.Meta)
	}
}

func TestRunnerCallFailureEnvelope(t *testing.T) {
	h := newHarness(t)
	code := h.run("call", "echo", "say", "--chainName", "sonic", "--results-only")
	if code != 17 {
		t.Fatalf("expected exit 17, got %d stderr=%s", code, h.stderr.String())
	}
	body := h.errorEnvelope(t)
	if body["type"] != "function_failed" || body["message"] != "text is required" {
		t.Fatalf("unexpected error body: %v", body)
	}
	if h.stdout.Len() != 0 {
		t.Fatalf("expected empty stdout, got %s", h.stdout.String())
	}
}

func TestRunnerCallBlocked(t *testing.T) {
	h := newHarness(t)
	code := h.run("call", "echo", "shout", "--text", "gm", "--enable-functions", "echo.say")
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, h.stderr.String())
	}
	body := h.errorEnvelope(t)
	if body["type"] != "function_blocked" {
		t.Fatalf("unexpected error body: %v", body)
	}
	if h.hostBuilds != 0 || h.host.Touched() {
		t.Fatal("blocked call must not reach the host")
	}
}

func TestRunnerCallUnknownFunction(t *testing.T) {
	h := newHarness(t)
	if code := h.run("call", "echo", "whisper"); code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, h.stderr.String())
	}
	if body := h.errorEnvelope(t); body["message"] != "Function whisper not found in adapter echo" {
		t.Fatalf("unexpected error body: %v", body)
	}
	if code := h.run("call", "nope"); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if code := h.run("call", "echo", "say", "--volume", "11"); code != 2 {
		t.Fatalf("expected exit 2 for unknown flag, got %d", code)
	}
}

func TestRunnerToolsOpenAI(t *testing.T) {
	h := newHarness(t)
	if code := h.run("tools", "echo", "--format", "openai", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	if !strings.Contains(h.stdout.String(), `"name": "echo__say"`) {
		t.Fatalf("unexpected output: %s", h.stdout.String())
	}
	if code := h.run("tools", "--format", "xml"); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunnerSchemaIncludesToolFlags(t *testing.T) {
	h := newHarness(t)
	if code := h.run("schema", "call", "echo", "say", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var s struct {
		Path  string `json:"path"`
		Flags []struct {
			Name     string `json:"name"`
			Required bool   `json:"required"`
		} `json:"flags"`
	}
	if err := json.Unmarshal(h.stdout.Bytes(), &s); err != nil {
		t.Fatalf("failed to parse schema: %v", err)
	}
	if s.Path != "adapters call echo say" {
		t.Fatalf("unexpected path %s", s.Path)
	}
	required := map[string]bool{}
	for _, f := range s.Flags {
		required[f.Name] = f.Required
	}
	if !required["text"] || !required["chainName"] || required["loud"] {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
}

func TestRunnerProposals(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "proposals.db")
	lockPath := filepath.Join(dir, "proposals.lock")
	t.Setenv("ADAPTERS_PROPOSALS_PATH", dbPath)
	t.Setenv("ADAPTERS_PROPOSALS_LOCK_PATH", lockPath)

	store, err := host.OpenProposalStore(dbPath, lockPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	p := host.NewProposal(adapter.SendTransactionsRequest{
		ChainID:      146,
		Account:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Transactions: []adapter.TransactionIntent{{Target: common.HexToAddress("0x00000000000000000000000000000000000000bb")}},
	}, "echo.say")
	if err := store.Save(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = store.Close()

	if code := h.run("proposals", "list", "--status", "pending", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var rows []map[string]any
	if err := json.Unmarshal(h.stdout.Bytes(), &rows); err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != p.ID || rows[0]["transactions"].(float64) != 1 {
		t.Fatalf("unexpected rows: %v", rows)
	}

	if code := h.run("proposals", "resolve", p.ID, "--status", "rejected", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	if code := h.run("proposals", "resolve", p.ID); code != 14 {
		t.Fatalf("expected exit 14 for a resolved proposal, got %d", code)
	}
	if code := h.run("proposals", "show", "prop_missing"); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestMergeProps(t *testing.T) {
	props, err := mergeProps(`{"amount":"1","chainName":"base"}`, adapter.Props{"chainName": "sonic"})
	if err != nil {
		t.Fatalf("mergeProps failed: %v", err)
	}
	if props.String("amount") != "1" || props.String("chainName") != "sonic" {
		t.Fatalf("unexpected props: %v", props)
	}
	if _, err := mergeProps(`[1,2]`, nil); err == nil {
		t.Fatal("expected error for non-object params")
	}
}
