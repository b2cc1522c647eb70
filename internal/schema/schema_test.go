package schema

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
	"github.com/ggonzalez94/defi-adapters/internal/toolschema"
)

func TestBuildSchema(t *testing.T) {
	root := &cobra.Command{Use: "adapters"}
	call := &cobra.Command{Use: "call", Short: "Invoke an adapter function"}
	beets := &cobra.Command{Use: "beets", Short: "Beets liquid staking"}
	stake := &cobra.Command{Use: "stake", Short: "Stake S"}
	toolschema.BindFlags(stake.Flags(), adapter.Tool{
		Name: "stake",
		Parameters: []adapter.Parameter{
			adapter.ChainParam([]string{"sonic"}),
			adapter.AmountParam("Amount of S"),
			{Name: "dryRun", Type: adapter.TypeBoolean, Description: "Only print"},
		},
	})
	beets.AddCommand(stake)
	call.AddCommand(beets)
	root.AddCommand(call)

	s, err := Build(root, "call beets stake")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "adapters call beets stake" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if len(s.Flags) != 3 {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	byName := map[string]FlagSchema{}
	for _, f := range s.Flags {
		byName[f.Name] = f
	}
	if f := byName["amount"]; !f.Required || f.ParamType != "string" {
		t.Fatalf("unexpected amount flag: %+v", f)
	}
	if f := byName["dryRun"]; f.Required || f.Type != "bool" {
		t.Fatalf("unexpected dryRun flag: %+v", f)
	}
}

func TestBuildSchemaUnknownCommand(t *testing.T) {
	root := &cobra.Command{Use: "adapters"}
	root.AddCommand(&cobra.Command{Use: "list"})
	if _, err := Build(root, "call nope"); err == nil {
		t.Fatal("expected error for unknown command")
	}
	s, err := Build(root, "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(s.Subcommands) != 1 || s.Subcommands[0].Use != "list" {
		t.Fatalf("unexpected subcommands: %+v", s.Subcommands)
	}
}
