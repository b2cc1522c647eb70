package adapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/defi-adapters/internal/telemetry"
)

// Function is the signature every adapter function implements.
type Function func(ctx context.Context, props Props, opts FunctionOptions) Result

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
)

// Parameter is one entry of a tool's flat parameter schema. Items is the element type
// for arrays.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Enum        []string  `json:"enum,omitempty"`
	Items       ParamType `json:"items,omitempty"`
	Required    bool      `json:"required"`
}

// Tool describes a callable function to a tool-calling host.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

func (t Tool) Required() []string {
	out := make([]string, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Adapter is the export of one protocol module.
type Adapter struct {
	Name        string
	Description string
	Tools       []Tool
	Functions   map[string]Function
}

func (a Adapter) Tool(name string) (Tool, bool) {
	for _, t := range a.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

func (a Adapter) FunctionNames() []string {
	out := make([]string, 0, len(a.Functions))
	for name := range a.Functions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Check reports tools without an implementation and functions without a tool.
func (a Adapter) Check() error {
	for _, t := range a.Tools {
		if _, ok := a.Functions[t.Name]; !ok {
			return fmt.Errorf("%s: tool %s has no function", a.Name, t.Name)
		}
	}
	for name := range a.Functions {
		if _, ok := a.Tool(name); !ok {
			return fmt.Errorf("%s: function %s has no tool", a.Name, name)
		}
	}
	return nil
}

// Invoke runs one function and never lets a panic escape.
func (a Adapter) Invoke(ctx context.Context, name string, props Props, opts FunctionOptions) (res Result) {
	fn, ok := a.Functions[name]
	if !ok {
		return Fail(fmt.Sprintf("Function %s not found in adapter %s", name, a.Name))
	}
	if props == nil {
		props = Props{}
	}
	ctx, hooks := withAbortHooks(ctx)
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{"adapter": a.Name, "function": name}).Errorf("panic: %v", r)
			if hooks.run(fmt.Sprintf("panic: %v", r)) == 0 {
				telemetry.ObserveInvocation(a.Name, name, "failure")
			}
			res = Fail(fmt.Sprintf("internal error in %s.%s", a.Name, name))
		}
	}()
	return fn(ctx, props, opts)
}
