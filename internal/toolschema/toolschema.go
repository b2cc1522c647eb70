// Package toolschema renders adapter tools for tool-calling hosts and binds tool
// parameters to command line flags.
package toolschema

import (
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
)

const (
	FormatNative    = "native"
	FormatOpenAI    = "openai"
	FormatAnthropic = "anthropic"
)

// QualifiedName joins adapter and function with a double underscore, which every
// tool-calling API accepts in a function name.
func QualifiedName(adapterName, function string) string {
	return adapterName + "__" + function
}

// SplitQualifiedName is the inverse of QualifiedName.
func SplitQualifiedName(name string) (string, string, bool) {
	a, f, ok := strings.Cut(name, "__")
	if !ok || a == "" || f == "" {
		return "", "", false
	}
	return a, f, true
}

// NativeTool is the descriptor as adapters declare it, tagged with its adapter.
type NativeTool struct {
	Adapter string `json:"adapter"`
	adapter.Tool
}

func Native(adapterName string, tools []adapter.Tool) []NativeTool {
	out := make([]NativeTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, NativeTool{Adapter: adapterName, Tool: t})
	}
	return out
}

// Definition is the JSON schema object for a tool's parameters.
func Definition(tool adapter.Tool) jsonschema.Definition {
	props := make(map[string]jsonschema.Definition, len(tool.Parameters))
	for _, p := range tool.Parameters {
		props[p.Name] = paramDefinition(p)
	}
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: props,
		Required:   tool.Required(),
	}
}

func paramDefinition(p adapter.Parameter) jsonschema.Definition {
	def := jsonschema.Definition{
		Type:        dataType(p.Type),
		Description: p.Description,
		Enum:        p.Enum,
	}
	if p.Type == adapter.TypeArray {
		item := p.Items
		if item == "" {
			item = adapter.TypeString
		}
		def.Items = &jsonschema.Definition{Type: dataType(item)}
	}
	return def
}

func dataType(t adapter.ParamType) jsonschema.DataType {
	switch t {
	case adapter.TypeNumber:
		return jsonschema.Number
	case adapter.TypeInteger:
		return jsonschema.Integer
	case adapter.TypeBoolean:
		return jsonschema.Boolean
	case adapter.TypeArray:
		return jsonschema.Array
	default:
		return jsonschema.String
	}
}

// OpenAI renders tools as chat completion function tools.
func OpenAI(adapterName string, tools []adapter.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        QualifiedName(adapterName, t.Name),
				Description: t.Description,
				Parameters:  Definition(t),
			},
		})
	}
	return out
}

// Anthropic renders tools for the Messages API.
func Anthropic(adapterName string, tools []adapter.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		def := Definition(t)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        QualifiedName(adapterName, t.Name),
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.Properties,
					Required:   def.Required,
				},
			},
		})
	}
	return out
}

// Render dispatches on format for a catalog of tools keyed by adapter, in the given
// adapter order.
func Render(format string, order []string, tools map[string][]adapter.Tool) (any, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatNative:
		out := []NativeTool{}
		for _, name := range order {
			out = append(out, Native(name, tools[name])...)
		}
		return out, nil
	case FormatOpenAI:
		out := []openai.Tool{}
		for _, name := range order {
			out = append(out, OpenAI(name, tools[name])...)
		}
		return out, nil
	case FormatAnthropic:
		out := []anthropic.ToolUnionParam{}
		for _, name := range order {
			out = append(out, Anthropic(name, tools[name])...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported tool format %q (expected %s|%s|%s)", format, FormatNative, FormatOpenAI, FormatAnthropic)
	}
}
