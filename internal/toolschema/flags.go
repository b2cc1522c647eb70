package toolschema

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/ggonzalez94/defi-adapters/internal/adapter"
)

// Flag annotations carry the parameter schema so command schemas can report it.
const (
	AnnotationParamType = "adapters_param_type"
	AnnotationRequired  = "adapters_param_required"
)

// BindFlags registers one flag per tool parameter on fs. The returned function
// collects the flags the user actually set into Props. Unset flags stay absent, so
// required parameters are reported by the adapter's own validation.
func BindFlags(fs *pflag.FlagSet, tool adapter.Tool) func() adapter.Props {
	type binding struct {
		param adapter.Parameter
		str   *string
		b     *bool
		list  *[]string
	}
	bindings := make([]binding, 0, len(tool.Parameters))
	for _, p := range tool.Parameters {
		usage := flagUsage(p)
		b := binding{param: p}
		switch p.Type {
		case adapter.TypeBoolean:
			b.b = fs.Bool(p.Name, false, usage)
		case adapter.TypeArray:
			b.list = fs.StringSlice(p.Name, nil, usage)
		default:
			b.str = fs.String(p.Name, "", usage)
		}
		_ = fs.SetAnnotation(p.Name, AnnotationParamType, []string{string(p.Type)})
		if p.Required {
			_ = fs.SetAnnotation(p.Name, AnnotationRequired, []string{"true"})
		}
		bindings = append(bindings, b)
	}

	return func() adapter.Props {
		props := adapter.Props{}
		for _, b := range bindings {
			name := b.param.Name
			if !fs.Changed(name) {
				continue
			}
			switch {
			case b.b != nil:
				props[name] = *b.b
			case b.list != nil:
				items := make([]any, 0, len(*b.list))
				for _, item := range *b.list {
					items = append(items, item)
				}
				props[name] = items
			default:
				props[name] = *b.str
			}
		}
		return props
	}
}

func flagUsage(p adapter.Parameter) string {
	usage := p.Description
	if len(p.Enum) > 0 {
		usage += " (" + strings.Join(p.Enum, "|") + ")"
	}
	if p.Required {
		usage += " [required]"
	}
	return usage
}
