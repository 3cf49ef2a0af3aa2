package graph

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/xraph/drafter/state"
)

// hclFile is the top-level structure of a graph file.
//
//	graph "generica" {
//	  version  = 2
//	  entry    = "merge_specs"
//	  terminal = "consolidate"
//
//	  field "token_cost" {
//	    kind   = "number"
//	    policy = "add"
//	  }
//
//	  node "merge_specs" {
//	    timeout = "30s"
//	  }
//
//	  edge {
//	    from = "merge_specs"
//	    to   = ["generate_content"]
//	  }
//	}
type hclFile struct {
	Graphs []*hclGraph `hcl:"graph,block"`
}

type hclGraph struct {
	Name     string      `hcl:"name,label"`
	Version  int         `hcl:"version,optional"`
	Entry    string      `hcl:"entry,optional"`
	Terminal string      `hcl:"terminal,optional"`
	Fields   []*hclField `hcl:"field,block"`
	Nodes    []*hclNode  `hcl:"node,block"`
	Edges    []*hclEdge  `hcl:"edge,block"`
}

type hclField struct {
	Name        string    `hcl:"name,label"`
	Kind        string    `hcl:"kind,optional"`
	Policy      string    `hcl:"policy,optional"`
	Default     cty.Value `hcl:"default,optional"`
	Description string    `hcl:"description,optional"`
}

type hclNode struct {
	Name        string    `hcl:"name,label"`
	Func        string    `hcl:"func,optional"`
	Timeout     string    `hcl:"timeout,optional"`
	Description string    `hcl:"description,optional"`
	Params      cty.Value `hcl:"params,optional"`
}

type hclEdge struct {
	From string   `hcl:"from"`
	To   []string `hcl:"to"`
}

// LoadHCLFile parses the graph file at path. See LoadHCL.
func LoadHCLFile(path string, funcs map[string]NodeFunc) ([]*Graph, error) {
	f, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("graph: parse %s: %w", path, diags)
	}
	return decodeHCL(f, path, funcs)
}

// LoadHCL parses graph declarations from src and binds every node to the
// function registered under its func attribute (the node name when
// omitted). Field defaults and node params may be any HCL value.
func LoadHCL(src []byte, filename string, funcs map[string]NodeFunc) ([]*Graph, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("graph: parse %s: %w", filename, diags)
	}
	return decodeHCL(f, filename, funcs)
}

func decodeHCL(f *hcl.File, filename string, funcs map[string]NodeFunc) ([]*Graph, error) {
	var parsed hclFile
	if diags := gohcl.DecodeBody(f.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("graph: decode %s: %w", filename, diags)
	}

	graphs := make([]*Graph, 0, len(parsed.Graphs))
	for _, hg := range parsed.Graphs {
		g, err := hg.build(funcs)
		if err != nil {
			return nil, fmt.Errorf("graph: %s: graph %q: %w", filename, hg.Name, err)
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

func (hg *hclGraph) build(funcs map[string]NodeFunc) (*Graph, error) {
	fields := make([]state.Field, 0, len(hg.Fields))
	for _, hf := range hg.Fields {
		kind, err := state.ParseKind(hf.Kind)
		if err != nil {
			return nil, &state.SchemaError{Field: hf.Name, Msg: err.Error()}
		}
		policy, err := state.ParsePolicy(hf.Policy)
		if err != nil {
			return nil, &state.SchemaError{Field: hf.Name, Msg: err.Error()}
		}
		def, err := ctyToNative(hf.Default)
		if err != nil {
			return nil, &state.SchemaError{Field: hf.Name, Msg: "default: " + err.Error()}
		}
		fields = append(fields, state.Field{
			Name:        hf.Name,
			Kind:        kind,
			Policy:      policy,
			Default:     def,
			Description: hf.Description,
		})
	}
	schema, err := state.NewSchema(fields...)
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(hg.Nodes))
	for _, hn := range hg.Nodes {
		fnName := hn.Func
		if fnName == "" {
			fnName = hn.Name
		}
		fn, ok := funcs[fnName]
		if !ok {
			return nil, &TopologyError{Kind: "unbound", Msg: fmt.Sprintf("node %q: no function registered as %q", hn.Name, fnName)}
		}
		var timeout time.Duration
		if hn.Timeout != "" {
			if timeout, err = time.ParseDuration(hn.Timeout); err != nil {
				return nil, fmt.Errorf("node %q: timeout: %w", hn.Name, err)
			}
		}
		params, err := ctyToNative(hn.Params)
		if err != nil {
			return nil, fmt.Errorf("node %q: params: %w", hn.Name, err)
		}
		pm, ok := params.(map[string]any)
		if params != nil && !ok {
			return nil, fmt.Errorf("node %q: params must be an object", hn.Name)
		}
		nodes = append(nodes, Node{
			Name:        hn.Name,
			Func:        fn,
			Description: hn.Description,
			Timeout:     timeout,
			Params:      pm,
		})
	}

	var edges []Edge
	for _, he := range hg.Edges {
		for _, to := range he.To {
			edges = append(edges, Edge{From: he.From, To: to})
		}
	}

	return New(Definition{
		Name:     hg.Name,
		Version:  hg.Version,
		Schema:   schema,
		Nodes:    nodes,
		Edges:    edges,
		Entry:    hg.Entry,
		Terminal: hg.Terminal,
	})
}

// ctyToNative converts a cty value into its JSON-like Go form. Null and
// unknown values become nil.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, err
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.AsString(), err)
			}
			out[k.AsString()] = nv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
