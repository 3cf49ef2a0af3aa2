package docgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/llm"
	"github.com/xraph/drafter/state"
)

// GenericaName is the name of the generic specification graph.
const GenericaName = "generica"

// State fields of the generica graph not shared with pliego. Its input is
// FieldTitle and FieldSpecs.
const (
	FieldSpecs       = "specs"
	FieldContent     = "content"
	FieldResources   = "resources"
	FieldMeasurement = "measurement"
)

// Content is the description, procedure and tables drafted from the base
// specification.
type Content struct {
	Description string       `json:"descripcion"`
	Procedure   string       `json:"procedimiento"`
	Parameters  []Parameter  `json:"parametros_tecnicos"`
	Additionals []Additional `json:"adicionales"`
}

// Resources are the materials, equipment, tools and protective equipment
// of an activity.
type Resources struct {
	Materials string `json:"materiales"`
	Equipment string `json:"equipo"`
	Tools     string `json:"herramientas"`
	PPE       string `json:"epp"`
}

// GenericaSchema returns the state schema of the generica graph.
func GenericaSchema() *state.Schema {
	return state.MustSchema(
		state.String(FieldTitle).Describe("Title of the new item."),
		state.List(FieldSpecs).Describe("Source specifications in markdown."),
		state.String(FieldBaseSpec),
		state.Map(FieldContent),
		state.Map(FieldResources),
		state.String(FieldMeasurement),
		state.String(FieldDocument).Describe("Generated specification."),
		state.Counter(FieldTokenCost).Describe("Accumulated model cost in USD."),
	)
}

// Generica builds the generic specification graph over model.
//
//	merge_specs ─ generate_content ─┬─ generate_resources ───┬─ consolidate
//	                                └─ generate_measurement ─┘
//
// Every model call propagates its failure.
func Generica(model llm.Transformer, opts ...Option) *graph.Graph {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	g := &generica{model: model}

	return graph.Must(graph.Definition{
		Name:    GenericaName,
		Version: cfg.version,
		Schema:  GenericaSchema(),
		Nodes: []graph.Node{
			{Name: "merge_specs", Description: "Merge the source specifications into one base.", Func: g.mergeSpecs, Timeout: cfg.nodeTimeout},
			{Name: "generate_content", Description: "Draft description, procedure and tables.", Func: g.generateContent, Timeout: cfg.nodeTimeout},
			{Name: "generate_resources", Description: "List materials, equipment, tools and PPE.", Func: g.generateResources, Timeout: cfg.nodeTimeout},
			{Name: "generate_measurement", Description: "Draft measurement and payment.", Func: g.generateMeasurement, Timeout: cfg.nodeTimeout},
			{Name: "consolidate", Description: "Render the final document.", Func: g.consolidate},
		},
		Edges: []graph.Edge{
			{From: "merge_specs", To: "generate_content"},
			{From: "generate_content", To: "generate_resources"},
			{From: "generate_content", To: "generate_measurement"},
			{From: "generate_resources", To: "consolidate"},
			{From: "generate_measurement", To: "consolidate"},
		},
	})
}

type generica struct {
	model llm.Transformer
}

// mergeSpecs passes a single source through without calling the model.
func (g *generica) mergeSpecs(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	specs := s.Strings(FieldSpecs)
	switch len(specs) {
	case 0:
		return nil, errors.New("no source specifications")
	case 1:
		return state.Update{FieldBaseSpec: specs[0]}, nil
	}
	m := &meter{model: g.model}
	merged, err := m.text(ctx, llm.Prompt{System: systemWriter, User: mergeSpecsPrompt(s.String(FieldTitle), specs), Name: inv.Node})
	if err != nil {
		return nil, fmt.Errorf("merge specifications: %w", err)
	}
	return state.Update{FieldBaseSpec: merged, FieldTokenCost: m.cost}, nil
}

func (g *generica) generateContent(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	m := &meter{model: g.model}
	var c Content
	if err := m.decode(ctx, llm.Prompt{System: systemWriter, User: contentPrompt(s.String(FieldBaseSpec)), Name: inv.Node}, &c); err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return state.Update{FieldContent: c, FieldTokenCost: m.cost}, nil
}

func (g *generica) generateResources(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	c, err := state.Decode[Content](s, FieldContent)
	if err != nil {
		return nil, err
	}
	m := &meter{model: g.model}
	var r Resources
	if err := m.decode(ctx, llm.Prompt{System: systemWriter, User: resourcesPrompt(c, s.String(FieldBaseSpec)), Name: inv.Node}, &r); err != nil {
		return nil, fmt.Errorf("generate resources: %w", err)
	}
	return state.Update{FieldResources: r, FieldTokenCost: m.cost}, nil
}

func (g *generica) generateMeasurement(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	c, err := state.Decode[Content](s, FieldContent)
	if err != nil {
		return nil, err
	}
	m := &meter{model: g.model}
	text, err := m.text(ctx, llm.Prompt{System: systemWriter, User: measurementPrompt(c), Name: inv.Node})
	if err != nil {
		return nil, fmt.Errorf("generate measurement: %w", err)
	}
	return state.Update{FieldMeasurement: text, FieldTokenCost: m.cost}, nil
}

func (g *generica) consolidate(_ context.Context, s state.Snapshot, _ graph.Invocation) (state.Update, error) {
	c, err := state.Decode[Content](s, FieldContent)
	if err != nil {
		return nil, err
	}
	r, err := state.Decode[Resources](s, FieldResources)
	if err != nil {
		return nil, err
	}
	return state.Update{FieldDocument: RenderGeneric(s.String(FieldTitle), c, r, s.String(FieldMeasurement))}, nil
}

// RenderGeneric renders the final generic specification.
func RenderGeneric(title string, c Content, r Resources, measurement string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)
	fmt.Fprintf(&b, "### Descripción.\n\n%s\n\n", strings.TrimSpace(c.Description))
	b.WriteString("### Materiales, Herramientas y Equipo.\n\n")
	fmt.Fprintf(&b, "- **Materiales**: %s\n", r.Materials)
	fmt.Fprintf(&b, "- **Equipo**: %s\n", r.Equipment)
	fmt.Fprintf(&b, "- **Herramientas**: %s\n", r.Tools)
	fmt.Fprintf(&b, "- **EPP**: %s\n\n", r.PPE)
	fmt.Fprintf(&b, "### Procedimiento.\n\n%s\n\n", strings.TrimSpace(c.Procedure))
	if m := strings.TrimSpace(measurement); m != "" {
		b.WriteString(m + "\n\n")
	}
	b.WriteString(RenderParameterTable(c.Parameters) + "\n")
	b.WriteString(RenderAdditionals(c.Additionals))
	return b.String()
}
