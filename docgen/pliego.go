package docgen

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/llm"
	"github.com/xraph/drafter/state"
)

// PliegoName is the name of the specification sheet graph.
const PliegoName = "pliego"

// State fields of the pliego graph. The first four are the caller's input.
const (
	FieldTitle                = "title"
	FieldBaseSpec             = "base_spec"
	FieldKeyParameters        = "key_parameters"
	FieldAdditionals          = "additionals"
	FieldParameterTable       = "parameter_table"
	FieldAdditionalsTable     = "additionals_table"
	FieldParsedAdditionals    = "parsed_additionals"
	FieldParsedParameters     = "parsed_parameters"
	FieldMatchedAdditionals   = "matched_additionals"
	FieldOtherAdditionals     = "other_additionals"
	FieldUnassignedParameters = "unassigned_parameters"
	FieldOtherParameters      = "other_parameters"
	FieldParameterReviews     = "parameter_reviews"
	FieldAdditionalReviews    = "additional_reviews"
	FieldDocument             = "document"
	FieldTokenCost            = "token_cost"
)

// Suspension actions of the pliego graph.
const (
	ActionReviewParameters  = "review_parameters"
	ActionReviewAdditionals = "review_additionals"
)

// ReviewItem is one suggestion put to the reviewer. The resume value of a
// review suspension is the same list with Agregar set on the items to
// integrate.
type ReviewItem struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Question string `json:"question"`
	Subject  string `json:"subject"`
	Value    string `json:"value,omitempty"`
	Comment  string `json:"comment,omitempty"`
	Applies  string `json:"applies,omitempty"`
	Score    int    `json:"score,omitempty"`
	Agregar  bool   `json:"agregar"`
}

// ReviewPayload is the payload of a review suspension.
type ReviewPayload struct {
	Action  string       `json:"action"`
	Message string       `json:"message"`
	Items   []ReviewItem `json:"items"`
}

// PliegoSchema returns the state schema of the pliego graph.
func PliegoSchema() *state.Schema {
	return state.MustSchema(
		state.String(FieldTitle).Describe("Title of the new item."),
		state.String(FieldBaseSpec).Describe("Base specification in markdown."),
		state.List(FieldKeyParameters).Describe("Key parameter values of the project."),
		state.List(FieldAdditionals).Describe("Additional activities requested for the item."),
		state.String(FieldParameterTable).Describe("Markdown parameter table; captured from the base specification when empty."),
		state.String(FieldAdditionalsTable).Describe("Markdown list of compatible additionals; captured from the base specification when empty."),
		state.List(FieldParsedAdditionals),
		state.List(FieldParsedParameters),
		state.List(FieldMatchedAdditionals),
		state.List(FieldOtherAdditionals),
		state.List(FieldUnassignedParameters),
		state.List(FieldOtherParameters),
		state.List(FieldParameterReviews),
		state.List(FieldAdditionalReviews),
		state.String(FieldDocument).Describe("Generated specification."),
		state.Counter(FieldTokenCost).Describe("Accumulated model cost in USD."),
	)
}

// Pliego builds the specification sheet graph over model.
//
//	clean_and_capture ─┬─ parse_additionals ─ match_additionals ─────────────────────┐
//	                   └─ parse_parameters ─ match_key_parameters ─ add_other_parameters ─ process_spec
//	process_spec ─ review_parameters ─ add_parameters ─ review_additionals ─ add_additionals ─ add_closing
func Pliego(model llm.Transformer, opts ...Option) *graph.Graph {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &pliego{model: model, cfg: cfg}
	llmNode := func(name, desc string, fn graph.NodeFunc) graph.Node {
		return graph.Node{Name: name, Description: desc, Func: fn, Timeout: cfg.nodeTimeout}
	}

	return graph.Must(graph.Definition{
		Name:    PliegoName,
		Version: cfg.version,
		Schema:  PliegoSchema(),
		Nodes: []graph.Node{
			{Name: "clean_and_capture", Description: "Trim the base specification and capture its tables.", Func: p.cleanAndCapture},
			{Name: "parse_additionals", Description: "Parse the compatible additionals list.", Func: p.parseAdditionals},
			llmNode("match_additionals", "Match requested additionals to compatible ones.", p.matchAdditionals),
			{Name: "parse_parameters", Description: "Parse the parameter table.", Func: p.parseParameters},
			llmNode("match_key_parameters", "Assign key parameters to table rows.", p.matchKeyParameters),
			llmNode("add_other_parameters", "Name the key parameters no row took.", p.addOtherParameters),
			llmNode("process_spec", "Draft the specification.", p.processSpec),
			llmNode("review_parameters", "Evaluate the candidate parameters.", p.reviewParameters),
			llmNode("add_parameters", "Integrate the parameters the reviewer accepted.", p.addParameters),
			llmNode("review_additionals", "Evaluate the unmatched additionals.", p.reviewAdditionals),
			llmNode("add_additionals", "Integrate the additionals the reviewer accepted.", p.addAdditionals),
			{Name: "add_closing", Description: "Append the closing paragraph to the procedure.", Func: p.addClosing},
		},
		Edges: []graph.Edge{
			{From: "clean_and_capture", To: "parse_additionals"},
			{From: "clean_and_capture", To: "parse_parameters"},
			{From: "parse_additionals", To: "match_additionals"},
			{From: "parse_parameters", To: "match_key_parameters"},
			{From: "match_key_parameters", To: "add_other_parameters"},
			{From: "match_additionals", To: "process_spec"},
			{From: "add_other_parameters", To: "process_spec"},
			{From: "process_spec", To: "review_parameters"},
			{From: "review_parameters", To: "add_parameters"},
			{From: "add_parameters", To: "review_additionals"},
			{From: "review_additionals", To: "add_additionals"},
			{From: "add_additionals", To: "add_closing"},
		},
		Entry:    "clean_and_capture",
		Terminal: "add_closing",
	})
}

type pliego struct {
	model llm.Transformer
	cfg   config
}

func (p *pliego) meter() *meter { return &meter{model: p.model} }

func (p *pliego) cleanAndCapture(_ context.Context, s state.Snapshot, _ graph.Invocation) (state.Update, error) {
	base := s.String(FieldBaseSpec)
	u := state.Update{FieldBaseSpec: TrimAt(base, ParametersHeading)}
	if s.String(FieldParameterTable) == "" {
		u[FieldParameterTable] = Section(base, ParametersHeading)
	}
	if s.String(FieldAdditionalsTable) == "" {
		u[FieldAdditionalsTable] = Section(base, AdditionalsHeading)
	}
	return u, nil
}

func (p *pliego) parseAdditionals(_ context.Context, s state.Snapshot, _ graph.Invocation) (state.Update, error) {
	return state.Update{FieldParsedAdditionals: nonNil(ParseAdditionals(s.String(FieldAdditionalsTable)))}, nil
}

func (p *pliego) parseParameters(_ context.Context, s state.Snapshot, _ graph.Invocation) (state.Update, error) {
	return state.Update{FieldParsedParameters: nonNil(ParseParameterTable(s.String(FieldParameterTable)))}, nil
}

// matchAdditionals degrades: a failed call leaves the proposal unmatched.
func (p *pliego) matchAdditionals(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	catalog, err := state.Decode[[]Additional](s, FieldParsedAdditionals)
	if err != nil {
		return nil, err
	}
	m := p.meter()
	matched, other := []Additional{}, []Additional{}
	for _, proposed := range s.Strings(FieldAdditionals) {
		var reply struct {
			Activity    string `json:"actividad"`
			Description string `json:"descripcion"`
		}
		if len(catalog) > 0 {
			err := m.decode(ctx, llm.Prompt{System: systemWriter, User: matchAdditionalPrompt(catalog, proposed), Name: inv.Node}, &reply)
			if err != nil {
				if err := degrade(ctx, inv.Node, err); err != nil {
					return nil, err
				}
				reply.Activity = ""
			}
		}
		if reply.Activity != "" && slices.ContainsFunc(catalog, func(a Additional) bool { return a.Activity == reply.Activity }) {
			if reply.Description == "" {
				reply.Description = proposed
			}
			matched = append(matched, Additional{Activity: reply.Activity, Description: reply.Description})
			continue
		}
		other = append(other, Additional{Activity: proposed, Description: proposed})
	}
	return state.Update{
		FieldMatchedAdditionals: matched,
		FieldOtherAdditionals:   other,
		FieldTokenCost:          m.cost,
	}, nil
}

// matchKeyParameters degrades: a failed call leaves the row unassigned.
func (p *pliego) matchKeyParameters(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	rows, err := state.Decode[[]Parameter](s, FieldParsedParameters)
	if err != nil {
		return nil, err
	}
	keys := s.Strings(FieldKeyParameters)
	used := make(map[string]bool, len(keys))
	m := p.meter()
	for i := range rows {
		rows[i].Assigned = "-"
		if len(keys) == 0 {
			continue
		}
		reply, err := m.text(ctx, llm.Prompt{System: systemWriter, User: matchParameterPrompt(rows[i], keys), Name: inv.Node})
		if err != nil {
			if err := degrade(ctx, inv.Node, err); err != nil {
				return nil, err
			}
			continue
		}
		reply = strings.Trim(strings.TrimSpace(reply), `"`)
		if reply != "-" && slices.Contains(keys, reply) {
			rows[i].Assigned = reply
			used[reply] = true
		}
	}
	unassigned := []string{}
	for _, k := range keys {
		if !used[k] {
			unassigned = append(unassigned, k)
		}
	}
	return state.Update{
		FieldParsedParameters:     nonNil(rows),
		FieldUnassignedParameters: unassigned,
		FieldTokenCost:            m.cost,
	}, nil
}

// addOtherParameters turns each unassigned key into a candidate row. A
// failed naming call falls back to "Otros".
func (p *pliego) addOtherParameters(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	m := p.meter()
	rows := []Parameter{}
	for _, key := range s.Strings(FieldUnassignedParameters) {
		name, err := m.text(ctx, llm.Prompt{User: parameterNamePrompt(key), Name: inv.Node})
		if err != nil {
			if err := degrade(ctx, inv.Node, err); err != nil {
				return nil, err
			}
		}
		name = strings.TrimRight(strings.TrimSpace(name), ".")
		if name == "" || strings.EqualFold(name, "otros") {
			name = "Otros"
		} else {
			// Marked for review.
			name += "*"
		}
		rows = append(rows, Parameter{Name: name, Options: "-", Default: "-", Assigned: key})
	}
	return state.Update{FieldOtherParameters: rows, FieldTokenCost: m.cost}, nil
}

// processSpec propagates a failed call: without a draft there is nothing
// to review.
func (p *pliego) processSpec(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	adds, err := state.Decode[[]Additional](s, FieldMatchedAdditionals)
	if err != nil {
		return nil, err
	}
	params, err := state.Decode[[]Parameter](s, FieldParsedParameters)
	if err != nil {
		return nil, err
	}
	m := p.meter()
	doc, err := m.text(ctx, llm.Prompt{
		System:      systemWriter,
		User:        processSpecPrompt(s.String(FieldTitle), s.Strings(FieldKeyParameters), adds, params, s.String(FieldBaseSpec)),
		Temperature: 0.4,
		Name:        inv.Node,
	})
	if err != nil {
		return nil, fmt.Errorf("draft specification: %w", err)
	}
	return state.Update{FieldDocument: doc, FieldTokenCost: m.cost}, nil
}

// reviewParameters degrades: a failed evaluation keeps the item with no
// recommendation.
func (p *pliego) reviewParameters(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	params, err := state.Decode[[]Parameter](s, FieldOtherParameters)
	if err != nil {
		return nil, err
	}
	doc := s.String(FieldDocument)
	m := p.meter()
	items := []ReviewItem{}
	for _, prm := range params {
		if prm.Name == "" || prm.Assigned == "" {
			continue
		}
		var eval struct {
			Comment string `json:"comentario"`
			Applies string `json:"corresponde"`
			Score   int    `json:"calificacion"`
		}
		err := m.decode(ctx, llm.Prompt{System: systemWriter, User: reviewParameterPrompt(doc, prm), Temperature: 0.5, Name: inv.Node}, &eval)
		if err != nil {
			if err := degrade(ctx, inv.Node, err); err != nil {
				return nil, err
			}
			eval.Applies = "No"
		}
		items = append(items, ReviewItem{
			ID:       len(items) + 1,
			Title:    prm.Name + " - " + prm.Assigned,
			Question: "¿Desea que se agregue a la especificación?",
			Subject:  prm.Name,
			Value:    prm.Assigned,
			Comment:  eval.Comment,
			Applies:  eval.Applies,
			Score:    eval.Score,
		})
	}
	return state.Update{FieldParameterReviews: items, FieldTokenCost: m.cost}, nil
}

func (p *pliego) addParameters(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	return p.integrate(ctx, s, inv, FieldParameterReviews, ReviewPayload{
		Action:  ActionReviewParameters,
		Message: "Seleccione los parámetros que desea agregar a la especificación.",
	}, integrateParametersPrompt)
}

// reviewAdditionals degrades like reviewParameters.
func (p *pliego) reviewAdditionals(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	others, err := state.Decode[[]Additional](s, FieldOtherAdditionals)
	if err != nil {
		return nil, err
	}
	doc := s.String(FieldDocument)
	m := p.meter()
	items := []ReviewItem{}
	for _, a := range others {
		if strings.TrimSpace(a.Activity) == "" {
			continue
		}
		var eval struct {
			Comment string `json:"comentario"`
			Applies string `json:"corresponde"`
		}
		err := m.decode(ctx, llm.Prompt{System: systemWriter, User: reviewAdditionalPrompt(doc, a), Name: inv.Node}, &eval)
		if err != nil {
			if err := degrade(ctx, inv.Node, err); err != nil {
				return nil, err
			}
			eval.Applies = "No"
		}
		items = append(items, ReviewItem{
			ID:       len(items) + 1,
			Title:    a.Activity,
			Question: "¿Desea que se agregue la actividad en la especificación?",
			Subject:  a.Activity,
			Comment:  eval.Comment,
			Applies:  eval.Applies,
		})
	}
	return state.Update{FieldAdditionalReviews: items, FieldTokenCost: m.cost}, nil
}

func (p *pliego) addAdditionals(ctx context.Context, s state.Snapshot, inv graph.Invocation) (state.Update, error) {
	return p.integrate(ctx, s, inv, FieldAdditionalReviews, ReviewPayload{
		Action:  ActionReviewAdditionals,
		Message: "Seleccione las actividades adicionales que desea agregar a la especificación.",
	}, integrateAdditionalsPrompt)
}

// integrate suspends with the review items of field and integrates the
// accepted ones into the document. With nothing to review, or nothing
// accepted, the node completes without changes. A failed integration call
// propagates.
func (p *pliego) integrate(
	ctx context.Context,
	s state.Snapshot,
	inv graph.Invocation,
	field string,
	payload ReviewPayload,
	prompt func(doc string, accepted []ReviewItem) string,
) (state.Update, error) {
	items, err := state.Decode[[]ReviewItem](s, field)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	payload.Items = items
	decided, err := graph.InterruptAs[[]ReviewItem](ctx, payload)
	if err != nil {
		return nil, err
	}

	accepted := acceptedItems(items, decided)
	drafter.LoggerFromContext(ctx).Info("review decided",
		slog.String("action", payload.Action),
		slog.Int("items", len(items)),
		slog.Int("accepted", len(accepted)),
	)
	if len(accepted) == 0 {
		return nil, nil
	}

	m := p.meter()
	doc, err := m.text(ctx, llm.Prompt{System: systemWriter, User: prompt(s.String(FieldDocument), accepted), Name: inv.Node})
	if err != nil {
		return nil, fmt.Errorf("integrate %s: %w", payload.Action, err)
	}
	return state.Update{FieldDocument: doc, FieldTokenCost: m.cost}, nil
}

func (p *pliego) addClosing(_ context.Context, s state.Snapshot, _ graph.Invocation) (state.Update, error) {
	doc := s.String(FieldDocument)
	out := AppendToSection(doc, ProcedureHeading, p.cfg.closing)
	if out == doc {
		return nil, nil
	}
	return state.Update{FieldDocument: out}, nil
}

// acceptedItems returns the suggested items the reviewer marked agregar,
// matched by id. Fields the reviewer edited are taken from the decision;
// items the decision does not mention are rejected.
func acceptedItems(suggested, decided []ReviewItem) []ReviewItem {
	byID := make(map[int]ReviewItem, len(decided))
	for _, d := range decided {
		byID[d.ID] = d
	}
	var out []ReviewItem
	for _, it := range suggested {
		d, ok := byID[it.ID]
		if !ok || !d.Agregar {
			continue
		}
		if d.Subject != "" {
			it.Subject = d.Subject
		}
		if d.Value != "" {
			it.Value = d.Value
		}
		it.Agregar = true
		out = append(out, it)
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
