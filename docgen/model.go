package docgen

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/llm"
)

// Option configures a document graph.
type Option func(*config)

type config struct {
	version     int
	closing     string
	nodeTimeout time.Duration
}

func defaults() config {
	return config{version: 1, closing: DefaultClosing}
}

// WithVersion sets the graph version. Suspended executions resume on the
// version they started with, so bump it when prompts or topology change.
func WithVersion(v int) Option {
	return func(c *config) { c.version = v }
}

// WithClosing replaces the paragraph appended to the procedure section.
func WithClosing(text string) Option {
	return func(c *config) { c.closing = text }
}

// WithNodeTimeout sets the deadline of each node that calls the model.
// Zero leaves the executor default.
func WithNodeTimeout(d time.Duration) Option {
	return func(c *config) { c.nodeTimeout = d }
}

// DefaultClosing is appended at the end of the procedure section.
const DefaultClosing = `Los trabajos deben ser realizados por personal calificado y capacitado, siguiendo estrictamente las normas de seguridad y contando con los equipos de protección personal necesarios para cada etapa del proceso.

> **Nota:** La empresa contratista es responsable del transporte y la disposición de los residuos generados, de manera segura y conforme a las normativas aplicables.`

// meter sums the cost of the model calls of one node run.
type meter struct {
	model llm.Transformer
	cost  float64
}

func (m *meter) text(ctx context.Context, p llm.Prompt) (string, error) {
	out, err := m.model.Transform(ctx, p)
	if err != nil {
		return "", err
	}
	m.cost += out.Cost
	return out.Text, nil
}

// decode calls the model and decodes its reply into v. A reply that is not
// the requested JSON is a decode failure of the call.
func (m *meter) decode(ctx context.Context, p llm.Prompt, v any) error {
	text, err := m.text(ctx, p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFence(text)), v); err != nil {
		return &llm.CallError{Kind: llm.KindDecode, Name: p.Name, Err: err}
	}
	return nil
}

// degrade logs a failed call that the node absorbs. Cancellation is never
// absorbed.
func degrade(ctx context.Context, node string, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return err
	}
	drafter.LoggerFromContext(ctx).Warn("model call failed, continuing without it",
		slog.String("call", node),
		slog.String("error", err.Error()),
	)
	return nil
}

// stripFence removes a markdown code fence around a JSON reply.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
