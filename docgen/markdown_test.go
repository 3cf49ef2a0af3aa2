package docgen_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/drafter/docgen"
)

const baseSpec = `## Losa de hormigón

### Descripción

Losa de hormigón armado.

### Procedimiento

Vaciado y vibrado del hormigón.

### Medición y Forma de Pago

Se mide en **metros cuadrados (m²)**.

### Parámetros Técnicos Recomendados

| Parámetro Técnico | Opciones válidas | Valor por defecto |
|-------------------|------------------|-------------------|
| Espesor | 10 cm, 15 cm | 10 cm |
| Acabado | Liso, Rugoso | Liso |

### Adicionales

- **Curado químico**: Aplicación de membrana de curado.
- **Juntas**: Corte de juntas de dilatación.
esto no es un adicional
`

func TestTrimAt(t *testing.T) {
	got := docgen.TrimAt(baseSpec, docgen.ParametersHeading)
	if strings.Contains(got, "Parámetros") || strings.Contains(got, "Curado") {
		t.Errorf("trimmed spec still has the tables:\n%s", got)
	}
	if !strings.HasSuffix(got, "Se mide en **metros cuadrados (m²)**.") {
		t.Errorf("trimmed spec lost content:\n%s", got)
	}
	if docgen.TrimAt("sin tablas", docgen.ParametersHeading) != "sin tablas" {
		t.Error("spec without the heading should be kept whole")
	}
}

func TestSection(t *testing.T) {
	table := docgen.Section(baseSpec, docgen.ParametersHeading)
	if !strings.HasPrefix(table, "| Parámetro Técnico") || strings.Contains(table, "Adicionales") {
		t.Errorf("parameter section:\n%s", table)
	}
	if docgen.Section(baseSpec, "### Inexistente") != "" {
		t.Error("missing section should be empty")
	}
}

func TestParseParameterTable(t *testing.T) {
	got := docgen.ParseParameterTable(docgen.Section(baseSpec, docgen.ParametersHeading))
	want := []docgen.Parameter{
		{Name: "Espesor", Options: "10 cm, 15 cm", Default: "10 cm"},
		{Name: "Acabado", Options: "Liso, Rugoso", Default: "Liso"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
	if docgen.ParseParameterTable("| Solo encabezado |\n|---|") != nil {
		t.Error("a table without rows should parse to nil")
	}
}

func TestParseAdditionals(t *testing.T) {
	got := docgen.ParseAdditionals(docgen.Section(baseSpec, docgen.AdditionalsHeading))
	want := []docgen.Additional{
		{Activity: "Curado químico", Description: "Aplicación de membrana de curado."},
		{Activity: "Juntas", Description: "Corte de juntas de dilatación."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("additionals (-want +got):\n%s", diff)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	params := []docgen.Parameter{{Name: "Espesor", Options: "10 cm", Default: "10 cm"}}
	if diff := cmp.Diff(params, docgen.ParseParameterTable(docgen.RenderParameterTable(params))); diff != "" {
		t.Errorf("parameter table (-want +got):\n%s", diff)
	}
	adds := []docgen.Additional{{Activity: "Juntas", Description: "Corte."}}
	if diff := cmp.Diff(adds, docgen.ParseAdditionals(docgen.RenderAdditionals(adds))); diff != "" {
		t.Errorf("additionals (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(docgen.RenderParameterTable(nil), "_No se definieron") {
		t.Error("empty table placeholder missing")
	}
}

func TestAppendToSection(t *testing.T) {
	doc := "## Item\n\n### Procedimiento\n\nPasos.\n\n### Medición y Forma de Pago\n\nm².\n"
	got := docgen.AppendToSection(doc, docgen.ProcedureHeading, "Cierre.")
	want := "## Item\n\n### Procedimiento\n\nPasos.\n\nCierre.\n\n### Medición y Forma de Pago\n\nm².\n"
	if got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}

	last := docgen.AppendToSection("### Procedimiento\n\nPasos.", docgen.ProcedureHeading, "Cierre.")
	if last != "### Procedimiento\n\nPasos.\n\nCierre.\n" {
		t.Errorf("last section: %q", last)
	}

	if docgen.AppendToSection("sin secciones", docgen.ProcedureHeading, "Cierre.") != "sin secciones" {
		t.Error("doc without the section should be unchanged")
	}
}
