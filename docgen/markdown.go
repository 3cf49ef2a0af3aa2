package docgen

import (
	"regexp"
	"strings"
)

// Section headings of a base specification.
const (
	ParametersHeading  = "### Parámetros Técnicos"
	AdditionalsHeading = "### Adicionales"
	ProcedureHeading   = "Procedimiento"
)

// Parameter is one row of a technical parameter table.
type Parameter struct {
	Name     string `json:"name"`
	Options  string `json:"options"`
	Default  string `json:"default"`
	Assigned string `json:"assigned,omitempty"`
}

// Additional is an additional activity with its technical description.
type Additional struct {
	Activity    string `json:"activity"`
	Description string `json:"description"`
}

// TrimAt returns doc up to the first line that starts with heading.
func TrimAt(doc, heading string) string {
	if i := headingIndex(doc, heading); i >= 0 {
		return strings.TrimSpace(doc[:i])
	}
	return strings.TrimSpace(doc)
}

// Section returns the body under heading up to the next heading of the
// same or a higher level, or "" when doc has no such heading.
func Section(doc, heading string) string {
	i := headingIndex(doc, heading)
	if i < 0 {
		return ""
	}
	body := doc[i:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return ""
	}
	level := headingLevel(heading)
	if end := nextHeading(body, level); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

var additionalLine = regexp.MustCompile(`^- \*\*(.+?)\*\*:\s*(.+)$`)

// ParseAdditionals parses a markdown list of "- **name**: description"
// lines. Lines of any other shape are skipped.
func ParseAdditionals(md string) []Additional {
	var out []Additional
	for _, line := range strings.Split(md, "\n") {
		m := additionalLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		out = append(out, Additional{
			Activity:    strings.TrimSpace(m[1]),
			Description: strings.TrimSpace(m[2]),
		})
	}
	return out
}

var separatorRow = regexp.MustCompile(`^\|[-:\s|]+\|?$`)

// ParseParameterTable parses a markdown table whose first three columns
// are the parameter name, its valid options and its default value. The
// header row and the separator row are skipped.
func ParseParameterTable(md string) []Parameter {
	var rows [][]string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") || separatorRow.MatchString(line) {
			continue
		}
		rows = append(rows, splitRow(line))
	}
	if len(rows) < 2 {
		return nil
	}
	out := make([]Parameter, 0, len(rows)-1)
	for _, cols := range rows[1:] {
		p := Parameter{Name: col(cols, 0), Options: col(cols, 1), Default: col(cols, 2)}
		if p.Name == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// RenderParameterTable renders parameters back to a markdown table under
// ParametersHeading.
func RenderParameterTable(params []Parameter) string {
	if len(params) == 0 {
		return "_No se definieron parámetros técnicos._"
	}
	var b strings.Builder
	b.WriteString(ParametersHeading + "\n\n")
	b.WriteString("| Parámetro Técnico | Opciones Válidas | Valor por Defecto |\n")
	b.WriteString("|-------------------|------------------|-------------------|\n")
	for _, p := range params {
		b.WriteString("| " + p.Name + " | " + p.Options + " | " + p.Default + " |\n")
	}
	return b.String()
}

// RenderAdditionals renders additional activities as a markdown list.
func RenderAdditionals(adds []Additional) string {
	if len(adds) == 0 {
		return "_No se definieron actividades adicionales._"
	}
	var b strings.Builder
	b.WriteString(AdditionalsHeading + "\n\n")
	for _, a := range adds {
		b.WriteString("- **" + a.Activity + "**: " + strings.TrimSpace(a.Description) + "\n")
	}
	return b.String()
}

// AppendToSection inserts text at the end of the section whose heading
// contains title. doc is returned unchanged when there is no such section.
func AppendToSection(doc, title, text string) string {
	start := -1
	level := 0
	offset := 0
	for _, line := range strings.SplitAfter(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.Contains(trimmed, title) {
			start = offset + len(line)
			level = headingLevel(trimmed)
			break
		}
		offset += len(line)
	}
	if start < 0 {
		return doc
	}
	end := len(doc)
	if i := nextHeading(doc[start:], level); i >= 0 {
		end = start + i
	}
	body := strings.TrimRight(doc[start:end], " \n")
	rest := doc[end:]
	out := doc[:start] + body + "\n\n" + strings.TrimSpace(text) + "\n"
	if rest != "" {
		out += "\n" + rest
	}
	return out
}

func headingIndex(doc, heading string) int {
	offset := 0
	for _, line := range strings.SplitAfter(doc, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), heading) {
			return offset
		}
		offset += len(line)
	}
	return -1
}

// nextHeading returns the offset of the first heading line in s whose
// level is at most level, or -1.
func nextHeading(s string, level int) int {
	offset := 0
	for _, line := range strings.SplitAfter(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if l := headingLevel(trimmed); l > 0 && l <= level {
			return offset
		}
		offset += len(line)
	}
	return -1
}

func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n == len(line) || line[n] != ' ' {
		return 0
	}
	return n
}

func splitRow(line string) []string {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func col(cols []string, i int) string {
	if i < len(cols) {
		return cols[i]
	}
	return ""
}
