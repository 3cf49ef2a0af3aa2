package docgen

import (
	"fmt"
	"strings"
)

const systemWriter = "Eres un asistente experto en construcción y redacción de especificaciones técnicas."

func matchAdditionalPrompt(catalog []Additional, proposed string) string {
	return fmt.Sprintf(`Tienes una lista de actividades adicionales compatibles, cada una con un nombre y una descripción técnica:

%s

Actividad propuesta: %s

Determina si la actividad propuesta coincide técnicamente con alguna de las actividades compatibles, evaluando objetivo, procedimiento constructivo y materiales e ignorando diferencias de redacción.
Responde solo con JSON: {"actividad": "<nombre original coincidente o vacío>", "descripcion": "<descripción original, adaptada si la propuesta lo requiere>"}.`,
		RenderAdditionals(catalog), proposed)
}

func matchParameterPrompt(p Parameter, keys []string) string {
	return fmt.Sprintf(`Analiza el parámetro técnico "%s" con opciones válidas "%s".

Evalúa si alguno de los siguientes valores clave del proyecto es un valor apropiado para este parámetro:

%s

Si hay una coincidencia clara responde con el valor clave exacto. Si no, responde únicamente con un guion (-).`,
		p.Name, p.Options, bullets(keys))
}

func parameterNamePrompt(key string) string {
	return fmt.Sprintf(`Dado el parámetro clave de obra "%s", sugiere un nombre técnico de una sola palabra, genérico y neutro (por ejemplo Color, Resistencia, Secado, Adherencia, Tipo), sin valores ni medidas.
Si no puedes, responde "Otros". Responde solo con la palabra.`, key)
}

func processSpecPrompt(title string, keys []string, adds []Additional, params []Parameter, base string) string {
	return fmt.Sprintf(`Genera una especificación técnica en Markdown tomando como base la especificación genérica de abajo, respetando su estructura, estilo y orden de secciones (Descripción, Materiales Herramientas y Equipo, Procedimiento, Medición y Forma de Pago).

Título del ítem: %s

Parámetros técnicos relevantes:
%s

Parámetros con valor asignado:
%s

Adicionales:
%s

Redacta el procedimiento en párrafos continuos, sin numeración, con negrilla en acciones clave, materiales y unidades. No agregues secciones nuevas.

Especificación genérica:

%s`,
		title, bullets(keys), assignedBullets(params), additionalBullets(adds), base)
}

func reviewParameterPrompt(doc string, p Parameter) string {
	return fmt.Sprintf(`Especificación técnica:

%s

Parámetro técnico: %s: %s

Evalúa si el parámetro es aplicable técnicamente al ítem descrito (materiales, procesos, resultados, requisitos funcionales o estéticos).
Responde solo con JSON: {"comentario": "<una oración>", "corresponde": "Sí|No|Parcialmente", "calificacion": <1-10>}.`,
		doc, p.Name, p.Assigned)
}

func reviewAdditionalPrompt(doc string, a Additional) string {
	return fmt.Sprintf(`Especificación técnica:

%s

Actividad adicional: %s

Evalúa si la actividad es un complemento aplicable técnicamente a la especificación.
Responde solo con JSON: {"comentario": "<una oración>", "corresponde": "Sí|No|Parcialmente"}.`,
		doc, describe(a))
}

func integrateParametersPrompt(doc string, accepted []ReviewItem) string {
	lines := make([]string, 0, len(accepted))
	for _, it := range accepted {
		lines = append(lines, it.Subject+": "+it.Value)
	}
	return integratePrompt(doc, "características técnicas adicionales", strings.Join(lines, "\n"))
}

func integrateAdditionalsPrompt(doc string, accepted []ReviewItem) string {
	lines := make([]string, 0, len(accepted))
	for _, it := range accepted {
		lines = append(lines, "- "+it.Subject)
	}
	return integratePrompt(doc, "actividades adicionales", strings.Join(lines, "\n"))
}

func integratePrompt(doc, what, items string) string {
	return fmt.Sprintf(`Edita la especificación técnica en Markdown para integrar de forma natural las %s indicadas, dentro de las secciones existentes.
Mantén las mismas secciones y su orden, no elimines contenido y no menciones que se trata de agregados. Responde solo con el documento completo.

%s a integrar:

%s

Especificación técnica base:

%s`, what, what, items, doc)
}

func mergeSpecsPrompt(title string, specs []string) string {
	var b strings.Builder
	for i, s := range specs {
		fmt.Fprintf(&b, "\n**Especificación %d:**\n%s\n", i+1, s)
	}
	return fmt.Sprintf(`Fusiona las siguientes especificaciones técnicas de actividades similares en una única especificación consolidada para "%s", sin repetir contenido y conservando todos los parámetros técnicos y adicionales.
%s`, title, b.String())
}

func contentPrompt(base string) string {
	return fmt.Sprintf(`A partir de la especificación base, redacta la descripción y el procedimiento, y extrae la tabla de parámetros técnicos y los adicionales.
Responde solo con JSON: {"descripcion": "...", "procedimiento": "...", "parametros_tecnicos": [{"name": "...", "options": "...", "default": "..."}], "adicionales": [{"activity": "...", "description": "..."}]}.

Especificación base:

%s`, base)
}

func resourcesPrompt(content Content, base string) string {
	return fmt.Sprintf(`Lista los materiales, el equipo, las herramientas y el EPP necesarios para ejecutar la actividad descrita.
Responde solo con JSON: {"materiales": "...", "equipo": "...", "herramientas": "...", "epp": "..."}.

Descripción:
%s

Procedimiento:
%s

Especificación base:
%s`, content.Description, content.Procedure, base)
}

func measurementPrompt(content Content) string {
	return fmt.Sprintf(`Redacta la sección "### Medición y Forma de Pago." con dos párrafos: la unidad de medida y su verificación, y las condiciones de pago. Usa negrita en términos clave.

Descripción:
%s

Procedimiento:
%s`, content.Description, content.Procedure)
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- (ninguno)"
	}
	return "- " + strings.Join(items, "\n- ")
}

func assignedBullets(params []Parameter) string {
	var lines []string
	for _, p := range params {
		if p.Assigned != "" && p.Assigned != "-" {
			lines = append(lines, p.Name+": "+p.Assigned)
		}
	}
	return bullets(lines)
}

func additionalBullets(adds []Additional) string {
	lines := make([]string, 0, len(adds))
	for _, a := range adds {
		lines = append(lines, describe(a))
	}
	return bullets(lines)
}

func describe(a Additional) string {
	if a.Description == "" || a.Description == a.Activity {
		return a.Activity
	}
	return a.Activity + ": " + a.Description
}
