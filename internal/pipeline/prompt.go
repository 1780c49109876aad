package pipeline

import "strings"

// Prompt is the instruction payload sent to the extraction service.
type Prompt struct {
	// System frames the model as a transaction extractor returning pure JSON.
	System string
	// User carries the output schema, the business rules and the statement
	// text itself.
	User string
}

const systemInstruction = "Sos un extractor de transacciones bancarias. " +
	"Devolvé solo JSON puro sin explicaciones ni comentarios. " +
	"No uses bloques de código markdown."

// BuildPrompt constructs the deterministic instruction set for one statement.
// The rules below define the contract the response parser and the validator
// rely on; do not reword them without revisiting both.
func BuildPrompt(normalizedText string) Prompt {
	var b strings.Builder

	b.WriteString("Extraé transacciones del siguiente resumen de tarjeta de crédito. ")
	b.WriteString("Devolveme **únicamente** un JSON con esta estructura exacta:\n\n")
	b.WriteString("[\n")
	b.WriteString("  {\n")
	b.WriteString("    \"date\": \"YYYY-MM-DD\",\n")
	b.WriteString("    \"description\": \"Descripción del gasto\",\n")
	b.WriteString("    \"amount\": 1234.56,\n")
	b.WriteString("    \"currency\": \"ARS\",\n")
	b.WriteString("    \"category\": \"Categoría del gasto\"\n")
	b.WriteString("  }\n")
	b.WriteString("]\n\n")

	b.WriteString("Reglas:\n")
	b.WriteString("- No incluyas ningún texto extra, solo el array JSON.\n")
	b.WriteString("- El campo \"date\" debe tener el formato YYYY-MM-DD.\n")
	b.WriteString("- Ignora pagos y saldos anteriores.\n")
	b.WriteString("- El campo \"amount\" debe ser un número positivo.\n")
	b.WriteString("- La categoría para cada transacción debe ser una de las siguientes:\n")
	b.WriteString("  " + quotedCategoryList() + ".\n")
	b.WriteString("- En caso de no poder determinar la categoría, usá \"Otros\".\n")
	b.WriteString("- El campo \"currency\" debe ser \"ARS\" o \"USD\" según corresponda.\n")
	b.WriteString("- No incluyas \"comprobante\", \"IVA\", ni ninguna otra clave extra.\n")
	b.WriteString("- Si la fecha aparece sin año, asumí el año del resumen.\n")
	b.WriteString("- No uses bloques Markdown como ```json.\n")
	b.WriteString("- Devolvé **solamente** el array, sin envolverlo en objetos.\n\n")

	b.WriteString("Texto:\n")
	b.WriteString("\"\"\"")
	b.WriteString(normalizedText)
	b.WriteString("\"\"\"\n")

	return Prompt{
		System: systemInstruction,
		User:   b.String(),
	}
}

func quotedCategoryList() string {
	quoted := make([]string, len(Categories))
	for i, c := range Categories {
		quoted[i] = "\"" + c + "\""
	}
	return strings.Join(quoted, ", ")
}
