package extract

import (
	"fmt"
	"strings"

	"github.com/Veraticus/parcel/internal/model"
)

const systemPromptHeader = `You convert requests from a real-estate agent into one record operation.
Your output must be ONLY a single JSON object. Do not include any other text, prose, or markdown.

Reply format:
{"operation": "<kind>", "confidence": <0..1>, "fields": {"<field>": "<value>"}, "field_confidence": {"<field>": <0..1>}}

Rules:
- "operation" is exactly one of the kinds listed below.
- Copy values as written; do not reformat phone numbers, prices or dates.
- Put a record id or identifying email/address for update and find requests in "target".
- Omit fields the text does not mention. Never invent values.
- Report field_confidence for any field you had to guess.`

// buildSystemPrompt lists every kind and the fields its entity accepts.
func buildSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString(systemPromptHeader)
	sb.WriteString("\n\nKinds and fields:\n")
	for _, e := range []model.Entity{model.EntityClient, model.EntityProperty, model.EntityTransaction} {
		kinds := make([]string, 0, 3)
		for _, a := range []model.Action{model.ActionCreate, model.ActionUpdate, model.ActionFind} {
			kinds = append(kinds, string(model.NewOperationKind(a, e)))
		}
		fmt.Fprintf(&sb, "- %s: %s\n", strings.Join(kinds, ", "), strings.Join(model.FieldNames(e), ", "))
	}
	return sb.String()
}

// buildMessages appends the new text to prior conversation.
func buildMessages(text string, history []model.Exchange) []model.Exchange {
	messages := make([]model.Exchange, 0, len(history)+1)
	messages = append(messages, history...)
	return append(messages, model.Exchange{Role: "user", Content: text})
}
