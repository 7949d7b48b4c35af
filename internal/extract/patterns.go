package extract

import "github.com/Veraticus/parcel/internal/model"

const (
	moneyExpr   = `-?\$?\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:thousand|million|mm|k|m)\b)?`
	amountExpr  = `\$\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:thousand|million|mm|k|m)\b)?|\b\d[\d,]*(?:\.\d+)?\s?(?:thousand|million|k|m)\b`
	addressExpr = `\d{1,6}\s+(?:(?:\d+(?:st|nd|rd|th)|[A-Za-z][A-Za-z'.]*)\s+){0,4}?` +
		`(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl|Terrace|Ter|Parkway|Pkwy|Circle|Cir|Highway|Hwy)\b\.?` +
		`(?:\s*(?:#|Apt\.?|Unit|Suite)\s*[\w-]+)?`
	emailExpr = `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`
	phoneExpr = `(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`
	dateExpr  = `\d{4}-\d{1,2}-\d{1,2}|\d{1,2}/\d{1,2}/\d{2,4}|` +
		`(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}`
	labelGlue = `\s*(?:is|of|at|to|:|=)?\s*`
)

var (
	clientOnly      = []model.Entity{model.EntityClient}
	propertyOnly    = []model.Entity{model.EntityProperty}
	transactionOnly = []model.Entity{model.EntityTransaction}
)

// DefaultPatterns returns the built-in rules for the pattern extractor.
func DefaultPatterns() []Pattern {
	patterns := make([]Pattern, 0, 48)
	patterns = append(patterns, defaultActionPatterns()...)
	patterns = append(patterns, defaultEntityPatterns()...)
	patterns = append(patterns, defaultFieldPatterns()...)
	return patterns
}

func defaultActionPatterns() []Pattern {
	return []Pattern{
		{
			Name:     "Find",
			Type:     PatternTypeAction,
			Action:   model.ActionFind,
			Regex:    `\b(find|search|look\s*up|lookup|show|list|get|fetch|who\s+is|where\s+is)\b`,
			Priority: 90,
		},
		{
			Name:     "Update",
			Type:     PatternTypeAction,
			Action:   model.ActionUpdate,
			Regex:    `\b(update|change|edit|modify|correct|fix|set)\b`,
			Priority: 80,
		},
		{
			Name:     "Create",
			Type:     PatternTypeAction,
			Action:   model.ActionCreate,
			Regex:    `\b(create|add|new|register|insert|record|log|enter|save)\b`,
			Priority: 70,
		},
	}
}

func defaultEntityPatterns() []Pattern {
	return []Pattern{
		{
			Name:     "Transaction",
			Type:     PatternTypeEntity,
			Entity:   model.EntityTransaction,
			Regex:    `\b(transactions?|sales?|deals?|offers?|closings?|escrow|purchases?|contracts?)\b`,
			Priority: 90,
		},
		{
			Name:     "Property",
			Type:     PatternTypeEntity,
			Entity:   model.EntityProperty,
			Regex:    `\b(property|properties|houses?|homes?|listings?|condos?|apartments?|townhouses?|lots?)\b`,
			Priority: 80,
		},
		{
			Name:     "Client",
			Type:     PatternTypeEntity,
			Entity:   model.EntityClient,
			Regex:    `\b(clients?|customers?|buyers?|sellers?|contacts?|leads?)\b`,
			Priority: 70,
		},
	}
}

func defaultFieldPatterns() []Pattern {
	return []Pattern{
		// Explicitly labeled values win over shape matches.
		{
			Name:     "Labeled email",
			Type:     PatternTypeField,
			Regex:    `(?:^|[\s,;(])e-?mail(?:\s+address)?` + labelGlue + `([^\s,;]+)`,
			Fields:   []string{model.FieldEmail},
			Entities: clientOnly,
			Priority: 100,
		},
		{
			Name:     "Labeled client email",
			Type:     PatternTypeField,
			Regex:    `(?:^|[\s,;(])(?:(?:client|buyer)\s+)?e-?mail` + labelGlue + `([^\s,;]+)`,
			Fields:   []string{model.FieldClientEmail},
			Entities: transactionOnly,
			Priority: 100,
		},
		{
			Name:     "Labeled phone",
			Type:     PatternTypeField,
			Regex:    `\b(?:phone|cell|mobile|tel)(?:\s+number)?` + labelGlue + `(\+?\(?\d[\d\s().\-]{3,}\d)`,
			Fields:   []string{model.FieldPhone},
			Entities: clientOnly,
			Priority: 100,
		},
		{
			Name:     "Labeled first name",
			Type:     PatternTypeField,
			Regex:    `\bfirst\s*name` + labelGlue + `([A-Za-z'\-]+)`,
			Fields:   []string{model.FieldFirstName},
			Entities: clientOnly,
			Priority: 100,
		},
		{
			Name:     "Labeled last name",
			Type:     PatternTypeField,
			Regex:    `\b(?:last|sur)\s*name` + labelGlue + `([A-Za-z'\-]+)`,
			Fields:   []string{model.FieldLastName},
			Entities: clientOnly,
			Priority: 100,
		},
		{
			Name:     "Deposit",
			Type:     PatternTypeField,
			Regex:    `\b(?:deposit|earnest\s+money|emd)` + labelGlue + `(` + moneyExpr + `)`,
			Fields:   []string{model.FieldDeposit},
			Entities: transactionOnly,
			Priority: 100,
		},
		{
			Name:     "Deposit suffix",
			Type:     PatternTypeField,
			Regex:    `(` + moneyExpr + `)\s+(?:deposit|earnest)`,
			Fields:   []string{model.FieldDeposit},
			Entities: transactionOnly,
			Priority: 99,
		},
		{
			Name:     "Purchase price",
			Type:     PatternTypeField,
			Regex:    `\b(?:purchase\s+price|sale\s+price|sold\s+for|price)` + labelGlue + `(` + moneyExpr + `)`,
			Fields:   []string{model.FieldPurchasePrice},
			Entities: transactionOnly,
			Priority: 95,
		},
		{
			Name:     "Offer amount",
			Type:     PatternTypeField,
			Regex:    `\b(?:offer(?:ed)?|for)` + labelGlue + `(` + amountExpr + `)`,
			Fields:   []string{model.FieldPurchasePrice},
			Entities: transactionOnly,
			Priority: 94,
		},
		{
			Name:     "Listing price",
			Type:     PatternTypeField,
			Regex:    `\b(?:price|asking|list\s+price)` + labelGlue + `(` + moneyExpr + `)`,
			Fields:   []string{model.FieldPrice},
			Entities: propertyOnly,
			Priority: 95,
		},
		{
			Name:     "Listed amount",
			Type:     PatternTypeField,
			Regex:    `\blisted\s+(?:at|for)\s*(` + amountExpr + `)`,
			Fields:   []string{model.FieldPrice},
			Entities: propertyOnly,
			Priority: 94,
		},
		{
			Name:     "Closing date",
			Type:     PatternTypeField,
			Regex:    `\bclos(?:e|es|ing)(?:\s+date)?(?:\s+(?:on|of|is|by))?\s*:?\s*(` + dateExpr + `)`,
			Fields:   []string{model.FieldClosingDate},
			Entities: transactionOnly,
			Priority: 95,
		},
		{
			Name:     "Status",
			Type:     PatternTypeField,
			Regex:    `\bstatus` + labelGlue + `([a-z]+(?:[ _]contract)?)\b`,
			Fields:   []string{model.FieldStatus},
			Entities: transactionOnly,
			Priority: 95,
		},
		{
			Name:     "Notes",
			Type:     PatternTypeField,
			Regex:    `(?m)\bnotes?\s*[:=]\s*(.+)$`,
			Fields:   []string{model.FieldNotes},
			Entities: clientOnly,
			Priority: 95,
		},
		{
			Name:     "Labeled zip",
			Type:     PatternTypeField,
			Regex:    `\bzip(?:\s*code)?` + labelGlue + `(\d{5}(?:-\d{4})?)\b`,
			Fields:   []string{model.FieldZip},
			Entities: propertyOnly,
			Priority: 95,
		},
		{
			Name:     "Labeled state",
			Type:     PatternTypeField,
			Regex:    `\bstate` + labelGlue + `([A-Za-z]{2})\b`,
			Fields:   []string{model.FieldState},
			Entities: propertyOnly,
			Priority: 95,
		},

		// Shape matches.
		{
			Name:     "Address",
			Type:     PatternTypeField,
			Regex:    `\b(` + addressExpr + `)`,
			Fields:   []string{model.FieldAddress},
			Entities: propertyOnly,
			Priority: 90,
		},
		{
			Name:     "Property address",
			Type:     PatternTypeField,
			Regex:    `\b(` + addressExpr + `)`,
			Fields:   []string{model.FieldPropertyAddress},
			Entities: transactionOnly,
			Priority: 90,
		},
		{
			Name:     "City state zip",
			Type:     PatternTypeField,
			Regex:    `,\s*([A-Za-z][A-Za-z .]*?),\s*([A-Za-z]{2})\b(?:\s+(\d{5}(?:-\d{4})?))?`,
			Fields:   []string{model.FieldCity, model.FieldState, model.FieldZip},
			Entities: propertyOnly,
			Priority: 85,
		},
		{
			Name:     "Record id",
			Type:     PatternTypeField,
			Regex:    `(?:#|\b(?:id|record)\s*(?:#|:)?\s*)(\d+)\b`,
			Fields:   []string{model.FieldTarget},
			Priority: 80,
		},
		{
			Name:          "Full name after noun",
			Type:          PatternTypeField,
			Regex:         `\b(?i:client|customer|buyer|seller|contact|lead|named|called|for)[ \t]+(?:(?i:named|called)[ \t]+)?([A-Z][a-zA-Z'\-]+)[ \t]+([A-Z][a-zA-Z'\-]+)\b`,
			Fields:        []string{model.FieldFirstName, model.FieldLastName},
			Entities:      clientOnly,
			Priority:      75,
			CaseSensitive: true,
		},
		{
			Name:          "Single name",
			Type:          PatternTypeField,
			Regex:         `\b(?i:client|customer|named|called)[ \t]+([A-Z][a-zA-Z'\-]+)\b`,
			Fields:        []string{model.FieldFirstName},
			Entities:      clientOnly,
			Priority:      70,
			CaseSensitive: true,
		},
		{
			Name:     "Email",
			Type:     PatternTypeField,
			Regex:    `\b(` + emailExpr + `)`,
			Fields:   []string{model.FieldEmail},
			Entities: clientOnly,
			Priority: 70,
		},
		{
			Name:     "Client email",
			Type:     PatternTypeField,
			Regex:    `\b(` + emailExpr + `)`,
			Fields:   []string{model.FieldClientEmail},
			Entities: transactionOnly,
			Priority: 70,
		},
		{
			Name:     "Phone",
			Type:     PatternTypeField,
			Regex:    `(` + phoneExpr + `)\b`,
			Fields:   []string{model.FieldPhone},
			Entities: clientOnly,
			Priority: 70,
		},
		{
			Name:     "Bedrooms",
			Type:     PatternTypeField,
			Regex:    `\b(\d{1,3})\s*-?\s*(?:bed(?:room)?s?|br|bd)\b`,
			Fields:   []string{model.FieldBedrooms},
			Entities: propertyOnly,
			Priority: 70,
		},
		{
			Name:     "Bathrooms",
			Type:     PatternTypeField,
			Regex:    `\b(\d{1,3}(?:\.\d)?)\s*-?\s*(?:bath(?:room)?s?|ba)\b`,
			Fields:   []string{model.FieldBathrooms},
			Entities: propertyOnly,
			Priority: 70,
		},
		{
			Name:     "Amount",
			Type:     PatternTypeField,
			Regex:    `(` + amountExpr + `)`,
			Fields:   []string{model.FieldPurchasePrice},
			Entities: transactionOnly,
			Priority: 60,
		},
		{
			Name:     "Price",
			Type:     PatternTypeField,
			Regex:    `(` + amountExpr + `)`,
			Fields:   []string{model.FieldPrice},
			Entities: propertyOnly,
			Priority: 60,
		},
	}
}
