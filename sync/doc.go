package sync

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
)

// FieldDocRow represents a single row in the field mapping documentation.
type FieldDocRow struct {
	Property    string // HubSpot property name (e.g. "hs_order_name")
	Label       string // HubSpot label, or a suggested one when the schema lacks the property
	IsBuiltin   bool   // Whether this is a built-in HubSpot property
	FieldType   string // Text, Number or Date time
	SourcePaths string // Cin7 candidate paths in priority order
	Notes       string // Modifiers and static values
	Status      string // "ok" or "missing" when checked against a schema
}

// FieldDocumentation contains all field documentation for a mapping table.
type FieldDocumentation struct {
	ObjectType     string
	UniqueProperty string
	Rows           []FieldDocRow
}

// GenerateFieldDocumentation documents every mapped property. When schema is
// non-nil each row also records whether HubSpot currently recognises it.
func GenerateFieldDocumentation(config Config, schema PropertySchema) FieldDocumentation {
	doc := FieldDocumentation{
		ObjectType:     config.HubSpot.ObjectType,
		UniqueProperty: config.HubSpot.UniqueProperty,
		Rows:           []FieldDocRow{},
	}
	mappings := config.Mappings.Properties

	for _, property := range mappings.AllKeys() {
		var paths []string
		switch mappings.FieldType(property) {
		case "Text":
			paths = mappings.Strings[property]
		case "Number":
			paths = mappings.Numbers[property]
		case "Date time":
			paths = mappings.Timestamps[property]
		}
		doc.Rows = append(doc.Rows, createFieldDocRow(property, mappings.FieldType(property), paths, schema))
	}

	// the unique property is written from the identifier, not the table
	if config.HubSpot.UniqueProperty != "" {
		doc.Rows = append(doc.Rows, createFieldDocRow(config.HubSpot.UniqueProperty, "Text", config.Mappings.Identifier, schema))
	}

	// Built-in properties first, then alphabetically
	sort.SliceStable(doc.Rows, func(i, j int) bool {
		if doc.Rows[i].IsBuiltin != doc.Rows[j].IsBuiltin {
			return doc.Rows[i].IsBuiltin
		}
		return doc.Rows[i].Property < doc.Rows[j].Property
	})

	return doc
}

func createFieldDocRow(property string, fieldType string, paths []string, schema PropertySchema) FieldDocRow {
	row := FieldDocRow{
		Property:  property,
		IsBuiltin: strings.HasPrefix(property, "hs_"),
		FieldType: fieldType,
		Label:     SuggestedLabel(property),
	}

	var sources []string
	var notes []string
	seenNotes := make(map[string]bool)
	for _, p := range paths {
		if isStaticValue(p) {
			sources = append(sources, "(static)")
			note := fmt.Sprintf("Static value %q", p[1:len(p)-1])
			if !seenNotes[note] {
				seenNotes[note] = true
				notes = append(notes, note)
			}
			continue
		}
		sourcePath, modifiers := parseSourcePath(p)
		sources = append(sources, sourcePath)
		for _, m := range modifiers {
			note := formatModifierNote(m)
			if !seenNotes[note] {
				seenNotes[note] = true
				notes = append(notes, note)
			}
		}
	}
	row.SourcePaths = strings.Join(sources, " / ")
	row.Notes = strings.Join(notes, " | ")

	if schema != nil {
		if definition, ok := schema[property]; ok {
			row.Status = "ok"
			if definition.Label != "" {
				row.Label = definition.Label
			}
		} else {
			row.Status = "missing"
		}
	}
	return row
}

var labelAcronyms = map[string]string{
	"cin7": "CIN7",
	"id":   "ID",
	"url":  "URL",
}

// SuggestedLabel turns a property name into a HubSpot style label,
// e.g. "cin7_delivery_phone" -> "CIN7 Delivery Phone".
func SuggestedLabel(property string) string {
	name := strings.TrimPrefix(property, "hs_")
	var words []string
	for _, w := range strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		if acronym, ok := labelAcronyms[strings.ToLower(w)]; ok {
			words = append(words, acronym)
			continue
		}
		words = append(words, strcase.ToCamel(w))
	}
	return strings.Join(words, " ")
}

// parseSourcePath extracts the source path and modifiers from a mapping value.
// e.g., "DeliveryCountry|@countryName" -> ("DeliveryCountry", ["@countryName"])
func parseSourcePath(value string) (string, []string) {
	parts := strings.Split(value, "|")
	var modifiers []string
	for _, part := range parts[1:] {
		if strings.HasPrefix(part, "@") {
			modifiers = append(modifiers, part)
		}
	}
	return parts[0], modifiers
}

func formatModifierNote(modifier string) string {
	switch {
	case modifier == "@countryName":
		return "Normalised to country name"
	case modifier == "@phone":
		return fmt.Sprintf("Formatted as E.164 (default region %s)", DefaultPhoneRegion)
	case strings.HasPrefix(modifier, "@phone:"):
		return fmt.Sprintf("Formatted as E.164 (default region %s)", strings.TrimPrefix(modifier, "@phone:"))
	case modifier == "@trim":
		return "Whitespace trimmed"
	case modifier == "@money":
		return "Rounded to 2 decimal places"
	default:
		return fmt.Sprintf("Uses %s modifier", modifier)
	}
}

// FormatCSV formats the field documentation as CSV.
func (d FieldDocumentation) FormatCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{fmt.Sprintf("# HubSpot object: %s (upsert key %s)", d.ObjectType, d.UniqueProperty)}); err != nil {
		return "", err
	}
	headers := []string{"HubSpot Property", "Label", "Built-in", "Type", "Cin7 Source Paths", "Notes", "Schema Status"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}

	for _, row := range d.Rows {
		builtinMark := ""
		if row.IsBuiltin {
			builtinMark = "✓"
		}
		record := []string{row.Property, row.Label, builtinMark, row.FieldType, row.SourcePaths, row.Notes, row.Status}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	return buf.String(), nil
}
