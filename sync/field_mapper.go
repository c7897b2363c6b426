package sync

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Mappable provides a common interface for types that can be mapped.
type Mappable interface {
	GetFields() map[string]string
	SetField(key string, value string)
	DeleteField(key string)
}

// Properties is a flat HubSpot property payload.
type Properties map[string]string

func (p Properties) GetFields() map[string]string { return p }

func (p Properties) SetField(key string, value string) { p[key] = value }

func (p Properties) DeleteField(key string) { delete(p, key) }

// Keys returns the property names in sorted order.
func (p Properties) Keys() []string {
	result := make([]string, 0, len(p))
	for k := range p {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// isStaticValue reports whether a mapping path is a literal wrapped in backticks.
func isStaticValue(path string) bool {
	return len(path) >= 2 && path[0] == '`' && path[len(path)-1] == '`'
}

// MapFields maps fields from a source to a destination using the provided mappings.
// Each property takes the first candidate path that yields a usable value;
// properties with no usable value are left unset.
func MapFields(mappings FieldMappings, source Source, destination Mappable) {
	mapCategory(mappings.Strings, source, destination, normaliseString)
	mapCategory(mappings.Numbers, source, destination, normaliseNumber)
	mapCategory(mappings.Timestamps, source, destination, normaliseTimestamp)
}

func mapCategory(m map[string][]string, source Source, destination Mappable, normalise func(string) (string, bool)) {
	for field, paths := range m {
		destination.DeleteField(field)
		for _, path := range paths {
			var raw string
			if isStaticValue(path) {
				raw = path[1 : len(path)-1]
			} else {
				var exists bool
				if raw, exists = source.StringForPath(path); !exists {
					continue
				}
			}
			if value, ok := normalise(raw); ok {
				destination.SetField(field, value)
				break
			}
		}
	}
}

func normaliseString(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

func normaliseNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

func normaliseTimestamp(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.IsZero() || t.Year() <= 1 {
				return "", false
			}
			return t.UTC().Format(time.RFC3339), true
		}
	}
	return "", false
}

// FieldMapper builds the full candidate property set for one order.
type FieldMapper struct {
	Mappings FieldMappings
}

func (m FieldMapper) Map(source Source) Properties {
	result := Properties{}
	MapFields(m.Mappings, source, result)
	return result
}

// FilterToSchema keeps only the properties the destination schema recognises.
func FilterToSchema(props Properties, schema PropertySchema) Properties {
	result := make(Properties, len(props))
	for k, v := range props {
		if schema.Has(k) {
			result[k] = v
		}
	}
	return result
}

// UnsupportedProperties lists mapped property names the schema lacks, sorted.
func UnsupportedProperties(mappings FieldMappings, schema PropertySchema) []string {
	var result []string
	for _, k := range mappings.AllKeys() {
		if !schema.Has(k) {
			result = append(result, k)
		}
	}
	return result
}
