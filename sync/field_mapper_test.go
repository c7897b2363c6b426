package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testFieldMappings = FieldMappings{
	Strings: map[string][]string{
		"hs_order_name":               {"Reference", "reference"},
		"hs_shipping_address_city":    {"DeliveryCity"},
		"hs_shipping_address_country": {"DeliveryCountry|@countryName"},
		"cin7_delivery_phone":         {"DeliveryPhone|@phone"},
		"cin7_customer_email":         {"Email"},
		"cin7_source_system":          {"`Cin7`"},
	},
	Numbers: map[string][]string{
		"hs_total_price":   {"Total", "total"},
		"hs_shipping_cost": {"FreightTotal"},
	},
	Timestamps: map[string][]string{
		"cin7_invoice_date":  {"InvoiceDate"},
		"cin7_modified_date": {"ModifiedDate"},
	},
}

func TestFieldMapper_Map(t *testing.T) {
	source := NewSource(`{
		"Id": 101,
		"Reference": "",
		"reference": "SO-101",
		"DeliveryCity": "  Melbourne ",
		"DeliveryCountry": "AU",
		"DeliveryPhone": "0412 345 678",
		"Email": null,
		"total": "1250.50",
		"FreightTotal": 0,
		"InvoiceDate": "2024-03-01T10:15:00",
		"ModifiedDate": "not a date"
	}`)

	props := FieldMapper{Mappings: testFieldMappings}.Map(source)

	assert.Equal(t, Properties{
		"hs_order_name":               "SO-101",
		"hs_shipping_address_city":    "Melbourne",
		"hs_shipping_address_country": "Australia",
		"cin7_delivery_phone":         "+61412345678",
		"cin7_source_system":          "Cin7",
		"hs_total_price":              "1250.5",
		"hs_shipping_cost":            "0",
		"cin7_invoice_date":           "2024-03-01T10:15:00Z",
	}, props)
}

func TestFieldMapper_OmitsAbsentNullAndEmpty(t *testing.T) {
	source := NewSource(`{"Reference": "   ", "DeliveryCity": null, "Total": ""}`)

	props := FieldMapper{Mappings: testFieldMappings}.Map(source)

	for _, k := range []string{"hs_order_name", "hs_shipping_address_city", "hs_total_price", "cin7_customer_email", "cin7_delivery_phone", "hs_shipping_address_country"} {
		assert.NotContains(t, props, k)
	}
	// static values do not depend on the record
	assert.Equal(t, "Cin7", props["cin7_source_system"])
}

func TestFilterToSchema(t *testing.T) {
	schema := PropertySchema{
		"hs_order_name":            {Name: "hs_order_name"},
		"hs_shipping_address_city": {Name: "hs_shipping_address_city"},
		"cin7_order_id":            {Name: "cin7_order_id", HasUniqueValue: true},
	}
	props := Properties{
		"hs_order_name":             "SO-1",
		"hs_shipping_address_city":  "Sydney",
		"hs_shipping_address_state": "NSW",
	}

	filtered := FilterToSchema(props, schema)

	assert.Equal(t, Properties{"hs_order_name": "SO-1", "hs_shipping_address_city": "Sydney"}, filtered)
	assert.Contains(t, props, "hs_shipping_address_state", "input is not modified")
}

func TestUnsupportedProperties(t *testing.T) {
	schema := PropertySchema{
		"hs_order_name":     {},
		"hs_total_price":    {},
		"cin7_invoice_date": {},
	}

	assert.Equal(t, []string{
		"cin7_customer_email",
		"cin7_delivery_phone",
		"cin7_modified_date",
		"cin7_source_system",
		"hs_shipping_address_city",
		"hs_shipping_address_country",
		"hs_shipping_cost",
	}, UnsupportedProperties(testFieldMappings, schema))
}

func TestModifiers(t *testing.T) {
	source := NewSource(`{"a": "NZ", "b": "Narnia", "c": "+44 20 7946 0958", "d": "not a phone", "e": " x ", "f": 10.456}`)
	tests := []struct {
		path string
		want string
	}{
		{"a|@countryName", "New Zealand"},
		{"b|@countryName", "Narnia"},
		{"c|@phone", "+442079460958"},
		{"d|@phone", "not a phone"},
		{"e|@trim", "x"},
		{"f|@money", "10.46"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := source.StringForPath(tt.path)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := source.StringForPath("missing|@countryName")
	assert.False(t, ok)
}
