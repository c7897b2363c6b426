package sync

import (
	"fmt"
	"strings"
)

// HubSpotError is the standard HubSpot error body.
type HubSpotError struct {
	Status        string                   `json:"status"`
	Message       string                   `json:"message"`
	CorrelationID string                   `json:"correlationId"`
	Category      string                   `json:"category"`
	Errors        []map[string]interface{} `json:"errors,omitempty"`
}

func (e HubSpotError) IsZero() bool {
	return e.Message == "" && e.Category == "" && e.Status == ""
}

func (e HubSpotError) String() string {
	var parts []string
	if e.Category != "" {
		parts = append(parts, e.Category)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.CorrelationID != "" {
		parts = append(parts, "correlationId="+e.CorrelationID)
	}
	return strings.Join(parts, ": ")
}

// wrap folds the decoded error body into a transport error.
func (e HubSpotError) wrap(op string, err error) error {
	if e.IsZero() {
		return fmt.Errorf("hubspot %s: %w", op, err)
	}
	return fmt.Errorf("hubspot %s: %w (%s)", op, err, e)
}

type PropertyDefinition struct {
	Name           string `json:"name"`
	Label          string `json:"label"`
	Type           string `json:"type"`
	FieldType      string `json:"fieldType"`
	HasUniqueValue bool   `json:"hasUniqueValue"`
}

// PropertySchema is the set of properties HubSpot recognises for an object type.
type PropertySchema map[string]PropertyDefinition

func (s PropertySchema) Has(name string) bool {
	_, ok := s[name]
	return ok
}

type HubSpotObject struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

type UpsertInput struct {
	IDProperty string     `json:"idProperty"`
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
}

type BatchUpsertRequest struct {
	Inputs []UpsertInput `json:"inputs"`
}

type BatchUpsertResult struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	New        *bool             `json:"new,omitempty"`
}

type BatchError struct {
	Status   string                 `json:"status"`
	Category string                 `json:"category"`
	Message  string                 `json:"message"`
	Context  map[string][]string    `json:"context,omitempty"`
	Links    map[string]interface{} `json:"links,omitempty"`
}

type BatchUpsertResponse struct {
	Status    string              `json:"status"`
	Results   []BatchUpsertResult `json:"results"`
	NumErrors int                 `json:"numErrors"`
	Errors    []BatchError        `json:"errors"`
}
