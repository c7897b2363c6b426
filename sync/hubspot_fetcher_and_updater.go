package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

var (
	ErrSchemaFetch           = errors.New("hubspot property schema fetch failed")
	ErrUniquePropertyMissing = errors.New("unique identifier property missing from hubspot schema")
)

// HubSpotObjects is the part of the HubSpot CRM API the writers use.
type HubSpotObjects interface {
	SearchByUniqueProperty(ctx context.Context, value string) (*HubSpotObject, error)
	CreateObject(ctx context.Context, props Properties) (HubSpotObject, error)
	UpdateObject(ctx context.Context, id string, props Properties) (HubSpotObject, error)
	BatchUpsert(ctx context.Context, inputs []UpsertInput) (BatchUpsertResponse, error)
}

// HubSpotFetcherAndUpdater handles all HubSpot API operations.
// It embeds *SyncContext for shared sync configuration.
type HubSpotFetcherAndUpdater struct {
	*SyncContext
}

// HubSpotAPIBuilder returns a new requests.Builder configured for the HubSpot API.
func (h HubSpotFetcherAndUpdater) HubSpotAPIBuilder() *requests.Builder {
	result := requests.
		URL(h.Config.HubSpot.BaseURL).
		Client(&http.Client{Timeout: HTTPRequestTimeout}).
		Header("User-Agent", UserAgent).
		Bearer(h.Config.HubSpot.Token)
	if h.RecordRequests {
		result = result.Transport(requests.Record(nil, RecordingDir+"/hubspot"))
	}
	return result
}

func (h HubSpotFetcherAndUpdater) objectType() string {
	return h.Config.HubSpot.ObjectType
}

// FetchPropertySchema reads the live property list for the configured object type.
func (h HubSpotFetcherAndUpdater) FetchPropertySchema(ctx context.Context) (PropertySchema, error) {
	response := struct {
		Results []PropertyDefinition `json:"results"`
	}{}
	var hubspotError HubSpotError
	err := h.HubSpotAPIBuilder().
		Pathf("/crm/v3/properties/%s", h.objectType()).
		ToJSON(&response).
		ErrorJSON(&hubspotError).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaFetch, hubspotError.wrap("properties", err))
	}
	result := make(PropertySchema, len(response.Results))
	for _, p := range response.Results {
		if p.Name != "" {
			result[p.Name] = p
		}
	}
	h.log().Info("fetched hubspot property schema", zap.String("objectType", h.Config.HubSpot.ObjectType), zap.Int("properties", len(result)))
	return result, nil
}

// SearchRequestBody builds an equality search on the unique property, limit 1.
func (h HubSpotFetcherAndUpdater) SearchRequestBody(value string) ([]byte, error) {
	body := []byte(`{"filterGroups":[{"filters":[{"operator":"EQ"}]}],"limit":1}`)
	body, err := sjson.SetBytes(body, "filterGroups.0.filters.0.propertyName", h.Config.HubSpot.UniqueProperty)
	if err != nil {
		return nil, err
	}
	body, err = sjson.SetBytes(body, "filterGroups.0.filters.0.value", value)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "properties", []string{h.Config.HubSpot.UniqueProperty})
}

// SearchByUniqueProperty returns the object holding value in the unique
// property, or nil when there is none.
func (h HubSpotFetcherAndUpdater) SearchByUniqueProperty(ctx context.Context, value string) (*HubSpotObject, error) {
	body, err := h.SearchRequestBody(value)
	if err != nil {
		return nil, fmt.Errorf("failed to build search body %w", err)
	}
	var response string
	var hubspotError HubSpotError
	err = h.HubSpotAPIBuilder().
		Pathf("/crm/v3/objects/%s/search", h.objectType()).
		Post().
		ContentType("application/json").
		BodyBytes(body).
		ToString(&response).
		ErrorJSON(&hubspotError).
		Fetch(ctx)
	if err != nil {
		return nil, hubspotError.wrap("search", err)
	}
	first := gjson.Get(response, "results.0")
	if !first.Exists() {
		return nil, nil
	}
	result := HubSpotObject{
		ID:         first.Get("id").String(),
		Properties: make(map[string]string),
	}
	first.Get("properties").ForEach(func(k, v gjson.Result) bool {
		result.Properties[k.String()] = v.String()
		return true
	})
	return &result, nil
}

func (h HubSpotFetcherAndUpdater) CreateObject(ctx context.Context, props Properties) (HubSpotObject, error) {
	var result HubSpotObject
	var hubspotError HubSpotError
	req := struct {
		Properties Properties `json:"properties"`
	}{Properties: props}
	err := h.HubSpotAPIBuilder().
		Pathf("/crm/v3/objects/%s", h.objectType()).
		BodyJSON(&req).
		ToJSON(&result).
		ErrorJSON(&hubspotError).
		Fetch(ctx)
	if err != nil {
		return result, hubspotError.wrap("create", err)
	}
	return result, nil
}

func (h HubSpotFetcherAndUpdater) UpdateObject(ctx context.Context, id string, props Properties) (HubSpotObject, error) {
	var result HubSpotObject
	var hubspotError HubSpotError
	req := struct {
		Properties Properties `json:"properties"`
	}{Properties: props}
	err := h.HubSpotAPIBuilder().
		Pathf("/crm/v3/objects/%s/%s", h.objectType(), id).
		Patch().
		BodyJSON(&req).
		ToJSON(&result).
		ErrorJSON(&hubspotError).
		Fetch(ctx)
	if err != nil {
		return result, hubspotError.wrap("update "+id, err)
	}
	return result, nil
}

// BatchUpsert creates or updates each input keyed on its idProperty.
// A 207 response is returned without error; callers read NumErrors and Errors.
func (h HubSpotFetcherAndUpdater) BatchUpsert(ctx context.Context, inputs []UpsertInput) (BatchUpsertResponse, error) {
	var result BatchUpsertResponse
	var hubspotError HubSpotError
	if len(inputs) > MaxBatchSize {
		return result, fmt.Errorf("hubspot batch upsert: %d inputs exceeds limit of %d", len(inputs), MaxBatchSize)
	}
	err := h.HubSpotAPIBuilder().
		Pathf("/crm/v3/objects/%s/batch/upsert", h.objectType()).
		BodyJSON(&BatchUpsertRequest{Inputs: inputs}).
		AddValidator(requests.ValidatorHandler(
			requests.CheckStatus(http.StatusOK, http.StatusCreated, http.StatusMultiStatus),
			requests.ToJSON(&hubspotError),
		)).
		ToJSON(&result).
		Fetch(ctx)
	if err != nil {
		return result, hubspotError.wrap("batch upsert of "+strconv.Itoa(len(inputs)), err)
	}
	return result, nil
}
