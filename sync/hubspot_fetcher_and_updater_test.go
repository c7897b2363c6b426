package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testHubSpot(url string) HubSpotFetcherAndUpdater {
	cfg := Config{HubSpot: HubSpotSettings{
		BaseURL:        url,
		Token:          "pat-token",
		ObjectType:     "orders",
		UniqueProperty: "cin7_order_id",
		BatchSize:      100,
		WriteMode:      WriteModeBatch,
	}}
	return HubSpotFetcherAndUpdater{SyncContext: NewSyncContext(cfg, nil)}
}

func TestHubSpot_FetchPropertySchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/crm/v3/properties/orders", r.URL.Path)
		assert.Equal(t, "Bearer pat-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"results":[
			{"name":"hs_order_name","label":"Name","type":"string","fieldType":"text"},
			{"name":"cin7_order_id","label":"Cin7 Order ID","type":"string","fieldType":"text","hasUniqueValue":true}
		]}`)
	}))
	defer srv.Close()

	schema, err := testHubSpot(srv.URL).FetchPropertySchema(context.Background())

	require.NoError(t, err)
	assert.Len(t, schema, 2)
	assert.True(t, schema.Has("hs_order_name"))
	assert.True(t, schema["cin7_order_id"].HasUniqueValue)
	assert.False(t, schema.Has("hs_shipping_address_state"))
}

func TestHubSpot_FetchPropertySchemaFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"status":"error","message":"Authentication credentials not found.","correlationId":"abc-123","category":"INVALID_AUTHENTICATION"}`)
	}))
	defer srv.Close()

	_, err := testHubSpot(srv.URL).FetchPropertySchema(context.Background())

	require.ErrorIs(t, err, ErrSchemaFetch)
	assert.Contains(t, err.Error(), "INVALID_AUTHENTICATION")
	assert.Contains(t, err.Error(), "abc-123")
}

func TestHubSpot_SearchByUniqueProperty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/orders/search", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body := gjson.ParseBytes(b)
		assert.Equal(t, "cin7_order_id", body.Get("filterGroups.0.filters.0.propertyName").String())
		assert.Equal(t, "EQ", body.Get("filterGroups.0.filters.0.operator").String())
		assert.Equal(t, int64(1), body.Get("limit").Int())

		if body.Get("filterGroups.0.filters.0.value").String() == `42 "quoted"` {
			fmt.Fprint(w, `{"total":1,"results":[{"id":"9001","properties":{"cin7_order_id":"42 \"quoted\""}}]}`)
			return
		}
		fmt.Fprint(w, `{"total":0,"results":[]}`)
	}))
	defer srv.Close()
	h := testHubSpot(srv.URL)

	found, err := h.SearchByUniqueProperty(context.Background(), `42 "quoted"`)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "9001", found.ID)
	assert.Equal(t, `42 "quoted"`, found.Properties["cin7_order_id"])

	missing, err := h.SearchByUniqueProperty(context.Background(), "43")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHubSpot_CreateAndUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Properties map[string]string `json:"properties"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/orders":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":"1","properties":{"hs_order_name":%q}}`, req.Properties["hs_order_name"])
		case r.Method == http.MethodPatch && r.URL.Path == "/crm/v3/objects/orders/77":
			fmt.Fprintf(w, `{"id":"77","properties":{"hs_order_name":%q}}`, req.Properties["hs_order_name"])
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status":"error","message":"not found","category":"OBJECT_NOT_FOUND"}`)
		}
	}))
	defer srv.Close()
	h := testHubSpot(srv.URL)

	created, err := h.CreateObject(context.Background(), Properties{"hs_order_name": "SO-1"})
	require.NoError(t, err)
	assert.Equal(t, "1", created.ID)
	assert.Equal(t, "SO-1", created.Properties["hs_order_name"])

	updated, err := h.UpdateObject(context.Background(), "77", Properties{"hs_order_name": "SO-2"})
	require.NoError(t, err)
	assert.Equal(t, "77", updated.ID)

	_, err = h.UpdateObject(context.Background(), "78", Properties{"hs_order_name": "SO-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OBJECT_NOT_FOUND")
}

func TestHubSpot_BatchUpsertPartialSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/orders/batch/upsert", r.URL.Path)
		var req BatchUpsertRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if !assert.Len(t, req.Inputs, 2) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "cin7_order_id", req.Inputs[0].IDProperty)
		assert.Equal(t, "1", req.Inputs[0].ID)

		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `{"status":"COMPLETE","results":[{"id":"501","properties":{},"new":true}],
			"numErrors":1,"errors":[{"status":"error","category":"VALIDATION_ERROR","message":"Property values were not valid"}]}`)
	}))
	defer srv.Close()

	resp, err := testHubSpot(srv.URL).BatchUpsert(context.Background(), []UpsertInput{
		{IDProperty: "cin7_order_id", ID: "1", Properties: Properties{"hs_order_name": "SO-1"}},
		{IDProperty: "cin7_order_id", ID: "2", Properties: Properties{"hs_total_price": "abc"}},
	})

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.NotNil(t, resp.Results[0].New)
	assert.True(t, *resp.Results[0].New)
	assert.Equal(t, 1, resp.NumErrors)
	assert.Equal(t, "VALIDATION_ERROR", resp.Errors[0].Category)
}

func TestHubSpot_BatchUpsertRejectsOversizedBatch(t *testing.T) {
	inputs := make([]UpsertInput, MaxBatchSize+1)
	_, err := testHubSpot("http://127.0.0.1:1").BatchUpsert(context.Background(), inputs)
	assert.Error(t, err)
}
