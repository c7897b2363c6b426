package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var testRunTime = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

// twoPageCin7 serves 250 orders then 10, then an empty page.
func twoPageCin7(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, orderPage(1, 250))
		case "2":
			fmt.Fprintf(w, `{"items":%s}`, orderPage(251, 10))
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
}

type hubSpotRecorder struct {
	schema  []string
	inputs  []UpsertInput
	created []map[string]string
	failID  string
}

func (h *hubSpotRecorder) server(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/crm/v3/properties/orders":
			var results []string
			for _, name := range h.schema {
				results = append(results, fmt.Sprintf(`{"name":%q,"hasUniqueValue":%t}`, name, name == "cin7_order_id"))
			}
			fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(results, ","))
		case r.URL.Path == "/crm/v3/objects/orders/batch/upsert":
			var req BatchUpsertRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			h.inputs = append(h.inputs, req.Inputs...)
			var results []string
			for _, in := range req.Inputs {
				results = append(results, fmt.Sprintf(`{"id":"hs-%s","properties":{},"new":true}`, in.ID))
			}
			fmt.Fprintf(w, `{"status":"COMPLETE","results":[%s]}`, strings.Join(results, ","))
		case r.URL.Path == "/crm/v3/objects/orders/search":
			fmt.Fprint(w, `{"total":0,"results":[]}`)
		case r.URL.Path == "/crm/v3/objects/orders" && r.Method == http.MethodPost:
			b, _ := io.ReadAll(r.Body)
			props := map[string]string{}
			gjson.GetBytes(b, "properties").ForEach(func(k, v gjson.Result) bool {
				props[k.String()] = v.String()
				return true
			})
			if props["cin7_order_id"] == h.failID {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"status":"error","message":"Property values were not valid","category":"VALIDATION_ERROR"}`)
				return
			}
			h.created = append(h.created, props)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":"hs-%s"}`, props["cin7_order_id"])
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status":"error","message":"no route"}`)
		}
	}))
}

func testSyncer(t *testing.T, cin7URL, hubspotURL string, env map[string]string) Syncer {
	lookup := requiredEnv()
	lookup["CIN7_BASE_URL"] = cin7URL
	lookup["HUBSPOT_BASE_URL"] = hubspotURL
	for k, v := range env {
		lookup[k] = v
	}
	cfg, err := LoadConfig(MapLookup(lookup))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	sc := NewSyncContext(cfg, nil)
	sc.Now = func() time.Time { return testRunTime }
	return NewSyncer(sc)
}

func TestSyncer_BatchUpsertEndToEnd(t *testing.T) {
	cin7 := twoPageCin7(t)
	defer cin7.Close()
	recorder := &hubSpotRecorder{schema: []string{
		"cin7_order_id", "hs_order_name", "hs_total_price",
		"hs_shipping_address_street", "hs_shipping_address_city",
	}}
	hubspot := recorder.server(t)
	defer hubspot.Close()

	summary, err := testSyncer(t, cin7.URL, hubspot.URL, nil).Run(context.Background())

	require.NoError(t, err)
	assert.True(t, summary.OK)
	assert.Equal(t, 260, summary.Cin7Count)
	assert.Equal(t, 260, summary.Prepared)
	assert.Equal(t, 260, summary.Upserted)
	assert.Equal(t, 260, summary.Created)
	assert.Equal(t, 0, summary.ErrorsCount)
	assert.Equal(t, "2024-05-08T00:00:00Z", summary.Since)
	assert.Equal(t, WriteModeBatch, summary.WriteMode)
	assert.NotEmpty(t, summary.RunID)
	assert.Contains(t, summary.UnsupportedProperties, "hs_shipping_address_state")

	require.Len(t, recorder.inputs, 260)
	for _, in := range recorder.inputs {
		assert.Equal(t, "cin7_order_id", in.IDProperty)
		assert.Equal(t, in.ID, in.Properties["cin7_order_id"])
		assert.NotContains(t, in.Properties, "hs_shipping_address_state")
		assert.Contains(t, in.Properties, "hs_shipping_address_street")
		assert.Contains(t, in.Properties, "hs_shipping_address_city")
	}
	assert.Equal(t, "SO-7", recorder.inputs[6].Properties["hs_order_name"])
	assert.Equal(t, "7.5", recorder.inputs[6].Properties["hs_total_price"])

	b, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.Equal(t, int64(260), gjson.GetBytes(b, "cin7Count").Int())
	assert.True(t, gjson.GetBytes(b, "ok").Bool())
}

func TestSyncer_OneFailedWriteIsCollected(t *testing.T) {
	cin7 := twoPageCin7(t)
	defer cin7.Close()
	recorder := &hubSpotRecorder{schema: []string{"cin7_order_id", "hs_order_name"}, failID: "42"}
	hubspot := recorder.server(t)
	defer hubspot.Close()

	summary, err := testSyncer(t, cin7.URL, hubspot.URL, map[string]string{"HUBSPOT_WRITE_MODE": "search"}).Run(context.Background())

	require.NoError(t, err)
	assert.True(t, summary.OK)
	assert.Equal(t, 260, summary.Cin7Count)
	assert.Equal(t, 259, summary.Created)
	assert.Equal(t, 1, summary.ErrorsCount)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "order 42")
	assert.Contains(t, summary.Errors[0], "Property values were not valid")
	assert.Len(t, recorder.created, 259)
}

func TestSyncer_MissingUniquePropertyIsFatal(t *testing.T) {
	cin7 := twoPageCin7(t)
	defer cin7.Close()
	recorder := &hubSpotRecorder{schema: []string{"hs_order_name"}}
	hubspot := recorder.server(t)
	defer hubspot.Close()

	summary, err := testSyncer(t, cin7.URL, hubspot.URL, nil).Run(context.Background())

	require.ErrorIs(t, err, ErrUniquePropertyMissing)
	assert.False(t, summary.OK)
	assert.Empty(t, recorder.inputs, "nothing is written")

	fatal := summary.Fatal(err)
	assert.False(t, fatal.OK)
	assert.Equal(t, summary.RunID, fatal.RunID)
	assert.Contains(t, fatal.Error, "cin7_order_id")
}

func TestSyncer_SourceFailureIsFatal(t *testing.T) {
	cin7 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer cin7.Close()
	recorder := &hubSpotRecorder{schema: []string{"cin7_order_id"}}
	hubspot := recorder.server(t)
	defer hubspot.Close()

	summary, err := testSyncer(t, cin7.URL, hubspot.URL, nil).Run(context.Background())

	require.ErrorIs(t, err, ErrSourceFetch)
	assert.False(t, summary.OK)
	assert.Zero(t, summary.Cin7Count)
	assert.Empty(t, recorder.inputs)
}

func TestNewFatalSummary(t *testing.T) {
	fatal := NewFatalSummary(fmt.Errorf("%w: hubspot.token", ErrMissingConfig), testRunTime)

	b, err := json.Marshal(fatal)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"finishedAt":"2024-05-10T00:00:00Z","error":"missing or invalid configuration: hubspot.token"}`, string(b))
}
