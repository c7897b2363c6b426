package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Cin7SinceTimestampFormat is the layout of the cutoff inside the where clause.
const Cin7SinceTimestampFormat = "2006-01-02T15:04:05Z"

var ErrSourceFetch = errors.New("cin7 fetch failed")

type Cin7Error map[string]interface{}

func (e Cin7Error) String() string {
	for _, k := range []string{"message", "Message", "error", "errors"} {
		if v, ok := e[k]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return fmt.Sprintf("%v", map[string]interface{}(e))
}

// Source is a single opaque record read through gjson paths.
type Source struct {
	data gjson.Result
}

func NewSource(raw string) Source {
	return Source{data: gjson.Parse(raw)}
}

func (s Source) StringForPath(path string) (string, bool) {
	result := s.data.Get(path)
	return result.String(), result.Exists() && (result.Value() != nil)
}

// FirstStringForPaths returns the first candidate path holding a non-empty value.
func (s Source) FirstStringForPaths(paths []string) (string, bool) {
	for _, p := range paths {
		if v, ok := s.StringForPath(p); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func (s Source) Raw() string {
	return s.data.Raw
}

// OrderSource lists the orders modified since a cutoff.
type OrderSource interface {
	FetchOrdersSince(ctx context.Context, since time.Time) ([]Source, error)
}

// Cin7Fetcher pages through the Cin7 sales order listing.
// It embeds *SyncContext for shared sync configuration.
type Cin7Fetcher struct {
	*SyncContext
}

// Cin7APIBuilder returns a new requests.Builder configured for the listing endpoint.
func (c Cin7Fetcher) Cin7APIBuilder() (*requests.Builder, error) {
	endpoint, err := url.JoinPath(c.Config.Cin7.BaseURL, c.Config.Cin7.ListPath)
	if err != nil {
		return nil, fmt.Errorf("invalid cin7 endpoint %w", err)
	}
	result := requests.
		URL(endpoint).
		Client(&http.Client{Timeout: HTTPRequestTimeout}).
		Header("User-Agent", UserAgent).
		BasicAuth(c.Config.Cin7.Username, c.Config.Cin7.APIKey)
	if c.RecordRequests {
		result = result.Transport(requests.Record(nil, RecordingDir+"/cin7"))
	}
	return result, nil
}

// WhereClause is the listing filter: the cutoff plus the non-null guard.
func (c Cin7Fetcher) WhereClause(since time.Time) string {
	field := c.Config.Cin7.SinceField
	if field == "" {
		field = "ModifiedDate"
	}
	where := fmt.Sprintf("%s>='%s'", field, since.UTC().Format(Cin7SinceTimestampFormat))
	if guard := strings.TrimSpace(c.Config.Cin7.Guard); guard != "" {
		where = fmt.Sprintf("%s AND %s", where, guard)
	}
	return where
}

// FetchOrdersSince requests pages 1..maxPages, stopping early on an empty page.
// Any failed page aborts the fetch and nothing fetched so far is returned.
func (c Cin7Fetcher) FetchOrdersSince(ctx context.Context, since time.Time) ([]Source, error) {
	where := c.WhereClause(since)
	fields := strings.Join(c.Config.FieldSelection(), ",")
	var result []Source
	for page := 1; page <= c.Config.Cin7.MaxPages; page++ {
		builder, err := c.Cin7APIBuilder()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceFetch, err)
		}
		builder = builder.
			Param("where", where).
			Param("page", strconv.Itoa(page)).
			Param("rows", strconv.Itoa(c.Config.Cin7.PageSize))
		if fields != "" {
			builder = builder.Param("fields", fields)
		}
		cin7Error := Cin7Error{}
		var body string
		err = builder.
			ToString(&body).
			ErrorJSON(&cin7Error).
			Fetch(ctx)
		if err != nil {
			if len(cin7Error) > 0 {
				return nil, fmt.Errorf("%w: page %d: %w (%s)", ErrSourceFetch, page, err, cin7Error)
			}
			return nil, fmt.Errorf("%w: page %d: %w", ErrSourceFetch, page, err)
		}
		orders, err := ParseOrderPage(body)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", ErrSourceFetch, page, err)
		}
		c.log().Info("fetched cin7 page", zap.Int("page", page), zap.Int("orders", len(orders)))
		if len(orders) == 0 {
			return result, nil
		}
		result = append(result, orders...)
		if page == c.Config.Cin7.MaxPages {
			c.log().Warn("cin7 page cap reached", zap.Int("maxPages", page), zap.Int("orders", len(result)))
		}
	}
	return result, nil
}

// ParseOrderPage accepts a raw JSON array or an object wrapping one in
// "items" or "results". An empty body or null is an empty page.
func ParseOrderPage(body string) ([]Source, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	if !gjson.Valid(body) {
		return nil, errors.New("invalid json response")
	}
	parsed := gjson.Parse(body)
	var list gjson.Result
	switch {
	case parsed.Type == gjson.Null:
		return nil, nil
	case parsed.IsArray():
		list = parsed
	case parsed.IsObject():
		for _, key := range []string{"items", "results"} {
			if v := parsed.Get(key); v.IsArray() {
				list = v
				break
			}
		}
		if !list.Exists() {
			return nil, errors.New("unexpected response shape: no items or results list")
		}
	default:
		return nil, fmt.Errorf("unexpected response shape: %s", parsed.Type)
	}
	var result []Source
	for _, item := range list.Array() {
		result = append(result, Source{data: item})
	}
	return result, nil
}
