package sync

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/config"
)

const (
	WriteModeBatch  = "batch"
	WriteModeSearch = "search"

	// MaxBatchSize is the largest batch the HubSpot batch endpoints accept.
	MaxBatchSize = 100
)

var ErrMissingConfig = errors.New("missing or invalid configuration")

type Config struct {
	Cin7     Cin7Settings
	HubSpot  HubSpotSettings
	Sync     SyncSettings
	Webhook  WebhookSettings
	Server   ServerSettings
	Log      LogSettings
	Mappings OrderMappings
}

type Cin7Settings struct {
	BaseURL    string `yaml:"baseURL"`
	ListPath   string `yaml:"listPath"`
	Username   string `yaml:"username"`
	APIKey     string `yaml:"apiKey"`
	PageSize   int    `yaml:"pageSize"`
	MaxPages   int    `yaml:"maxPages"`
	SinceField string `yaml:"sinceField"`
	Guard      string `yaml:"guard"`
	// Fields is a comma separated field selection. When empty the selection
	// is derived from the mapping table.
	Fields string `yaml:"fields"`
}

type HubSpotSettings struct {
	BaseURL        string `yaml:"baseURL"`
	Token          string `yaml:"token"`
	ObjectType     string `yaml:"objectType"`
	UniqueProperty string `yaml:"uniqueProperty"`
	BatchSize      int    `yaml:"batchSize"`
	WriteMode      string `yaml:"writeMode"`
}

type SyncSettings struct {
	LookbackHours   int    `yaml:"lookbackHours"`
	Since           string `yaml:"since"`
	MaxErrorSamples int    `yaml:"maxErrorSamples"`
}

type WebhookSettings struct {
	Secret  string        `yaml:"secret"`
	MaxSkew time.Duration `yaml:"maxSkew"`
	BaseURL string        `yaml:"baseURL"`
}

type ServerSettings struct {
	Listen string `yaml:"listen"`
}

type LogSettings struct {
	Level string `yaml:"level"`
}

// OrderMappings is the Cin7 to HubSpot correspondence table.
type OrderMappings struct {
	// Identifier lists the candidate paths for the Cin7 order id, in priority order.
	Identifier []string      `yaml:"identifier"`
	Properties FieldMappings `yaml:"properties"`
}

// FieldMappings maps HubSpot property names to ordered candidate source paths.
type FieldMappings struct {
	Strings    map[string][]string `yaml:"strings"`
	Numbers    map[string][]string `yaml:"numbers"`
	Timestamps map[string][]string `yaml:"timestamps"`
}

func (m FieldMappings) AllKeys() []string {
	var result []string
	result = append(result, FieldMapsKeys(m.Strings)...)
	result = append(result, FieldMapsKeys(m.Numbers)...)
	result = append(result, FieldMapsKeys(m.Timestamps)...)
	sort.Strings(result)
	return result
}

func (m FieldMappings) AllPaths() []string {
	var result []string
	result = append(result, FieldMapsValues(m.Strings)...)
	result = append(result, FieldMapsValues(m.Numbers)...)
	result = append(result, FieldMapsValues(m.Timestamps)...)
	return result
}

// FieldType returns the HubSpot-facing type label of a mapped property.
func (m FieldMappings) FieldType(key string) string {
	if _, exists := m.Strings[key]; exists {
		return "Text"
	}
	if _, exists := m.Numbers[key]; exists {
		return "Number"
	}
	if _, exists := m.Timestamps[key]; exists {
		return "Date time"
	}
	return "Unknown"
}

func FieldMapsKeys(m map[string][]string) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	return result
}

func FieldMapsValues(m map[string][]string) []string {
	var result []string
	for _, v := range m {
		result = append(result, v...)
	}
	return result
}

// FieldSelection returns the Cin7 fields to request. An explicit selection
// wins; otherwise it is the set of top-level fields the mapping table reads.
func (c Config) FieldSelection() []string {
	if s := strings.TrimSpace(c.Cin7.Fields); s != "" {
		var result []string
		for _, f := range strings.Split(s, ",") {
			if f = strings.TrimSpace(f); f != "" {
				result = append(result, f)
			}
		}
		return result
	}

	seen := make(map[string]bool)
	var result []string
	paths := append(append([]string{}, c.Mappings.Identifier...), c.Mappings.Properties.AllPaths()...)
	for _, p := range paths {
		if isStaticValue(p) {
			continue
		}
		field := p
		if i := strings.IndexAny(field, ".|#"); i >= 0 {
			field = field[:i]
		}
		if field == "" || seen[field] {
			continue
		}
		seen[field] = true
		result = append(result, field)
	}
	sort.Strings(result)
	return result
}

// SinceCutoff returns the start of the lookback window. A forced since
// timestamp overrides the window.
func (c Config) SinceCutoff(now time.Time) (time.Time, error) {
	if s := strings.TrimSpace(c.Sync.Since); s != "" {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: sync.since %q is not a timestamp", ErrMissingConfig, s)
	}
	return now.UTC().Add(-time.Duration(c.Sync.LookbackHours) * time.Hour), nil
}

// Validate checks everything a sync run needs and normalises bounded settings.
// The webhook secret is checked by the verifier, not here.
func (c *Config) Validate() error {
	var problems []string
	required := map[string]string{
		"cin7.baseURL":           c.Cin7.BaseURL,
		"cin7.listPath":          c.Cin7.ListPath,
		"cin7.username":          c.Cin7.Username,
		"cin7.apiKey":            c.Cin7.APIKey,
		"hubspot.baseURL":        c.HubSpot.BaseURL,
		"hubspot.token":          c.HubSpot.Token,
		"hubspot.objectType":     c.HubSpot.ObjectType,
		"hubspot.uniqueProperty": c.HubSpot.UniqueProperty,
	}
	for _, key := range sortedKeys(required) {
		if strings.TrimSpace(required[key]) == "" {
			problems = append(problems, key)
		}
	}
	if len(c.Mappings.Identifier) == 0 {
		problems = append(problems, "mappings.identifier")
	}
	if c.Cin7.PageSize <= 0 {
		problems = append(problems, "cin7.pageSize must be positive")
	}
	if c.Cin7.MaxPages <= 0 {
		problems = append(problems, "cin7.maxPages must be positive")
	}
	if c.Sync.LookbackHours <= 0 && strings.TrimSpace(c.Sync.Since) == "" {
		problems = append(problems, "sync.lookbackHours must be positive")
	}
	switch c.HubSpot.WriteMode {
	case "":
		c.HubSpot.WriteMode = WriteModeBatch
	case WriteModeBatch, WriteModeSearch:
	default:
		problems = append(problems, fmt.Sprintf("hubspot.writeMode %q (want %s or %s)", c.HubSpot.WriteMode, WriteModeBatch, WriteModeSearch))
	}
	if c.HubSpot.BatchSize <= 0 || c.HubSpot.BatchSize > MaxBatchSize {
		c.HubSpot.BatchSize = MaxBatchSize
	}
	if c.Sync.MaxErrorSamples <= 0 {
		c.Sync.MaxErrorSamples = 20
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(problems, ", "))
	}
	if _, err := c.SinceCutoff(time.Now()); err != nil {
		return err
	}
	return nil
}

type YAMLConfigUnmarshaler struct{}

func (u YAMLConfigUnmarshaler) Unmarshal(lookup LookupFunc, sources ...MappingFile) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		if s.Length > 0 {
			options = append(options, config.Source(s.Reader))
		}
	}
	if lookup == nil {
		lookup = NoEnvironment
	}
	options = append(options, config.Expand(config.LookupFunc(lookup)))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	targets := []struct {
		key string
		out interface{}
	}{
		{"cin7", &result.Cin7},
		{"hubspot", &result.HubSpot},
		{"sync", &result.Sync},
		{"webhook", &result.Webhook},
		{"server", &result.Server},
		{"log", &result.Log},
		{"mappings", &result.Mappings},
	}
	for _, t := range targets {
		if !yaml.Get(t.key).HasValue() {
			continue
		}
		if err := yaml.Get(t.key).Populate(t.out); err != nil {
			return result, readError(t.key, err)
		}
	}
	return result, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
