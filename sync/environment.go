package sync

import (
	"fmt"
	"os"
)

// MappingFileEnvVar names an optional YAML file layered over the embedded mappings.
const MappingFileEnvVar = "CIN7_MAPPING_FILE"

// LookupFunc resolves ${VAR:default} placeholders in the YAML sources.
type LookupFunc func(key string) (string, bool)

// EnvLookup resolves placeholders from the process environment.
var EnvLookup LookupFunc = os.LookupEnv

// NoEnvironment resolves nothing, so every placeholder takes its default.
func NoEnvironment(string) (string, bool) {
	return "", false
}

// MapLookup resolves placeholders from a fixed set of values.
func MapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// LoadConfig layers the embedded defaults and mappings with any extra mapping
// files, expanding placeholders with lookup. The result is not validated.
func LoadConfig(lookup LookupFunc, extra ...MappingFile) (Config, error) {
	var result Config
	defaults, err := EmbeddedDefaults.MustFindDefaultsMappingFile()
	if err != nil {
		return result, fmt.Errorf("failed to read defaults mapping file %w", err)
	}
	mappings, err := EmbeddedDefaults.MustFindOrderMappingFile()
	if err != nil {
		return result, fmt.Errorf("failed to read order mapping file %w", err)
	}
	sources := append([]MappingFile{defaults, mappings}, extra...)
	result, err = YAMLConfigUnmarshaler{}.Unmarshal(lookup, sources...)
	if err != nil {
		return result, fmt.Errorf("failed to load config %w", err)
	}
	return result, nil
}

// LoadConfigFromEnvironment is LoadConfig against the process environment,
// including the mapping file named by CIN7_MAPPING_FILE when set.
func LoadConfigFromEnvironment() (Config, error) {
	return LoadConfigWithLookup(EnvLookup)
}

// LoadConfigWithLookup is LoadConfigFromEnvironment with an explicit lookup.
func LoadConfigWithLookup(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = NoEnvironment
	}
	var extra []MappingFile
	if p, ok := lookup(MappingFileEnvVar); ok && p != "" {
		f, err := MappingFileFromPath(p)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read %s %w", MappingFileEnvVar, err)
		}
		extra = append(extra, f)
	}
	return LoadConfig(lookup, extra...)
}
