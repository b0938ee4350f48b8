package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Store holds the live configuration snapshot behind an atomic pointer, so
// components re-read it per request and reload_config swaps it without a
// restart or a lock on the read path.
type Store struct {
	current atomic.Pointer[Config]
	base    *Config
}

// NewStore seeds a Store with the loaded base configuration.
func NewStore(base *Config) *Store {
	s := &Store{base: base}
	cp := *base
	s.current.Store(&cp)
	return s
}

// Current returns the live snapshot. Callers must treat it as read-only.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// ApplyOverrides layers dotted-key JSON values (from preference rows, keys
// like "ranking_weights.semantic") over the base configuration and swaps
// the snapshot. The override set is applied whole each time: removing a
// preference row and reloading restores the file/env value.
func (s *Store) ApplyOverrides(overrides map[string]json.RawMessage) error {
	merged, err := mergeOverrides(s.base, overrides)
	if err != nil {
		return err
	}
	s.current.Store(merged)
	return nil
}

func mergeOverrides(base *Config, overrides map[string]json.RawMessage) (*Config, error) {
	k := koanf.New(".")

	baseYAML, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("config: marshaling base config: %w", err)
	}
	// YAML is a JSON superset, so one parser covers both layers.
	if err := k.Load(rawbytes.Provider(baseYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: loading base config: %w", err)
	}

	for key, raw := range overrides {
		doc, err := nestedYAML(key, raw)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(doc), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: applying override %q: %w", key, err)
		}
	}

	var merged Config
	if err := k.Unmarshal("", &merged); err != nil {
		return nil, fmt.Errorf("config: unmarshaling merged config: %w", err)
	}
	applyDefaults(&merged)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// nestedYAML turns ("a.b.c", raw) into the JSON document {"a":{"b":{"c":raw}}}.
func nestedYAML(key string, raw json.RawMessage) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("config: empty override key")
	}
	parts := strings.Split(key, ".")
	doc := []byte(raw)
	for i := len(parts) - 1; i >= 0; i-- {
		wrapped, err := json.Marshal(map[string]json.RawMessage{parts[i]: doc})
		if err != nil {
			return nil, fmt.Errorf("config: building override for %q: %w", key, err)
		}
		doc = wrapped
	}
	return doc, nil
}
