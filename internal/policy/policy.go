// Package policy enforces required-field and minimum-confidence guardrails
// before any mutation reaches the storage layer.
//
// The configuration is a process-wide singleton by design: every mutation
// path consults the same config. Set and Reset exist for initialization
// and test setup, not for concurrent runtime mutation.
package policy

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// Config is the mutable policy configuration, loadable from
// .mnemo/policy.toml.
type Config struct {
	// RequiredFields maps operation name to the parameters that must be
	// present and non-empty.
	RequiredFields map[string][]string `toml:"required_fields"`
	// MinConfidence rejects mutations whose confidence is numerically
	// present and below this floor. Missing confidence passes unless the
	// operation's required list names it.
	MinConfidence float64 `toml:"min_confidence"`
}

var (
	mu      sync.RWMutex
	current = Defaults()
)

// Defaults returns the built-in policy.
func Defaults() Config {
	return Config{
		RequiredFields: map[string][]string{
			"store":  {"topic", "content"},
			"relate": {"subject", "predicate", "object"},
		},
		MinConfidence: 0,
	}
}

// Current returns a copy of the active policy.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	cfg := current
	cfg.RequiredFields = make(map[string][]string, len(current.RequiredFields))
	for op, fields := range current.RequiredFields {
		cfg.RequiredFields[op] = append([]string(nil), fields...)
	}
	return cfg
}

// Set replaces the active policy. Initialization and tests only.
func Set(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.RequiredFields == nil {
		cfg.RequiredFields = Defaults().RequiredFields
	}
	current = cfg
}

// SetMinConfidence adjusts only the confidence floor.
func SetMinConfidence(floor float64) {
	mu.Lock()
	defer mu.Unlock()
	current.MinConfidence = floor
}

// Reset restores the built-in defaults. Test setup helper.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = Defaults()
}

// LoadFile reads a TOML policy file and installs it. A missing file is not
// an error; the defaults stay active.
func LoadFile(path string) error {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return fmt.Errorf("failed to load policy file %s: %w", path, err)
	}
	Set(cfg)
	return nil
}

// Check validates params for op against the active policy. Returns a
// policy-kind error on the first violation.
func Check(op string, params map[string]any) error {
	mu.RLock()
	required := current.RequiredFields[op]
	floor := current.MinConfidence
	mu.RUnlock()

	for _, field := range required {
		val, ok := params[field]
		if !ok || isNilValue(val) {
			return types.Policyf("required field %q missing for operation %q", field, op)
		}
		if isEmptyString(val) {
			return types.Policyf("required field %q empty for operation %q", field, op)
		}
	}

	if raw, ok := params["confidence"]; ok && raw != nil {
		var conf float64
		switch c := raw.(type) {
		case float64:
			conf = c
		case *float64:
			if c == nil {
				return nil
			}
			conf = *c
		default:
			return nil
		}
		if conf < floor {
			return types.Policyf("confidence %.2f below minimum %.2f", conf, floor)
		}
	}
	return nil
}

// isNilValue treats a typed nil pointer the same as an absent value.
// Callers hand us optional struct fields like *float64 verbatim, and a
// nil pointer wrapped in an interface is not == nil.
func isNilValue(val any) bool {
	if val == nil {
		return true
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func isEmptyString(val any) bool {
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.String && rv.Len() == 0
}
