// Package config parses and validates the run configuration: destination
// settings, the declared load order, per-table schema declarations, and
// metrics settings. Every error returned here is a configuration error; the
// run must abort before any table is processed.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mdload/internal/schema"
	"mdload/internal/storage"
)

// LoadOrder is the declared table sequence, grouped by classification.
// Intra-group order is preserved; groups always load in the order
// masters, core, relationship, transactional.
type LoadOrder struct {
	Masters       []string `yaml:"masters"`
	Core          []string `yaml:"core"`
	Relationship  []string `yaml:"relationship"`
	Transactional []string `yaml:"transactional"`
}

// Flatten returns the full declared order.
func (o LoadOrder) Flatten() []string {
	out := make([]string, 0, len(o.Masters)+len(o.Core)+len(o.Relationship)+len(o.Transactional))
	out = append(out, o.Masters...)
	out = append(out, o.Core...)
	out = append(out, o.Relationship...)
	out = append(out, o.Transactional...)
	return out
}

// Duration wraps time.Duration so YAML values like "30s" decode directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler via time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Metrics selects and configures the metrics backend.
type Metrics struct {
	// Backend: "" or "none" disables metrics; "datadog" enables the Datadog
	// backend (requires DD_API_KEY in the environment).
	Backend string `yaml:"backend"`

	// Job becomes tag "job:<name>" on every metric.
	Job string `yaml:"job"`

	Tags []string `yaml:"tags"`

	FlushEvery Duration `yaml:"flush_every"`
}

// Config is the full run configuration.
type Config struct {
	Storage    storage.Config              `yaml:"storage"`
	LoadOrder  LoadOrder                   `yaml:"load_order"`
	Tables     map[string]schema.TableSpec `yaml:"tables"`
	Metrics    Metrics                     `yaml:"metrics"`
	ReportsDir string                      `yaml:"reports_dir"`
}

// Load reads and validates the YAML config at path. Unknown fields are
// rejected so typos fail loudly. The storage DSN supports ${ENV} expansion.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates raw YAML config bytes.
func Parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg.Storage.DSN = os.ExpandEnv(cfg.Storage.DSN)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the parts the schema registry does not cover.
func (c *Config) Validate() error {
	if c.Storage.Kind == "" {
		return fmt.Errorf("config: storage.kind must be set")
	}
	if len(c.LoadOrder.Flatten()) == 0 {
		return fmt.Errorf("config: load_order must name at least one table")
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("config: tables must not be empty")
	}
	if c.ReportsDir == "" {
		c.ReportsDir = "reports"
	}
	return nil
}

// BuildRegistry assembles the schema registry from the config. Table name and
// classification are derived from the load-order group each table appears in;
// everything else comes from the table's own declaration. The registry
// performs the load-order/foreign-key consistency checks.
func (c *Config) BuildRegistry() (*schema.Registry, error) {
	groups := []struct {
		names []string
		class schema.Classification
	}{
		{c.LoadOrder.Masters, schema.ClassMaster},
		{c.LoadOrder.Core, schema.ClassCore},
		{c.LoadOrder.Relationship, schema.ClassRelationship},
		{c.LoadOrder.Transactional, schema.ClassTransactional},
	}

	specs := make(map[string]schema.TableSpec, len(c.Tables))
	for _, g := range groups {
		for _, name := range g.names {
			t, ok := c.Tables[name]
			if !ok {
				return nil, fmt.Errorf("config: load_order names table %q but tables has no entry for it", name)
			}
			t.Name = name
			t.Class = g.class
			specs[name] = t
		}
	}
	for name := range c.Tables {
		if _, ok := specs[name]; !ok {
			return nil, fmt.Errorf("config: table %q is declared but missing from load_order", name)
		}
	}

	return schema.NewRegistry(specs, c.LoadOrder.Flatten())
}
