// Package config defines the canonical configuration model for the datalake
// job. A pipeline can be loaded from a JSON or YAML file, overridden from the
// command line, and is then passed through the program as a plain value.
//
// Example (trimmed):
//
//	{
//	  "job":    "sparkify",
//	  "input":  { "root": "s3a://udacity-dend/", "song_glob": "song_data/*/*/*/*.json" },
//	  "output": { "root": "s3a://sparkify-lake/", "options": { "region": "us-west-2" } },
//	  "runtime": { "timezone": "UTC", "malformed_policy": "skip" },
//	  "warehouse": { "kind": "postgres", "dsn": "postgresql://...", "auto_create": true }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Defaults used when a pipeline file leaves a field empty.
const (
	DefaultJob             = "datalake"
	DefaultSongGlob        = "song_data/*/*/*/*.json"
	DefaultLogGlob         = "log_data/*/*/*.json"
	DefaultTimezone        = "Local"
	DefaultReadWorkers     = 16
	DefaultWriteWorkers    = 4
	DefaultWriteRetries    = 3
	DefaultRowGroupMB      = 128
	DefaultMalformedPolicy = PolicySkip
	DefaultSongplaysMode   = "merge"
	DefaultWarehouseBatch  = 10000
)

// Malformed-record policies.
const (
	PolicySkip  = "skip"
	PolicyAbort = "abort"
)

// Pipeline describes one run of the job. It is the top-level object decoded
// from a pipeline file.
type Pipeline struct {
	// Job names the run for logs and metrics grouping.
	Job string `json:"job" yaml:"job"`

	// Input locates the song-metadata and event-log files.
	Input Input `json:"input" yaml:"input"`

	// Output locates the root under which the five tables are written.
	Output Output `json:"output" yaml:"output"`

	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`

	// Warehouse optionally mirrors the tables into a SQL database.
	Warehouse Warehouse `json:"warehouse" yaml:"warehouse"`
}

// Input identifies the source root and the two glob patterns under it.
type Input struct {
	// Root is an s3://, s3a:// or s3n:// URL, or a local directory.
	Root string `json:"root" yaml:"root"`

	// SongGlob and LogGlob are matched against keys relative to Root.
	// "*" stays inside one path segment, "**" crosses segments.
	SongGlob string `json:"song_glob" yaml:"song_glob"`
	LogGlob  string `json:"log_glob" yaml:"log_glob"`

	// Options carries store-specific knobs, e.g. region, endpoint,
	// force_path_style.
	Options Options `json:"options" yaml:"options"`
}

// Output identifies the destination root.
type Output struct {
	Root    string  `json:"root" yaml:"root"`
	Options Options `json:"options" yaml:"options"`
}

// RuntimeConfig controls timezone handling, concurrency and failure policy.
type RuntimeConfig struct {
	// Timezone is an IANA name or "Local"; epoch timestamps are rendered in it.
	Timezone string `json:"timezone" yaml:"timezone"`

	ReadWorkers  int `json:"read_workers" yaml:"read_workers"`
	WriteWorkers int `json:"write_workers" yaml:"write_workers"`

	// WriteRetries is the number of extra attempts per table write.
	WriteRetries int `json:"write_retries" yaml:"write_retries"`

	// RowGroupMB sets the parquet row group size.
	RowGroupMB int `json:"row_group_mb" yaml:"row_group_mb"`

	// MalformedPolicy is "skip" (log and count) or "abort".
	MalformedPolicy string `json:"malformed_policy" yaml:"malformed_policy"`

	// SongplaysMode is "merge", "overwrite" or "append".
	SongplaysMode string `json:"songplays_mode" yaml:"songplays_mode"`

	// NormalizeJoinKeys applies NFC normalization and whitespace folding to
	// song titles and artist names before the catalog join.
	NormalizeJoinKeys bool `json:"normalize_join_keys" yaml:"normalize_join_keys"`
}

// Warehouse configures the optional SQL mirror.
type Warehouse struct {
	// Kind selects the backend: "postgres", "sqlite" or "mssql". Empty
	// disables the mirror.
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`

	// Schema optionally qualifies table names (e.g. "public", "dbo").
	Schema string `json:"schema" yaml:"schema"`

	AutoCreate bool `json:"auto_create" yaml:"auto_create"`
	BatchSize  int  `json:"batch_size" yaml:"batch_size"`
}

// Enabled reports whether a warehouse backend is configured.
func (w Warehouse) Enabled() bool { return strings.TrimSpace(w.Kind) != "" }

// Load decodes a pipeline file. Files ending in .yaml or .yml are decoded as
// YAML, everything else as JSON. An empty path yields a zero Pipeline.
// Defaults are not applied; call Defaults after applying overrides.
func Load(path string) (Pipeline, error) {
	var p Pipeline
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, errors.Wrapf(err, "read pipeline %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &p); err != nil {
			return p, errors.Wrapf(err, "decode yaml pipeline %s", path)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		if err := dec.Decode(&p); err != nil {
			return p, errors.Wrapf(err, "decode json pipeline %s", path)
		}
	}
	return p, nil
}

// Defaults fills every empty field with its default value.
func Defaults(p *Pipeline) {
	if strings.TrimSpace(p.Job) == "" {
		p.Job = DefaultJob
	}
	if p.Input.SongGlob == "" {
		p.Input.SongGlob = DefaultSongGlob
	}
	if p.Input.LogGlob == "" {
		p.Input.LogGlob = DefaultLogGlob
	}
	if p.Runtime.Timezone == "" {
		p.Runtime.Timezone = DefaultTimezone
	}
	if p.Runtime.ReadWorkers == 0 {
		p.Runtime.ReadWorkers = DefaultReadWorkers
	}
	if p.Runtime.WriteWorkers == 0 {
		p.Runtime.WriteWorkers = DefaultWriteWorkers
	}
	if p.Runtime.WriteRetries == 0 {
		p.Runtime.WriteRetries = DefaultWriteRetries
	}
	if p.Runtime.RowGroupMB == 0 {
		p.Runtime.RowGroupMB = DefaultRowGroupMB
	}
	if p.Runtime.MalformedPolicy == "" {
		p.Runtime.MalformedPolicy = DefaultMalformedPolicy
	}
	if p.Runtime.SongplaysMode == "" {
		p.Runtime.SongplaysMode = DefaultSongplaysMode
	}
	if p.Warehouse.BatchSize == 0 {
		p.Warehouse.BatchSize = DefaultWarehouseBatch
	}
	if p.Input.Options == nil {
		p.Input.Options = Options{}
	}
	if p.Output.Options == nil {
		p.Output.Options = Options{}
	}
}

// Options is a small helper to fetch typed values from free-form maps. It
// performs only minimal coercion and returns the provided default when a key
// is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def. The strings "true" and "false"
// are accepted as well, since CLI overrides arrive as strings.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "1", "yes":
				return true
			case "false", "0", "no":
				return false
			}
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64
// and YAML integers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// UnmarshalJSON makes a missing or null "options" object decode to a
// non-nil, empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
