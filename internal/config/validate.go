package config

// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "input.root",
// "runtime.malformed_policy"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// KnownWarehouseKinds lists the warehouse backends compiled into the binary.
var KnownWarehouseKinds = map[string]struct{}{
	"postgres": {},
	"sqlite":   {},
	"mssql":    {},
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline and is meant to run after Defaults.
// Callers may decide whether to treat warnings as fatal or not.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateRoot("input.root", p.Input.Root)...)
	issues = append(issues, validateRoot("output.root", p.Output.Root)...)
	issues = append(issues, validateGlobs(p.Input)...)
	if p.Input.Root != "" && strings.TrimRight(p.Input.Root, "/") == strings.TrimRight(p.Output.Root, "/") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "output.root",
			Message:  "output root equals input root; table directories will be written next to the source data",
		})
	}
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateWarehouse(p.Warehouse)...)

	return issues
}

// validateRoot checks that a root is set and, for object-store URLs, names a
// bucket.
func validateRoot(path, root string) []Issue {
	root = strings.TrimSpace(root)
	if root == "" {
		return []Issue{{
			Severity: SeverityError,
			Path:     path,
			Message:  path + " must not be empty",
		}}
	}
	if !strings.Contains(root, "://") {
		return nil
	}
	u, err := url.Parse(root)
	if err != nil {
		return []Issue{{
			Severity: SeverityError,
			Path:     path,
			Message:  fmt.Sprintf("invalid URL %q: %v", root, err),
		}}
	}
	switch u.Scheme {
	case "s3", "s3a", "s3n":
		if u.Host == "" {
			return []Issue{{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("object store URL %q has no bucket", root),
			}}
		}
	case "file":
	default:
		return []Issue{{
			Severity: SeverityError,
			Path:     path,
			Message:  fmt.Sprintf("unsupported scheme %q; use s3://, s3a://, s3n://, file:// or a plain path", u.Scheme),
		}}
	}
	return nil
}

func validateGlobs(in Input) []Issue {
	var issues []Issue
	for _, g := range []struct{ path, glob string }{
		{"input.song_glob", in.SongGlob},
		{"input.log_glob", in.LogGlob},
	} {
		switch {
		case strings.TrimSpace(g.glob) == "":
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     g.path,
				Message:  g.path + " must not be empty",
			})
		case strings.HasPrefix(g.glob, "/"):
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     g.path,
				Message:  "glob is matched relative to the input root; the leading slash is ignored",
			})
		}
	}
	return issues
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations
// (negative values, unknown policies, etc.).
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if _, err := time.LoadLocation(r.Timezone); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.timezone",
			Message:  fmt.Sprintf("unknown timezone %q: %v", r.Timezone, err),
		})
	}
	if r.ReadWorkers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.read_workers",
			Message:  "read_workers must not be negative",
		})
	}
	if r.WriteWorkers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.write_workers",
			Message:  "write_workers must not be negative",
		})
	}
	if r.WriteRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.write_retries",
			Message:  "write_retries must not be negative",
		})
	}
	if r.RowGroupMB <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.row_group_mb",
			Message:  fmt.Sprintf("row_group_mb=%d; the writer default will be used", r.RowGroupMB),
		})
	}
	switch r.MalformedPolicy {
	case PolicySkip, PolicyAbort:
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.malformed_policy",
			Message:  fmt.Sprintf("unknown malformed_policy %q; use %q or %q", r.MalformedPolicy, PolicySkip, PolicyAbort),
		})
	}
	switch r.SongplaysMode {
	case "merge", "overwrite":
	case "append":
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.songplays_mode",
			Message:  "append mode duplicates songplays when overlapping inputs are re-run",
		})
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.songplays_mode",
			Message:  fmt.Sprintf("unknown songplays_mode %q; use merge, overwrite or append", r.SongplaysMode),
		})
	}

	return issues
}

// validateWarehouse validates the optional SQL mirror.
func validateWarehouse(w Warehouse) []Issue {
	if !w.Enabled() {
		return nil
	}
	var issues []Issue
	if _, ok := KnownWarehouseKinds[w.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.kind",
			Message:  fmt.Sprintf("unknown warehouse kind %q; ensure a matching backend is registered", w.Kind),
		})
	}
	if strings.TrimSpace(w.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.dsn",
			Message:  "warehouse.dsn must not be empty",
		})
	}
	if w.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; non-positive batch sizes may hurt throughput", w.BatchSize),
		})
	}
	if !w.AutoCreate {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.auto_create",
			Message:  "auto_create is false; the five tables must already exist",
		})
	}
	return issues
}
