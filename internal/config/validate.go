package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"sqlextract/internal/parquetwriter"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to the operator but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is the dotted key of the offending setting (e.g. "output.compression").
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

// Err folds the error-severity issues into a single *ConfigError, or returns
// nil when there are none. Warnings are ignored.
func Err(issues []Issue) error {
	var errs []error
	path := ""
	for _, iss := range issues {
		if iss.Severity != SeverityError {
			continue
		}
		if path == "" {
			path = iss.Path
		}
		errs = append(errs, iss)
	}
	if len(errs) == 0 {
		return nil
	}
	return &ConfigError{Path: path, Err: errors.Join(errs...)}
}

// Validate performs static validation of a Config. It does not mutate the
// config; callers decide how to surface warnings.
func Validate(c Config) []Issue {
	var issues []Issue
	issues = append(issues, validateDatabase(c.Database)...)
	issues = append(issues, validateQuery(c.Query)...)
	issues = append(issues, validateProcessing(c.Processing, c.Output)...)
	issues = append(issues, validateOutput(c.Output)...)
	issues = append(issues, validateLogging(c.Logging)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	return issues
}

func validateDatabase(d Database) []Issue {
	var issues []Issue

	if d.Kind == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "database.kind",
			Message:  "database.kind must not be empty",
		})
	}

	// Unknown kinds are warnings; the backend registry has the final word.
	known := map[string]struct{}{
		"mssql":    {},
		"postgres": {},
		"sqlite":   {},
	}
	if _, ok := known[d.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "database.kind",
			Message:  fmt.Sprintf("unknown database kind %q; ensure a matching backend is registered", d.Kind),
		})
	}

	if d.ConnectTimeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "database.connect_timeout",
			Message:  "connect_timeout must not be negative",
		})
	}

	if d.DSN != "" {
		return issues
	}

	if d.Kind != "sqlite" && d.Server == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "database.server",
			Message:  "server must not be empty",
		})
	}
	if d.Database == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "database.database",
			Message:  "database must not be empty",
		})
	}
	if d.Password != "" && d.User == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "database.password",
			Message:  "password is set without a user and will be ignored",
		})
	}
	if d.Params != "" {
		if _, err := url.ParseQuery(d.Params); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "database.params",
				Message:  fmt.Sprintf("params must be URL query encoded: %v", err),
			})
		}
	}
	return issues
}

func validateQuery(q Query) []Issue {
	if q.SQLFilePath == "" {
		return []Issue{{
			Severity: SeverityError,
			Path:     "query.sql_file_path",
			Message:  "sql_file_path must not be empty",
		}}
	}
	return nil
}

func validateProcessing(p Processing, o Output) []Issue {
	var issues []Issue
	if p.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "processing.batch_size",
			Message:  fmt.Sprintf("batch_size must be a positive integer, got %d", p.BatchSize),
		})
		return issues
	}
	if o.RowGroupSize > p.BatchSize {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "output.row_group_size",
			Message:  fmt.Sprintf("row_group_size %d exceeds batch_size %d; each file holds a single row group", o.RowGroupSize, p.BatchSize),
		})
	}
	return issues
}

// forbiddenNameChars are rejected in extract names because the name becomes
// part of every artifact and log file name.
const forbiddenNameChars = `/\:*?"<>|`

func validateOutput(o Output) []Issue {
	var issues []Issue

	switch {
	case o.ExtractName == "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.extract_name",
			Message:  "extract_name must not be empty",
		})
	case strings.ContainsAny(o.ExtractName, forbiddenNameChars):
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.extract_name",
			Message:  fmt.Sprintf("extract_name %q must not contain any of %s", o.ExtractName, forbiddenNameChars),
		})
	}

	if o.OutputDirectory == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.output_directory",
			Message:  "output_directory must not be empty",
		})
	}

	if _, err := parquetwriter.ParseCodec(o.Compression); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.compression",
			Message:  err.Error(),
		})
	}

	if o.RowGroupSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.row_group_size",
			Message:  fmt.Sprintf("row_group_size must be a positive integer, got %d", o.RowGroupSize),
		})
	}
	return issues
}

func validateLogging(l Logging) []Issue {
	var issues []Issue
	if l.Directory == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "logging.directory",
			Message:  "directory must not be empty",
		})
	}
	if _, err := ParseLevel(l.Level); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "logging.level",
			Message:  err.Error(),
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "", "none":
		return nil
	case "pushgateway":
		if m.PushgatewayURL == "" {
			return []Issue{{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires pushgateway_url",
			}}
		}
	case "datadog":
		if m.StatsdAddr == "" {
			return []Issue{{
				Severity: SeverityError,
				Path:     "metrics.statsd_addr",
				Message:  "datadog backend requires statsd_addr",
			}}
		}
	default:
		return []Issue{{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		}}
	}
	return nil
}

// ParseLevel maps a logging.level value to a slog level. An empty value is
// treated as info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warning or error)", s)
}
