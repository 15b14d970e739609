package config

import (
	"errors"
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{
			name:   "zero batch size",
			mutate: func(c *Config) { c.Processing.BatchSize = 0 },
			sev:    SeverityError, path: "processing.batch_size", msg: "positive integer",
		},
		{
			name:   "negative batch size",
			mutate: func(c *Config) { c.Processing.BatchSize = -5 },
			sev:    SeverityError, path: "processing.batch_size", msg: "got -5",
		},
		{
			name:   "empty extract name",
			mutate: func(c *Config) { c.Output.ExtractName = "" },
			sev:    SeverityError, path: "output.extract_name", msg: "must not be empty",
		},
		{
			name:   "path separator in extract name",
			mutate: func(c *Config) { c.Output.ExtractName = "sales/2024" },
			sev:    SeverityError, path: "output.extract_name", msg: "must not contain",
		},
		{
			name:   "empty output directory",
			mutate: func(c *Config) { c.Output.OutputDirectory = "" },
			sev:    SeverityError, path: "output.output_directory", msg: "must not be empty",
		},
		{
			name:   "unknown compression",
			mutate: func(c *Config) { c.Output.Compression = "lz4" },
			sev:    SeverityError, path: "output.compression", msg: "lz4",
		},
		{
			name:   "row group larger than batch",
			mutate: func(c *Config) { c.Output.RowGroupSize = 5000 },
			sev:    SeverityWarning, path: "output.row_group_size", msg: "exceeds batch_size",
		},
		{
			name:   "zero row group size",
			mutate: func(c *Config) { c.Output.RowGroupSize = 0 },
			sev:    SeverityError, path: "output.row_group_size", msg: "positive integer",
		},
		{
			name:   "missing query path",
			mutate: func(c *Config) { c.Query.SQLFilePath = "" },
			sev:    SeverityError, path: "query.sql_file_path", msg: "must not be empty",
		},
		{
			name:   "empty kind",
			mutate: func(c *Config) { c.Database.Kind = "" },
			sev:    SeverityError, path: "database.kind", msg: "must not be empty",
		},
		{
			name:   "unknown kind",
			mutate: func(c *Config) { c.Database.Kind = "oracle" },
			sev:    SeverityWarning, path: "database.kind", msg: "oracle",
		},
		{
			name:   "missing server",
			mutate: func(c *Config) { c.Database.Server = "" },
			sev:    SeverityError, path: "database.server", msg: "must not be empty",
		},
		{
			name:   "missing database",
			mutate: func(c *Config) { c.Database.Database = "" },
			sev:    SeverityError, path: "database.database", msg: "must not be empty",
		},
		{
			name:   "password without user",
			mutate: func(c *Config) { c.Database.Password = "x" },
			sev:    SeverityWarning, path: "database.password", msg: "without a user",
		},
		{
			name:   "bad params",
			mutate: func(c *Config) { c.Database.Params = "a=%zz" },
			sev:    SeverityError, path: "database.params", msg: "URL query",
		},
		{
			name:   "negative timeout",
			mutate: func(c *Config) { c.Database.ConnectTimeout = -1 },
			sev:    SeverityError, path: "database.connect_timeout", msg: "negative",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
			sev:    SeverityError, path: "logging.level", msg: "loud",
		},
		{
			name:   "pushgateway without url",
			mutate: func(c *Config) { c.Metrics.Backend = "pushgateway"; c.Metrics.PushgatewayURL = "" },
			sev:    SeverityError, path: "metrics.pushgateway_url", msg: "requires",
		},
		{
			name:   "unknown metrics backend",
			mutate: func(c *Config) { c.Metrics.Backend = "graphite" },
			sev:    SeverityWarning, path: "metrics.backend", msg: "graphite",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			issues := Validate(c)
			if !hasIssue(t, issues, tt.sev, tt.path, tt.msg) {
				t.Fatalf("expected %s at %s containing %q, got %+v", tt.sev, tt.path, tt.msg, issues)
			}
		})
	}
}

func TestValidate_SQLiteNeedsNoServer(t *testing.T) {
	c := Default()
	c.Database.Kind = "sqlite"
	c.Database.Server = ""
	c.Database.Database = "extract.db"
	if err := Err(Validate(c)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DSNSkipsConnectionFields(t *testing.T) {
	c := Default()
	c.Database.DSN = "sqlserver://sa:pw@db:1433?database=sales"
	c.Database.Server = ""
	c.Database.Database = ""
	if err := Err(Validate(c)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestErr_FoldsErrorsOnly(t *testing.T) {
	issues := []Issue{
		{Severity: SeverityWarning, Path: "metrics.backend", Message: "w"},
		{Severity: SeverityError, Path: "processing.batch_size", Message: "bad"},
		{Severity: SeverityError, Path: "output.extract_name", Message: "empty"},
	}
	err := Err(issues)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("want *ConfigError, got %T", err)
	}
	if cerr.Path != "processing.batch_size" {
		t.Fatalf("path = %q, want first error path", cerr.Path)
	}
	if !strings.Contains(err.Error(), "empty") || strings.Contains(err.Error(), "at metrics.backend") {
		t.Fatalf("unexpected message: %v", err)
	}

	if Err(issues[:1]) != nil {
		t.Fatal("warnings alone must not produce an error")
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"", "info", "DEBUG", "warning", "warn", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("ParseLevel(trace) should fail")
	}
}
