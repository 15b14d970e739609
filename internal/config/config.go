// Package config defines the configuration model for an extract run and the
// helpers that load and validate it.
//
// The on-disk format is INI, one section per concern, so existing
// config.ini files keep working unchanged:
//
//	[Database]
//	server = localhost\SQLEXPRESS
//	database = master
//
//	[Query]
//	sql_file_path = query.sql
//
//	[Processing]
//	batch_size = 1000
//
//	[Output]
//	extract_name = DataExtract
//	output_directory = output
//	compression = snappy
//	row_group_size = 10000
//
// Every key may be overridden from the environment using the SQLEXTRACT
// prefix, e.g. SQLEXTRACT_DATABASE_PASSWORD or SQLEXTRACT_PROCESSING_BATCH_SIZE.
package config

import (
	"fmt"
	"time"
)

// Config is the full configuration for one extract run.
type Config struct {
	Database   Database   `mapstructure:"database"`
	Query      Query      `mapstructure:"query"`
	Processing Processing `mapstructure:"processing"`
	Output     Output     `mapstructure:"output"`
	Logging    Logging    `mapstructure:"logging"`
	Metrics    Metrics    `mapstructure:"metrics"`
}

// Database describes the single database a run reads from.
type Database struct {
	// Kind selects the driver backend: "mssql" (default), "postgres" or "sqlite".
	Kind string `mapstructure:"kind"`

	// Server is the host the backend connects to. For SQL Server this may
	// carry a named instance ("localhost\SQLEXPRESS") or a port ("db:1433").
	Server string `mapstructure:"server"`

	// Database is the database (catalog) name. For SQLite it is the file path.
	Database string `mapstructure:"database"`

	// User and Password are optional. When User is empty the SQL Server
	// backend falls back to integrated authentication.
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// Params carries extra driver parameters in URL query form, e.g.
	// "encrypt=disable&app name=sqlextract".
	Params string `mapstructure:"params"`

	// DSN, when set, is passed to the driver verbatim and the fields above
	// (except Kind) are ignored.
	DSN string `mapstructure:"dsn"`

	// ConnectTimeout bounds the initial ping. Zero disables the bound.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Query locates the SQL statement to execute.
type Query struct {
	SQLFilePath string `mapstructure:"sql_file_path"`
}

// Processing controls paging of the result set.
type Processing struct {
	// BatchSize is the maximum number of rows per fetched batch and therefore
	// per output file.
	BatchSize int `mapstructure:"batch_size"`

	// ContinueOnBatchError keeps fetching after a batch fails to serialize or
	// write. The run still ends as failed when any batch was lost.
	ContinueOnBatchError bool `mapstructure:"continue_on_batch_error"`
}

// Output controls naming and encoding of the produced Parquet files.
type Output struct {
	ExtractName     string `mapstructure:"extract_name"`
	OutputDirectory string `mapstructure:"output_directory"`
	Compression     string `mapstructure:"compression"`
	RowGroupSize    int    `mapstructure:"row_group_size"`
}

// Logging controls the per-run log file.
type Logging struct {
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

// Metrics selects an optional metrics backend.
type Metrics struct {
	// Backend is one of "none", "pushgateway" or "datadog".
	Backend        string `mapstructure:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	StatsdAddr     string `mapstructure:"statsd_addr"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Database: Database{
			Kind:           "mssql",
			Server:         `localhost\SQLEXPRESS`,
			Database:       "master",
			ConnectTimeout: 30 * time.Second,
		},
		Query: Query{
			SQLFilePath: "query.sql",
		},
		Processing: Processing{
			BatchSize: 1000,
		},
		Output: Output{
			ExtractName:     "DataExtract",
			OutputDirectory: "output",
			Compression:     "snappy",
			RowGroupSize:    10000,
		},
		Logging: Logging{
			Directory: "logs",
			Level:     "info",
		},
		Metrics: Metrics{
			Backend:        "none",
			PushgatewayURL: "http://localhost:9091",
			StatsdAddr:     "127.0.0.1:8125",
		},
	}
}

// ConfigError reports settings that are missing or unusable. It is always
// raised before any connection is attempted.
type ConfigError struct {
	// Path is the dotted key ("output.compression") or the config file path.
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
