package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "SQLEXTRACT"

// defaultINI is written when the requested config file does not exist.
// Comments stay on their own lines; inline comments are not portable
// across INI readers.
const defaultINI = `; sqlextract configuration
[Database]
; mssql | postgres | sqlite
kind = mssql
server = localhost\SQLEXPRESS
database = master
user =
password =
params =
dsn =
connect_timeout = 30s

[Query]
sql_file_path = query.sql

[Processing]
batch_size = 1000
continue_on_batch_error = false

[Output]
extract_name = DataExtract
output_directory = output
; none | snappy | gzip
compression = snappy
row_group_size = 10000

[Logging]
directory = logs
level = info

[Metrics]
; none | pushgateway | datadog
backend = none
pushgateway_url = http://localhost:9091
statsd_addr = 127.0.0.1:8125
`

// LoadResult describes how a configuration was obtained.
type LoadResult struct {
	Config Config

	// Created is true when the file did not exist and a default one was
	// written in its place.
	Created bool
}

// Load reads the INI file at path and applies environment overrides.
//
// When path does not exist the defaults are used and written to path so the
// operator has a file to edit; Created reports that case. Decoding problems
// (for example a non-numeric batch_size) are returned as *ConfigError.
func Load(path string) (LoadResult, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("ini")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	created := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeDefault(path); err != nil {
			return LoadResult{}, &ConfigError{Path: path, Err: err}
		}
		created = true
	} else if err != nil {
		return LoadResult{}, &ConfigError{Path: path, Err: err}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return LoadResult{}, &ConfigError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return LoadResult{}, &ConfigError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}

	normalize(&cfg)
	return LoadResult{Config: cfg, Created: created}, nil
}

func writeDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultINI), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// normalize trims values and lower-cases enumerations so validation and the
// backends see canonical spellings.
func normalize(c *Config) {
	c.Database.Kind = strings.ToLower(strings.TrimSpace(c.Database.Kind))
	c.Database.Server = strings.TrimSpace(c.Database.Server)
	c.Database.Database = strings.TrimSpace(c.Database.Database)
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	c.Query.SQLFilePath = strings.TrimSpace(c.Query.SQLFilePath)
	c.Output.ExtractName = strings.TrimSpace(c.Output.ExtractName)
	c.Output.OutputDirectory = strings.TrimSpace(c.Output.OutputDirectory)
	c.Output.Compression = strings.ToLower(strings.TrimSpace(c.Output.Compression))
	c.Logging.Directory = strings.TrimSpace(c.Logging.Directory)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Metrics.Backend = strings.ToLower(strings.TrimSpace(c.Metrics.Backend))
}

// setDefaults registers every leaf of cfg as a viper default. Registering the
// keys is also what lets AutomaticEnv resolve them during Unmarshal.
func setDefaults(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			setDefaults(v, val.Field(i).Interface(), key...)
			continue
		}
		v.SetDefault(strings.Join(key, "."), val.Field(i).Interface())
	}
}
