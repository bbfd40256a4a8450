package config

import (
	"fmt"
	"os"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"marketcore/internal/errors"
	"marketcore/pkg/contracts/domain"
)

// EnvPrefix namespaces every environment variable, e.g.
// MARKETCORE_LOAD_CONCURRENCY_LIMIT.
const EnvPrefix = "MARKETCORE"

// Config represents the complete application configuration
type Config struct {
	Load       LoadOptions       `yaml:"load" envconfig:"LOAD"`
	Validation ValidationOptions `yaml:"validation" envconfig:"VALIDATION"`
	Logging    LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Telemetry  TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
	Store      StoreConfig       `yaml:"store" envconfig:"STORE"`
}

// LoadOptions controls the data loading service
type LoadOptions struct {
	FormatHint string `yaml:"format_hint" envconfig:"FORMAT_HINT" validate:"omitempty,formathint"`
	// ConcurrencyLimit caps parallel source loads; zero means runtime.NumCPU().
	ConcurrencyLimit int `yaml:"concurrency_limit" envconfig:"CONCURRENCY_LIMIT" validate:"gte=0,lte=1024"`
	// PerSourceTimeout bounds each reader attempt; zero disables it.
	PerSourceTimeout time.Duration `yaml:"per_source_timeout" envconfig:"PER_SOURCE_TIMEOUT" validate:"gte=0"`
	Recursive        bool          `yaml:"recursive" envconfig:"RECURSIVE"`
	// CacheSize is the number of loaded tables kept in memory; zero disables caching.
	CacheSize int `yaml:"cache_size" envconfig:"CACHE_SIZE" validate:"gte=0"`
	// ReadsPerSecond throttles file reads; zero means unlimited.
	ReadsPerSecond float64 `yaml:"reads_per_second" envconfig:"READS_PER_SECOND" validate:"gte=0"`
	CSVSampleRows  int     `yaml:"csv_sample_rows" envconfig:"CSV_SAMPLE_ROWS" validate:"gte=0"`
}

// Workers returns the effective concurrency limit
func (o LoadOptions) Workers() int {
	if o.ConcurrencyLimit <= 0 {
		return runtime.NumCPU()
	}
	return o.ConcurrencyLimit
}

// ValidationOptions controls the validators
type ValidationOptions struct {
	Mode string `yaml:"mode" envconfig:"MODE" validate:"oneof=full schemaOnly consistencyOnly"`
	// RequiredColumns replaces the default OHLCV required set when non-empty.
	RequiredColumns []string `yaml:"required_columns" envconfig:"REQUIRED_COLUMNS" validate:"dive,required"`
	// ColumnTypes declares expected types by column name.
	ColumnTypes      map[string]string `yaml:"column_types" envconfig:"COLUMN_TYPES" validate:"dive,keys,required,endkeys,columntype"`
	SampleIssueLimit int               `yaml:"sample_issue_limit" envconfig:"SAMPLE_ISSUE_LIMIT" validate:"gte=1"`
}

// ValidationMode returns the parsed mode
func (o ValidationOptions) ValidationMode() domain.ValidationMode {
	m, err := domain.ParseValidationMode(o.Mode)
	if err != nil {
		return domain.ModeFull
	}
	return m
}

// Schema builds the declared schema. Without overrides it is the OHLCV
// schema; RequiredColumns and ColumnTypes replace or extend it.
func (o ValidationOptions) Schema() domain.Schema {
	base := domain.OHLCVSchema()
	if len(o.RequiredColumns) == 0 && len(o.ColumnTypes) == 0 {
		return base
	}

	known := make(map[string]domain.ColumnSpec, len(base.Columns))
	for _, c := range base.Columns {
		known[strings.ToLower(c.Name)] = c
	}

	var out domain.Schema
	seen := make(map[string]bool)
	add := func(name string, required bool) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		spec, ok := known[key]
		if !ok {
			// untyped columns are only checked for presence
			spec = domain.ColumnSpec{Name: strings.TrimSpace(name)}
		}
		spec.Required = required
		if raw, ok := lookupFold(o.ColumnTypes, key); ok {
			if t, err := domain.ParseColumnType(raw); err == nil {
				spec.Type = t
			}
		}
		out.Columns = append(out.Columns, spec)
	}

	if len(o.RequiredColumns) > 0 {
		for _, name := range o.RequiredColumns {
			add(name, true)
		}
	} else {
		for _, c := range base.Columns {
			add(c.Name, c.Required)
		}
	}
	// typed but not required columns are checked when present
	names := make([]string, 0, len(o.ColumnTypes))
	for name := range o.ColumnTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(name, false)
	}
	return out
}

func lookupFold(m map[string]string, key string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v, true
		}
	}
	return "", false
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	// Output is console, file or both.
	Output     string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath   string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" envconfig:"MAX_BACKUPS" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"MAX_AGE_DAYS" validate:"gte=0"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	// TraceStdout prints spans to stdout.
	TraceStdout bool `yaml:"trace_stdout" envconfig:"TRACE_STDOUT"`
	// MetricsAddr serves /metrics and run history while watching.
	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR" validate:"omitempty,hostname_port"`
}

// StoreConfig selects the load history backend
type StoreConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER" validate:"oneof=memory sqlite"`
	Path   string `yaml:"path" envconfig:"DB_PATH" validate:"required_if=Driver sqlite"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Load: LoadOptions{
			PerSourceTimeout: 30 * time.Second,
			CSVSampleRows:    100,
		},
		Validation: ValidationOptions{
			Mode:             string(domain.ModeFull),
			SampleIssueLimit: 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "console",
			FilePath:   "logs/marketcore.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			ServiceName: "marketcore",
		},
		Store: StoreConfig{
			Driver: "memory",
			Path:   "data/history.db",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file (if any),
// then MARKETCORE_* environment variables. An empty path searches the
// usual locations.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile(SearchDirs())
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, errors.NewConfigError(fmt.Sprintf("failed to load config file %s", path), err)
		}
	}

	// unset variables leave file and default values untouched
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// Validate checks every section and reports all problems as one ConfigError.
func (c *Config) Validate() error {
	return validateStruct(c)
}

// ValidateLoad checks load options supplied directly by a library caller.
func ValidateLoad(o LoadOptions) error { return validateStruct(o) }

// ValidateValidation checks validation options supplied by a library caller.
func ValidateValidation(o ValidationOptions) error { return validateStruct(o) }

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("formathint", func(fl validator.FieldLevel) bool {
		return domain.ParseFormatHint(fl.Field().String()) != domain.FormatUnknown
	})
	_ = v.RegisterValidation("columntype", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseColumnType(fl.Field().String())
		return err == nil
	})
	// report yaml names in messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func validateStruct(s interface{}) error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.NewConfigError("invalid configuration", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return errors.NewConfigError(strings.Join(msgs, "; "), nil)
}

// formatFieldError formats validation error messages
func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	param := fe.Param()

	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "formathint":
		return fmt.Sprintf("%s %q is not a supported format", field, fe.Value())
	case "columntype":
		return fmt.Sprintf("%s %q is not a column type", field, fe.Value())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
