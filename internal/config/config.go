package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. NOWCAST_RUN_Y_VAR
const EnvPrefix = "NOWCAST"

// Config represents the complete application configuration
type Config struct {
	Run       RunConfig       `yaml:"run" envconfig:"RUN" json:"run"`
	Selection SelectionConfig `yaml:"selection" envconfig:"SELECTION" json:"selection"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE" json:"cache"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS" json:"-"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING" json:"-"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY" json:"-"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER" json:"-"`
}

// RunConfig holds the parameters of one evaluation run
type RunConfig struct {
	Start        Date     `yaml:"start_date" envconfig:"START_DATE" json:"start_date"`
	End          Date     `yaml:"end_date" envconfig:"END_DATE" json:"end_date"`
	NowcastStart Date     `yaml:"nowcast_start" envconfig:"NOWCAST_START" json:"nowcast_start"`
	YVar         string   `yaml:"y_var" envconfig:"Y_VAR" json:"y_var" validate:"required"`
	Lags         int      `yaml:"lags" envconfig:"LAGS" json:"lags" validate:"min=0"`
	YVarLags     int      `yaml:"y_var_lags" envconfig:"Y_VAR_LAGS" json:"y_var_lags" validate:"min=0"`
	Horizons     []string `yaml:"horizons" envconfig:"HORIZONS" json:"horizons" validate:"required,min=1,dive,required"`
	Mapping      string   `yaml:"mapping" envconfig:"MAPPING" json:"mapping" validate:"required"`
	LagKind      string   `yaml:"lag_kind" envconfig:"LAG_KIND" json:"lag_kind"`
	WindowLength int      `yaml:"window_length" envconfig:"WINDOW_LENGTH" json:"window_length" validate:"min=0"`
	DropVars     []string `yaml:"drop_vars" envconfig:"DROP_VARS" json:"drop_vars,omitempty"`

	Stationarity StationarityConfig `yaml:"stationarity" envconfig:"STATIONARITY" json:"stationarity"`
	Impute       bool               `yaml:"impute" envconfig:"IMPUTE" json:"impute"`
	ImputeMethod string             `yaml:"impute_method" envconfig:"IMPUTE_METHOD" json:"impute_method,omitempty"`
}

// StationarityConfig configures the stationarity filter
type StationarityConfig struct {
	TransformAll bool    `yaml:"transform_all" envconfig:"TRANSFORM_ALL" json:"transform_all"`
	Confidence   float64 `yaml:"confidence" envconfig:"CONFIDENCE" json:"confidence" validate:"gt=0,lt=1"`
	WindowEnd    string  `yaml:"window_end" envconfig:"WINDOW_END" json:"window_end"`
	MaxLag       int     `yaml:"max_lag" envconfig:"MAX_LAG" json:"max_lag"`
}

// SelectionConfig configures variable selection and model sizing
type SelectionConfig struct {
	Policy    string    `yaml:"policy" envconfig:"POLICY" json:"policy" validate:"required"`
	Folds     int       `yaml:"folds" envconfig:"FOLDS" json:"folds" validate:"min=2"`
	Alphas    []float64 `yaml:"alphas" envconfig:"ALPHAS" json:"alphas,omitempty" validate:"dive,gt=0"`
	L1Ratio   float64   `yaml:"l1_ratio" envconfig:"L1_RATIO" json:"l1_ratio" validate:"gt=0,lte=1"`
	Rule      string    `yaml:"rule" envconfig:"RULE" json:"rule" validate:"oneof=min 1se"`
	K         int       `yaml:"k" envconfig:"K" json:"k" validate:"min=1"`
	Threshold float64   `yaml:"threshold" envconfig:"THRESHOLD" json:"threshold" validate:"gt=0,lt=1"`
	MaxIter   int       `yaml:"max_iter" envconfig:"MAX_ITER" json:"max_iter" validate:"min=1"`
	Criteria  []string  `yaml:"criteria" envconfig:"CRITERIA" json:"criteria" validate:"required,min=1,dive,oneof=bic aic"`
	ARLags    int       `yaml:"ar_lags" envconfig:"AR_LAGS" json:"ar_lags" validate:"min=1"`
}

// CacheConfig selects the model cache backend
type CacheConfig struct {
	Backend     string `yaml:"backend" envconfig:"BACKEND" json:"backend" validate:"oneof=file sqlite redis memory"`
	Dir         string `yaml:"dir" envconfig:"DIR" json:"-"`
	DSN         string `yaml:"dsn" envconfig:"DSN" json:"-"`
	RedisAddr   string `yaml:"redis_addr" envconfig:"REDIS_ADDR" json:"-"`
	RedisDB     int    `yaml:"redis_db" envconfig:"REDIS_DB" json:"-"`
	RedisPrefix string `yaml:"redis_prefix" envconfig:"REDIS_PREFIX" json:"-"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	InputDir   string `yaml:"input_dir" envconfig:"INPUT_DIR" validate:"required"`
	ResultsDir string `yaml:"results_dir" envconfig:"RESULTS_DIR" validate:"required"`
	CacheDir   string `yaml:"cache_dir" envconfig:"CACHE_DIR" validate:"required"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// ServerConfig contains the results server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// RateLimitRPS of zero disables request rate limiting
	RateLimitRPS   float64 `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst int     `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" validate:"gte=0"`
	IncludeStack   bool    `yaml:"include_stack" envconfig:"INCLUDE_STACK"`
}

// Load builds the configuration from defaults, then the YAML file at path
// when one is given, then NOWCAST_* environment variables. Environment
// values win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Paths.resolve(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = cfg.Paths.CacheDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile decodes the YAML file over cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

var validate = validator.New()

// Validate checks struct constraints, then the domain rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fieldError(err)
	}
	return c.checkDomain()
}

// Default returns a complete default configuration
func Default() *Config {
	return &Config{
		Run: RunConfig{
			YVar:         "gdp",
			Lags:         4,
			YVarLags:     2,
			Horizons:     []string{"p1", "p2", "p3"},
			Mapping:      "periods_3",
			LagKind:      "nl_nc",
			Stationarity: StationarityConfig{Confidence: 0.95, WindowEnd: "nowcast_start", MaxLag: -1},
			ImputeMethod: "linear",
		},
		Selection: SelectionConfig{
			Policy:    "lasso",
			Folds:     5,
			L1Ratio:   0.5,
			Rule:      "min",
			K:         5,
			Threshold: 0.05,
			MaxIter:   1000,
			Criteria:  []string{"bic", "aic"},
			ARLags:    4,
		},
		Cache: CacheConfig{
			Backend:     "file",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "nowcast:",
		},
		Paths: PathsConfig{
			InputDir:   "data/input",
			ResultsDir: "data/results",
			CacheDir:   "data/cache",
			LogsDir:    "logs",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/nowcast.log",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "nowcast",
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
	}
}
