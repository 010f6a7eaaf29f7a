package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/employer"
)

// Config holds the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Advance AdvanceConfig `yaml:"advance" mapstructure:"advance"`
	Risk    RiskConfig    `yaml:"risk" mapstructure:"risk"`
	Payroll PayrollConfig `yaml:"payroll" mapstructure:"payroll"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StoreConfig points at the SQLite database. ":memory:" keeps nothing on disk.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
}

// AdvanceConfig configures advance pricing.
type AdvanceConfig struct {
	DefaultMaxPercentage float64 `yaml:"default_max_percentage" mapstructure:"default_max_percentage"`
	FeeBasis             string  `yaml:"fee_basis" mapstructure:"fee_basis"`
}

// RiskConfig configures the risk model and the periodic review.
type RiskConfig struct {
	ModelPath           string        `yaml:"model_path" mapstructure:"model_path"`
	ReviewInterval      time.Duration `yaml:"review_interval" mapstructure:"review_interval"`
	ReviewCheckInterval time.Duration `yaml:"review_check_interval" mapstructure:"review_check_interval"`
}

// PayrollConfig configures payroll upload evaluation.
type PayrollConfig struct {
	StrictCalendarDays bool `yaml:"strict_calendar_days" mapstructure:"strict_calendar_days"`
	Workers            int  `yaml:"workers" mapstructure:"workers"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EWA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("store.path", "advance.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("advance.default_max_percentage", 50)
	v.SetDefault("advance.fee_basis", string(advance.FeeBasisEmployer))
	v.SetDefault("risk.model_path", "")
	v.SetDefault("risk.review_interval", "8760h")
	v.SetDefault("risk.review_check_interval", "1h")
	v.SetDefault("payroll.strict_calendar_days", false)
	v.SetDefault("payroll.workers", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Store.Path == "" {
		return eris.New("config: store.path is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return eris.New("config: auth.token_ttl must be positive")
	}
	if c.Advance.DefaultMaxPercentage <= 0 || c.Advance.DefaultMaxPercentage > 100 {
		return eris.Errorf("config: advance.default_max_percentage %v must be in (0, 100]", c.Advance.DefaultMaxPercentage)
	}
	if !advance.FeeBasis(c.Advance.FeeBasis).Valid() {
		return eris.Errorf("config: advance.fee_basis %q must be employer or blended", c.Advance.FeeBasis)
	}
	if c.Risk.ReviewInterval <= 0 || c.Risk.ReviewCheckInterval <= 0 {
		return eris.New("config: risk review intervals must be positive")
	}
	if c.Payroll.Workers < 1 {
		return eris.New("config: payroll.workers must be at least 1")
	}
	return nil
}

// EmployerOptions maps the payroll and risk settings onto the employer service.
func (c *Config) EmployerOptions() employer.Options {
	opts := employer.DefaultOptions()
	opts.DefaultMaxAdvancePercentage = decimal.NewFromFloat(c.Advance.DefaultMaxPercentage)
	opts.StrictCalendarDays = c.Payroll.StrictCalendarDays
	opts.PayrollWorkers = c.Payroll.Workers
	opts.ReviewInterval = c.Risk.ReviewInterval
	return opts
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
