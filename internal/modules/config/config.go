package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"trade_mirror/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	defaultConfigFile = "values_local.yaml"
	envPrefix         = "MIRROR"

	// MaxTargets is the number of mirror slots exposed by the config surface.
	MaxTargets = 10

	PlatformPaper = "paper"
	PlatformOKX   = "okx"
)

// Config ...
type Config struct {
	Service struct {
		Name       string `yaml:"name" mapstructure:"name"`
		HealthAddr string `yaml:"health_addr" mapstructure:"health_addr"`
	} `yaml:"service" mapstructure:"service"`

	Log struct {
		Level       string `yaml:"level" mapstructure:"level"`
		Development bool   `yaml:"development" mapstructure:"development"`
	} `yaml:"log" mapstructure:"log"`

	Telegram struct {
		Token  string `yaml:"token" mapstructure:"token"`
		ChatID int64  `yaml:"chat_id" mapstructure:"chat_id"`
	} `yaml:"telegram" mapstructure:"telegram"`

	DB string `yaml:"db_dsn" mapstructure:"db_dsn"`

	Tracing struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Host    string `yaml:"host" mapstructure:"host"`
		Port    int    `yaml:"port" mapstructure:"port"`
	} `yaml:"tracing" mapstructure:"tracing"`

	Platform Platform `yaml:"platform" mapstructure:"platform"`
	Mirror   Mirror   `yaml:"mirror" mapstructure:"mirror"`
}

type Platform struct {
	Kind  string      `yaml:"kind" mapstructure:"kind"`
	OKX   OKX         `yaml:"okx" mapstructure:"okx"`
	Paper PaperConfig `yaml:"paper" mapstructure:"paper"`
}

type OKX struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	PublicWS  string `yaml:"public_ws" mapstructure:"public_ws"`
	PrivateWS string `yaml:"private_ws" mapstructure:"private_ws"`
	Simulated bool   `yaml:"simulated" mapstructure:"simulated"`
	// Accounts maps a configured account name to its API credentials.
	Accounts map[string]Credentials `yaml:"accounts" mapstructure:"accounts"`
}

type Credentials struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	APISecret  string `yaml:"api_secret" mapstructure:"api_secret"`
	Passphrase string `yaml:"passphrase" mapstructure:"passphrase"`
}

type PaperConfig struct {
	Accounts    []string          `yaml:"accounts" mapstructure:"accounts"`
	Instruments []PaperInstrument `yaml:"instruments" mapstructure:"instruments"`
}

type PaperInstrument struct {
	Name       string  `yaml:"name" mapstructure:"name"`
	TickSize   float64 `yaml:"tick_size" mapstructure:"tick_size"`
	PointValue float64 `yaml:"point_value" mapstructure:"point_value"`
	Price      float64 `yaml:"price" mapstructure:"price"`
}

type Mirror struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	AlertOnDesync bool `yaml:"alert_on_desync" mapstructure:"alert_on_desync"`

	PrimaryAccount    string `yaml:"primary_account" mapstructure:"primary_account"`
	PrimaryInstrument string `yaml:"primary_instrument" mapstructure:"primary_instrument"`

	Risk struct {
		Mode       string  `yaml:"mode" mapstructure:"mode"` // dollars | ticks
		StopLoss   float64 `yaml:"stop_loss" mapstructure:"stop_loss"`
		TakeProfit float64 `yaml:"take_profit" mapstructure:"take_profit"`
	} `yaml:"risk" mapstructure:"risk"`

	Debounce         time.Duration `yaml:"debounce" mapstructure:"debounce"`
	UseAtomicBracket bool          `yaml:"use_atomic_bracket" mapstructure:"use_atomic_bracket"`
	PollInterval     time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxParallel      int           `yaml:"max_parallel" mapstructure:"max_parallel"`

	Targets []Target `yaml:"targets" mapstructure:"targets"`
}

type Target struct {
	Instrument string `yaml:"instrument" mapstructure:"instrument"`
	Account    string `yaml:"account" mapstructure:"account"`
	Direction  string `yaml:"direction" mapstructure:"direction"` // same | opposite
	Multiplier int    `yaml:"multiplier" mapstructure:"multiplier"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "trade-mirror")
	v.SetDefault("service.health_addr", ":8081")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("db_dsn", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("platform.kind", PlatformPaper)
	v.SetDefault("platform.okx.base_url", "https://www.okx.com")
	v.SetDefault("platform.okx.public_ws", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("platform.okx.private_ws", "wss://ws.okx.com:8443/ws/v5/private")
	v.SetDefault("platform.okx.simulated", false)

	v.SetDefault("mirror.enabled", true)
	v.SetDefault("mirror.alert_on_desync", true)
	v.SetDefault("mirror.primary_account", "")
	v.SetDefault("mirror.primary_instrument", "")
	v.SetDefault("mirror.risk.mode", "dollars")
	v.SetDefault("mirror.risk.stop_loss", 0)
	v.SetDefault("mirror.risk.take_profit", 0)
	v.SetDefault("mirror.debounce", time.Second)
	v.SetDefault("mirror.use_atomic_bracket", true)
	v.SetDefault("mirror.poll_interval", 5*time.Second)
	v.SetDefault("mirror.max_parallel", 4)
}

// NewConfig reads configs/$CONFIG_FILE (values_local.yaml by default), then
// applies MIRROR_* environment overrides, e.g. MIRROR_TELEGRAM_TOKEN or
// MIRROR_MIRROR_ENABLED. A .env file in the working directory is loaded first.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = defaultConfigFile
	}
	dir := os.Getenv(configDirENV)
	if dir == "" {
		dir = "configs"
	}
	return Load(filepath.Join(dir, name))
}

// Load reads one config file with defaults and environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the mirror section. It does not touch the platform.
func (c *Config) Validate() error {
	m := c.Mirror
	if strings.TrimSpace(m.PrimaryAccount) == "" {
		return errors.New("mirror.primary_account is required")
	}
	if strings.TrimSpace(m.PrimaryInstrument) == "" {
		return errors.New("mirror.primary_instrument is required")
	}
	if _, err := models.ParseRiskMode(m.Risk.Mode); err != nil {
		return errors.Wrap(err, "mirror.risk.mode")
	}
	if len(m.Targets) > MaxTargets {
		return errors.Errorf("mirror.targets: at most %d targets, got %d", MaxTargets, len(m.Targets))
	}
	for i, t := range m.Targets {
		if _, err := models.ParseDirection(t.Direction); err != nil {
			return errors.Wrapf(err, "mirror.targets[%d].direction", i)
		}
		if strings.EqualFold(t.Account, m.PrimaryAccount) && strings.EqualFold(t.Instrument, m.PrimaryInstrument) {
			return errors.Errorf("mirror.targets[%d] mirrors the primary onto itself", i)
		}
	}
	switch c.Platform.Kind {
	case PlatformPaper, PlatformOKX:
	default:
		return errors.Errorf("platform.kind: unknown value %q", c.Platform.Kind)
	}
	return nil
}

const redacted = "***"

// Dump renders the effective config as YAML with secrets masked.
func (c *Config) Dump() ([]byte, error) {
	cp := *c
	if cp.Telegram.Token != "" {
		cp.Telegram.Token = redacted
	}
	if cp.DB != "" {
		cp.DB = redacted
	}
	if len(c.Platform.OKX.Accounts) > 0 {
		cp.Platform.OKX.Accounts = make(map[string]Credentials, len(c.Platform.OKX.Accounts))
		for name, cr := range c.Platform.OKX.Accounts {
			cp.Platform.OKX.Accounts[name] = Credentials{APIKey: mask(cr.APIKey), APISecret: mask(cr.APISecret), Passphrase: mask(cr.Passphrase)}
		}
	}
	bs, err := yaml.Marshal(&cp)
	if err != nil {
		return nil, errors.Wrap(err, "marshal config to yaml")
	}
	return bs, nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}
