package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/larriantoniy/tg_autojoin_bot/internal/domain"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"

	BackendFile  = "file"
	BackendRedis = "redis"
)

type AppConfig struct {
	Env string `yaml:"env" env:"ENV" env-default:"prod"`

	BotToken         string `yaml:"bot_token" env:"BOT_TOKEN" env-required:"true"`
	AuthorizedUserID int64  `yaml:"authorized_user_id" env:"AUTHORIZED_USER_ID" env-required:"true"`
	ApiID            int32  `yaml:"api_id" env:"API_ID" env-required:"true"`
	ApiHash          string `yaml:"api_hash" env:"API_HASH" env-required:"true"`

	DataDir           string `yaml:"data_dir" env:"DATA_DIR" env-default:"./data"`
	JoinDelaySeconds  int    `yaml:"join_delay_seconds" env:"JOIN_DELAY_SECONDS" env-default:"3"`
	LeaveDelaySeconds int    `yaml:"leave_delay_seconds" env:"LEAVE_DELAY_SECONDS" env-default:"2"`

	StoreBackend string      `yaml:"store_backend" env:"STORE_BACKEND" env-default:"file"`
	Redis        RedisConfig `yaml:"redis"`
	Proxy        ProxyConfig `yaml:"proxy"`
	Log          LogConfig   `yaml:"log"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type ProxyConfig struct {
	Server   string `yaml:"server" env:"PROXY_SERVER"`
	Port     int32  `yaml:"port" env:"PROXY_PORT"`
	Username string `yaml:"username" env:"PROXY_USERNAME"`
	Password string `yaml:"password" env:"PROXY_PASSWORD"`
}

func (p ProxyConfig) Enabled() bool {
	return p.Server != "" && p.Port != 0
}

type LogConfig struct {
	MaxSizeMB  int `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"10"`
	MaxBackups int `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"30"`
}

func (c *AppConfig) JoinDelay() time.Duration {
	return time.Duration(c.JoinDelaySeconds) * time.Second
}

func (c *AppConfig) LeaveDelay() time.Duration {
	return time.Duration(c.LeaveDelaySeconds) * time.Second
}

func (c *AppConfig) SessionsDir() string { return filepath.Join(c.DataDir, "sessions") }

func (c *AppConfig) LogsDir() string { return filepath.Join(c.DataDir, "logs") }

func (c *AppConfig) ErrorLogPath() string { return filepath.Join(c.LogsDir(), "error_log.txt") }

func (c *AppConfig) LedgerPath() string { return filepath.Join(c.DataDir, "joined_channels.json") }

func (c *AppConfig) ProfilesPath() string { return filepath.Join(c.DataDir, "sessions_info.json") }

func (c *AppConfig) TDLibDir() string { return filepath.Join(c.DataDir, "tdlib") }

// Load читает конфиг: файл из -config / CONFIG_PATH / <DATA_DIR>/.env, поверх, переменные окружения
func Load() (*AppConfig, error) {
	return LoadPath(fetchConfigPath())
}

// LoadPath: то же, что Load, но путь задан явно; пустой путь, только окружение
func LoadPath(path string) (*AppConfig, error) {
	if path == "" {
		path = defaultEnvFile()
	}

	var cfg AppConfig
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, domain.E(domain.KindConfiguration, "load config", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, domain.E(domain.KindConfiguration, "validate config", err)
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	var errs []error
	if strings.TrimSpace(c.BotToken) == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.AuthorizedUserID == 0 {
		errs = append(errs, errors.New("AUTHORIZED_USER_ID is required"))
	}
	if c.ApiID == 0 || strings.TrimSpace(c.ApiHash) == "" {
		errs = append(errs, errors.New("API_ID and API_HASH are required"))
	}
	if c.JoinDelaySeconds < 0 || c.LeaveDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("delays must be >= 0: join=%d leave=%d", c.JoinDelaySeconds, c.LeaveDelaySeconds))
	}
	if c.StoreBackend != BackendFile && c.StoreBackend != BackendRedis {
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q: got %q", BackendFile, BackendRedis, c.StoreBackend))
	}
	if c.Env != EnvDev && c.Env != EnvProd {
		errs = append(errs, fmt.Errorf("ENV must be %q or %q: got %q", EnvDev, EnvProd, c.Env))
	}
	return errors.Join(errs...)
}

// defaultEnvFile: <DATA_DIR>/.env, если он есть
func defaultEnvFile() string {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	path := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file (.yaml or .env)")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
