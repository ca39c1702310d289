package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ipwarden/internal/support"
)

type Config struct {
	Lists struct {
		Dir       string `json:"dir"`
		ListFile  string `json:"list_file"`
		TableFile string `json:"table_file"`
	} `json:"lists"`

	// Workers bounds the whitelist scan; 0 means one per CPU.
	Workers int `json:"workers"`

	LogAPI struct {
		URL               string  `json:"url"`
		SecretEnv         string  `json:"secret_env"`
		RequestsPerSecond float64 `json:"requests_per_second"`
	} `json:"log_api"`

	Fetch struct {
		Timeout           Timer   `json:"timeout"`
		ProxyURL          string  `json:"proxy_url"`
		RequestsPerSecond float64 `json:"requests_per_second"`
	} `json:"fetch"`

	Whitelist struct {
		Sources []string `json:"sources"`
		Files   []string `json:"files"`
	} `json:"whitelist"`

	GeoLite struct {
		CountryDB     string `json:"country_db"`
		LicenseKeyEnv string `json:"license_key_env"`
	} `json:"geolite"`

	Report struct {
		Category  string `json:"category"`
		OutputDir string `json:"output_dir"`
	} `json:"report"`

	Redis struct {
		URL     string `json:"url"`
		LockKey string `json:"lock_key"`
		LockTTL Timer  `json:"lock_ttl"`
	} `json:"redis"`
}

const (
	defaultSecretEnv   = "MALICIOUS_IPS_LIST_SECRET"
	defaultFetchTimeout = 25 * time.Second
	defaultLockTTL     = 10 * time.Minute
)

var (
	//go:embed default_settings.json
	defaultConfig []byte

	ErrMissingSecret = errors.New("config: log api secret is not set")
)

// Default returns the embedded settings.
func Default() Config {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load reads the settings file at path on top of the embedded defaults and
// applies environment overrides. An empty path or a missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse settings %s: %w", path, err)
			}
			log.Debug("Settings file loaded successfully", "path", path)
		case errors.Is(err, os.ErrNotExist):
			log.Warn("Settings file not found, using default configuration", "path", path)
		default:
			return Config{}, fmt.Errorf("read settings %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Lists.Dir = support.GetEnv("IPWARDEN_LISTS_DIR", cfg.Lists.Dir)
	cfg.Workers = support.GetEnvInt("IPWARDEN_WORKERS", cfg.Workers)
	cfg.Whitelist.Sources = support.GetEnvList("IPWARDEN_WHITELIST_SOURCES", cfg.Whitelist.Sources)
	cfg.LogAPI.URL = support.GetEnv("IPWARDEN_LOG_API_URL", cfg.LogAPI.URL)
	cfg.Fetch.ProxyURL = support.GetEnv("IPWARDEN_FETCH_PROXY", cfg.Fetch.ProxyURL)
	cfg.GeoLite.CountryDB = support.GetEnv("GEOLITE_COUNTRY_DB", cfg.GeoLite.CountryDB)
	cfg.Redis.URL = support.GetEnv("REDIS_URL", cfg.Redis.URL)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Lists.Dir) == "" {
		errs = append(errs, errors.New("lists.dir must not be empty"))
	}
	if strings.TrimSpace(c.Lists.ListFile) == "" || strings.TrimSpace(c.Lists.TableFile) == "" {
		errs = append(errs, errors.New("lists.list_file and lists.table_file must not be empty"))
	} else if c.Lists.ListFile == c.Lists.TableFile {
		errs = append(errs, errors.New("lists.list_file and lists.table_file must differ"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.LogAPI.RequestsPerSecond < 0 || c.Fetch.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests_per_second must be >= 0"))
	}
	if c.Redis.URL != "" && strings.TrimSpace(c.Redis.LockKey) == "" {
		errs = append(errs, errors.New("redis.lock_key must be set when redis.url is"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) ListPath() string {
	return filepath.Join(c.Lists.Dir, c.Lists.ListFile)
}

func (c Config) TablePath() string {
	return filepath.Join(c.Lists.Dir, c.Lists.TableFile)
}

func (c Config) FetchTimeout() time.Duration {
	return c.Fetch.Timeout.Duration(defaultFetchTimeout)
}

func (c Config) LockTTL() time.Duration {
	return c.Redis.LockTTL.Duration(defaultLockTTL)
}

// APISecret returns the log API key from the configured environment variable.
func (c Config) APISecret() (string, error) {
	name := c.LogAPI.SecretEnv
	if name == "" {
		name = defaultSecretEnv
	}
	secret := strings.TrimSpace(os.Getenv(name))
	if secret == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingSecret, name)
	}
	return secret, nil
}

func (c Config) GeoLiteLicenseKey() string {
	if c.GeoLite.LicenseKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.GeoLite.LicenseKeyEnv))
}
