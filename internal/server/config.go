package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jacksonlee411/contact-autofill/pkg/authz"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultCRMBaseURL     = "http://127.0.0.1:8090"
	defaultCRMRateLimit   = 10
	defaultCRMRateBurst   = 10
	appConfigPathEnvVar   = "APP_CONFIG_PATH"
	allowDisabledEnvValue = "1"
)

type Config struct {
	HTTPAddr       string      `yaml:"http_addr"`
	ConfigStoreDSN string      `yaml:"config_store_dsn"`
	AllowlistPath  string      `yaml:"routing_allowlist_path"`
	CRM            CRMConfig   `yaml:"crm"`
	Authz          AuthzConfig `yaml:"authz"`
}

type CRMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIToken       string  `yaml:"api_token"`
	APIVersion     string  `yaml:"api_version"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type AuthzConfig struct {
	Mode                string `yaml:"mode"`
	UnsafeAllowDisabled bool   `yaml:"unsafe_allow_disabled"`
	ModelPath           string `yaml:"model_path"`
	PolicyPath          string `yaml:"policy_path"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr: defaultHTTPAddr,
		CRM: CRMConfig{
			BaseURL:        defaultCRMBaseURL,
			RateLimitRPS:   defaultCRMRateLimit,
			RateLimitBurst: defaultCRMRateBurst,
		},
	}
}

// LoadConfig builds the process configuration: defaults, then the YAML file
// named by APP_CONFIG_PATH (if any), then environment overrides.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := os.Getenv(appConfigPathEnvVar); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := decodeConfigYAML(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeConfigYAML(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.AllowlistPath = getenvDefault("ROUTING_ALLOWLIST_PATH", cfg.AllowlistPath)
	if cfg.ConfigStoreDSN == "" || dbEnvSet() {
		cfg.ConfigStoreDSN = dbDSNFromEnv()
	}

	cfg.CRM.BaseURL = getenvDefault("CRM_BASE_URL", cfg.CRM.BaseURL)
	cfg.CRM.APIToken = getenvDefault("CRM_API_TOKEN", cfg.CRM.APIToken)
	cfg.CRM.APIVersion = getenvDefault("CRM_API_VERSION", cfg.CRM.APIVersion)
	if v := os.Getenv("CRM_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: invalid CRM_RATE_LIMIT_RPS %q", v)
		}
		cfg.CRM.RateLimitRPS = rps
	}
	if v := os.Getenv("CRM_RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid CRM_RATE_LIMIT_BURST %q", v)
		}
		cfg.CRM.RateLimitBurst = burst
	}

	cfg.Authz.Mode = getenvDefault("AUTHZ_MODE", cfg.Authz.Mode)
	if os.Getenv("AUTHZ_UNSAFE_ALLOW_DISABLED") == allowDisabledEnvValue {
		cfg.Authz.UnsafeAllowDisabled = true
	}
	cfg.Authz.ModelPath = getenvDefault("AUTHZ_MODEL_PATH", cfg.Authz.ModelPath)
	cfg.Authz.PolicyPath = getenvDefault("AUTHZ_POLICY_PATH", cfg.Authz.PolicyPath)
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: http_addr is required")
	}
	if c.CRM.RateLimitRPS < 0 {
		return errors.New("config: crm rate_limit_rps must not be negative")
	}
	if c.CRM.RateLimitRPS > 0 && c.CRM.RateLimitBurst < 1 {
		return errors.New("config: crm rate_limit_burst must be at least 1")
	}
	if _, err := c.AuthzMode(); err != nil {
		return err
	}
	return nil
}

func (c Config) AuthzMode() (authz.Mode, error) {
	return authz.ParseMode(c.Authz.Mode, c.Authz.UnsafeAllowDisabled)
}
