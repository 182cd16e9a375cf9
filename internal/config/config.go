package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ImageBackendDisk = "disk"
	ImageBackendS3   = "s3"
)

// Config holds process settings. Values come from defaults, then the YAML
// file named by ACCOUNTS_CONFIG, then ACCOUNTS_* environment variables.
type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	BaseURL   string `yaml:"base_url"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	SessionTTL    time.Duration `yaml:"session_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
	// TrustedProxies are addresses or CIDR ranges of reverse proxies whose
	// forwarding headers identify the client.
	TrustedProxies []string `yaml:"trusted_proxies"`

	Postmark PostmarkConfig `yaml:"postmark"`
	Images   ImageConfig    `yaml:"images"`
}

type PostmarkConfig struct {
	Token string `yaml:"token"`
	From  string `yaml:"from"`
}

type ImageConfig struct {
	Backend   string   `yaml:"backend"`
	UploadDir string   `yaml:"upload_dir"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

func Default() *Config {
	return &Config{
		Port:          "3000",
		DBPath:        "accounts.db",
		LogLevel:      "info",
		LogFormat:     "text",
		SessionTTL:    7 * 24 * time.Hour,
		SweepInterval: time.Hour,
		RateLimit:     10,
		RateWindow:    time.Minute,
		Images: ImageConfig{
			Backend:   ImageBackendDisk,
			UploadDir: "uploads",
			S3:        S3Config{Region: "us-east-1"},
		},
	}
}

// Load reads a .env file if present, then builds the configuration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("ACCOUNTS_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.Port, "ACCOUNTS_PORT")
	setString(&c.DBPath, "ACCOUNTS_DB_PATH")
	setString(&c.BaseURL, "ACCOUNTS_BASE_URL")
	setString(&c.LogLevel, "ACCOUNTS_LOG_LEVEL")
	setString(&c.LogFormat, "ACCOUNTS_LOG_FORMAT")
	setString(&c.Postmark.Token, "ACCOUNTS_POSTMARK_TOKEN")
	setString(&c.Postmark.From, "ACCOUNTS_FROM_EMAIL")
	setString(&c.Images.Backend, "ACCOUNTS_IMAGE_BACKEND")
	setString(&c.Images.UploadDir, "ACCOUNTS_UPLOAD_DIR")
	setString(&c.Images.S3.Endpoint, "ACCOUNTS_S3_ENDPOINT")
	setString(&c.Images.S3.Bucket, "ACCOUNTS_S3_BUCKET")
	setString(&c.Images.S3.Region, "ACCOUNTS_S3_REGION")
	setString(&c.Images.S3.AccessKey, "ACCOUNTS_S3_ACCESS_KEY")
	setString(&c.Images.S3.SecretKey, "ACCOUNTS_S3_SECRET_KEY")
	setString(&c.Images.S3.Prefix, "ACCOUNTS_S3_PREFIX")
	setList(&c.TrustedProxies, "ACCOUNTS_TRUSTED_PROXIES")

	return errors.Join(
		setDuration(&c.SessionTTL, "ACCOUNTS_SESSION_TTL"),
		setDuration(&c.SweepInterval, "ACCOUNTS_SWEEP_INTERVAL"),
		setDuration(&c.RateWindow, "ACCOUNTS_RATE_WINDOW"),
		setInt(&c.RateLimit, "ACCOUNTS_RATE_LIMIT"),
	)
}

func (c *Config) Validate() error {
	var errs []error
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		errs = append(errs, errors.New("rate_limit and rate_window must be positive"))
	}
	switch c.Images.Backend {
	case ImageBackendDisk:
		if c.Images.UploadDir == "" {
			errs = append(errs, errors.New("images.upload_dir is required for the disk backend"))
		}
	case ImageBackendS3:
		if c.Images.S3.Bucket == "" {
			errs = append(errs, errors.New("images.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown image backend %q", c.Images.Backend))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// setList splits a comma-separated variable, dropping empty entries.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var list []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	*dst = list
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
