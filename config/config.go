package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bititec-mailer/utils"
)

const (
	ProviderSendGrid = "sendgrid"
	ProviderResend   = "resend"
	ProviderSMTP     = "smtp"
	ProviderGmail    = "gmail"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	App struct {
		Env string `yaml:"env"`
		// AccessLinkBaseURL is the frontend page service-call links point at.
		AccessLinkBaseURL string `yaml:"access_link_base_url"`
		DisplayTimezone   string `yaml:"display_timezone"`
	} `yaml:"app"`

	Log struct {
		// Level defaults to error in production and debug elsewhere.
		Level string `yaml:"level"`
		// File receives a copy of every entry; empty disables it.
		File string `yaml:"file"`
	} `yaml:"log"`

	Mail struct {
		Provider string `yaml:"provider"`
		From     string `yaml:"from"`
		FromName string `yaml:"from_name"`

		SendGrid struct {
			APIKey string `yaml:"api_key"`
			Host   string `yaml:"host"`
		} `yaml:"sendgrid"`

		Resend struct {
			APIKey  string `yaml:"api_key"`
			BaseURL string `yaml:"base_url"`
		} `yaml:"resend"`

		SMTP struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"smtp"`

		Gmail struct {
			CredentialsFile string `yaml:"credentials_file"`
		} `yaml:"gmail"`
	} `yaml:"mail"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
		AllowedMethods []string `yaml:"allowed_methods"`
		AllowedHeaders []string `yaml:"allowed_headers"`
	} `yaml:"cors"`
}

// Default returns the configuration the relay runs with when neither a file
// nor environment variables override anything.
func Default() *Config {
	c := &Config{}
	c.Server.Port = "5000"
	c.App.Env = "development"
	c.App.AccessLinkBaseURL = "http://localhost:3000/customer-service-call"
	c.App.DisplayTimezone = "Local"
	c.Log.File = "logs/server.log"
	c.Mail.Provider = ProviderSendGrid
	c.Mail.From = "noreply@bititecsystems.com"
	c.Mail.SendGrid.Host = "https://api.sendgrid.com"
	c.Mail.SMTP.Port = 587
	c.CORS.AllowedOrigins = []string{
		"http://localhost:3000",
		"http://192.168.1.49:8081",
		"exp://192.168.1.49:8081",
	}
	c.CORS.AllowedMethods = []string{"POST"}
	c.CORS.AllowedHeaders = []string{"Content-Type"}
	return c
}

// LoadConfig reads .env, then the YAML file at configPath (a missing file is
// not an error), then applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: error loading .env file: %v", err)
	}

	config := Default()

	if configPath != "" {
		file, err := os.Open(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			decoder := yaml.NewDecoder(file)
			if err := decoder.Decode(config); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", configPath, err)
			}
		}
	}

	config.overrideWithEnvVars()
	if config.Log.Level == "" {
		config.Log.Level = config.DefaultLogLevel()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) overrideWithEnvVars() {
	if port := GetEnv("PORT", ""); port != "" {
		c.Server.Port = port
	}
	if host := GetEnv("HOST", ""); host != "" {
		c.Server.Host = host
	}

	if env := GetEnv("APP_ENV", ""); env != "" {
		c.App.Env = env
	}
	if base := GetEnv("ACCESS_LINK_BASE_URL", ""); base != "" {
		c.App.AccessLinkBaseURL = base
	}
	if tz := GetEnv("DISPLAY_TIMEZONE", ""); tz != "" {
		c.App.DisplayTimezone = tz
	}
	if level := GetEnv("LOG_LEVEL", ""); level != "" {
		c.Log.Level = level
	}
	if file, ok := os.LookupEnv("LOG_FILE"); ok {
		c.Log.File = file
	}

	if provider := GetEnv("MAIL_PROVIDER", ""); provider != "" {
		c.Mail.Provider = strings.ToLower(provider)
	}
	if from := GetEnv("MAIL_FROM", ""); from != "" {
		c.Mail.From = from
	}
	if key := GetEnv("SENDGRID_API_KEY", ""); key != "" {
		c.Mail.SendGrid.APIKey = key
	}
	if key := GetEnv("RESEND_API_KEY", ""); key != "" {
		c.Mail.Resend.APIKey = key
	}
	if smtpHost := GetEnv("SMTP_HOST", ""); smtpHost != "" {
		c.Mail.SMTP.Host = smtpHost
	}
	if smtpPort := GetEnv("SMTP_PORT", ""); smtpPort != "" {
		if p, err := strconv.Atoi(smtpPort); err == nil {
			c.Mail.SMTP.Port = p
		} else {
			log.Printf("Warning: ignoring invalid SMTP_PORT %q", smtpPort)
		}
	}
	if user := GetEnv("SMTP_USERNAME", ""); user != "" {
		c.Mail.SMTP.Username = user
	}
	if pass := GetEnv("SMTP_PASSWORD", ""); pass != "" {
		c.Mail.SMTP.Password = pass
	}
	if creds := GetEnv("GMAIL_CREDENTIALS_FILE", ""); creds != "" {
		c.Mail.Gmail.CredentialsFile = creds
	}

	if origins := GetEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.CORS.AllowedOrigins = utils.SplitAndTrim(origins)
	}
}

// Validate reports configuration that would make every send fail.
func (c *Config) Validate() error {
	switch c.Mail.Provider {
	case ProviderSendGrid:
		if c.Mail.SendGrid.APIKey == "" {
			return errors.New("SENDGRID_API_KEY is required for the sendgrid provider")
		}
	case ProviderResend:
		if c.Mail.Resend.APIKey == "" {
			return errors.New("RESEND_API_KEY is required for the resend provider")
		}
	case ProviderSMTP:
		if c.Mail.SMTP.Host == "" {
			return errors.New("SMTP_HOST is required for the smtp provider")
		}
	case ProviderGmail:
		if c.Mail.Gmail.CredentialsFile == "" {
			return errors.New("GMAIL_CREDENTIALS_FILE is required for the gmail provider")
		}
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail.Provider)
	}

	if c.Mail.From == "" {
		return errors.New("mail sender address is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid display timezone: %w", err)
	}
	return nil
}

// Location resolves the timezone expiration times are rendered in.
func (c *Config) Location() (*time.Location, error) {
	if c.App.DisplayTimezone == "" || c.App.DisplayTimezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.App.DisplayTimezone)
}

// DefaultLogLevel is the level used when none is configured.
func (c *Config) DefaultLogLevel() string {
	if c.IsProduction() {
		return "error"
	}
	return "debug"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Addr is the listen address; an empty host binds every interface.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// PublicURL is the address announced in the startup log line.
func (c *Config) PublicURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%s", host, c.Server.Port)
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

