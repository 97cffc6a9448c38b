package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxRetries          = 3
	defaultInitialBackoff      = time.Second
	defaultMaxBackoff          = 30 * time.Second
	defaultSessionTimeout      = 30 * time.Minute
	defaultHealthCheckInterval = 5 * time.Minute
)

type Config struct {
	LogLevel            int           `yaml:"log_level"`             // Logging level (e.g., 0: info, -4: debug).
	HealthCheckInterval time.Duration `yaml:"health_check_interval"` // Interval between background connection health checks.
	Retry               RetryPolicy   `yaml:"retry"`                 // Retry policy applied to every session-managed operation.
	Accounts            []Account     `yaml:"accounts"`              // List of mail account configurations.
}

// RetryPolicy bounds reconnect-and-retry behavior of session managers.
// It is configuration, not mutable state: one policy applies uniformly
// to all operations routed through a manager.
type RetryPolicy struct {
	MaxRetries     int           `yaml:"max_retries"`     // Total number of attempts per operation.
	InitialBackoff time.Duration `yaml:"initial_backoff"` // First delay between attempts, doubled on each retry.
	MaxBackoff     time.Duration `yaml:"max_backoff"`     // Upper bound for the backoff delay.
	SessionTimeout time.Duration `yaml:"session_timeout"` // Idle time after which a session is considered stale.
}

type Account struct {
	Name           string   `yaml:"name"`             // Account identifier used for lookups and logging.
	FullName       string   `yaml:"full_name"`        // Display name placed in outgoing From headers.
	EmailAddress   string   `yaml:"email_address"`    // Address placed in outgoing From headers.
	Incoming       Endpoint `yaml:"incoming"`         // Retrieval-protocol (IMAP) server.
	Outgoing       Endpoint `yaml:"outgoing"`         // Delivery-protocol (SMTP) server.
	SaveToSent     *bool    `yaml:"save_to_sent"`     // Mirror delivered messages into the Sent folder. Defaults to true.
	SentFolderName string   `yaml:"sent_folder_name"` // Override Sent folder name; empty means auto-detect.
}

// SaveSent reports whether delivered messages should be mirrored
// into the Sent folder. Unset defaults to true.
func (a Account) SaveSent() bool {
	return a.SaveToSent == nil || *a.SaveToSent
}

// Sender renders the From header value for outgoing mail.
func (a Account) Sender() string {
	if a.FullName == "" {
		return a.EmailAddress
	}
	return fmt.Sprintf("%s <%s>", a.FullName, a.EmailAddress)
}

// Endpoint describes one mail server together with credentials and
// transport-security mode. Immutable once constructed.
type Endpoint struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseSSL   bool   `yaml:"use_ssl"`   // Implicit TLS (usually 993/465).
	StartTLS bool   `yaml:"start_tls"` // Opportunistic upgrade after connect (usually 143/587).
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func LoadConfig(cfgFilepath, envFilepath string) (Config, error) {
	var cfg Config

	if _, err := os.Stat(envFilepath); err == nil {
		if err = godotenv.Load(envFilepath); err != nil {
			return cfg, fmt.Errorf("unable to load environment variables from file: %w", err)
		}
	}

	//nolint:gosec
	fileBytes, err := os.ReadFile(cfgFilepath)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("configuration file at this cfgFilepath doesn't exist: %w", err)
		case errors.Is(err, os.ErrPermission):
			return cfg, fmt.Errorf("permission denied for accessing configuration file: %w", err)
		default:
			return cfg, fmt.Errorf("unexpected error during reading configuration file: %w", err)
		}
	}

	envExpanded := os.ExpandEnv(string(fileBytes))
	if err = yaml.Unmarshal([]byte(envExpanded), &cfg); err != nil {
		return cfg, fmt.Errorf("unable to unmarshal configuration file: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = defaultMaxRetries
	}
	if c.Retry.InitialBackoff <= 0 {
		c.Retry.InitialBackoff = defaultInitialBackoff
	}
	if c.Retry.MaxBackoff <= 0 {
		c.Retry.MaxBackoff = defaultMaxBackoff
	}
	if c.Retry.SessionTimeout <= 0 {
		c.Retry.SessionTimeout = defaultSessionTimeout
	}
}

func (c *Config) validate() error {
	if len(c.Accounts) == 0 {
		return errors.New("no accounts specified")
	}

	seen := make(map[string]struct{}, len(c.Accounts))
	for _, account := range c.Accounts {
		if account.Name == "" {
			return errors.New("account name must not be empty")
		}
		if _, ok := seen[account.Name]; ok {
			return fmt.Errorf("duplicate account name %q", account.Name)
		}
		seen[account.Name] = struct{}{}

		if account.Incoming.Host == "" || account.Incoming.Port == 0 {
			return fmt.Errorf("account %q: incoming server host and port are required", account.Name)
		}
		if account.Outgoing.Host == "" || account.Outgoing.Port == 0 {
			return fmt.Errorf("account %q: outgoing server host and port are required", account.Name)
		}
	}

	return nil
}
