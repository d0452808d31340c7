// Package platform wires the portal's stores, services and HTTP surface
// together from a single configuration file.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/solar-portal/pkg/auth"
	"github.com/txn2/solar-portal/pkg/notification"
)

// Storage modes.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Mail providers.
const (
	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config holds the complete portal configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Storage       string              `yaml:"storage"`
	Database      DatabaseConfig      `yaml:"database"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Mail          MailConfig          `yaml:"mail"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Auth          AuthConfig          `yaml:"auth"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	Address       string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	Swagger       bool          `yaml:"swagger"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DatabaseConfig configures the PostgreSQL connection pool.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NotificationsConfig configures dispatch and the email cooldown.
type NotificationsConfig struct {
	CooldownWindow time.Duration `yaml:"cooldown_window"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	FromAddress    string        `yaml:"from_address"`
}

// MailConfig selects and configures the email transport.
type MailConfig struct {
	Provider  string                      `yaml:"provider"`
	SMTP      SMTPConfig                  `yaml:"smtp"`
	Templates map[string]TemplateOverride `yaml:"templates"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// TemplateOverride replaces the email template for one notification type.
type TemplateOverride struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// SessionsConfig configures session expiry.
type SessionsConfig struct {
	InactivityWindow time.Duration `yaml:"inactivity_window"`
	MaxDuration      time.Duration `yaml:"max_duration"`
	WarningLeadTime  time.Duration `yaml:"warning_lead_time"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

// AuthConfig configures caller authentication.
type AuthConfig struct {
	JWT     JWTConfig   `yaml:"jwt"`
	APIKeys []APIKeyDef `yaml:"api_keys"`
}

// JWTConfig configures HMAC-signed bearer tokens.
type JWTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Issuer     string `yaml:"issuer"`
	SigningKey string `yaml:"signing_key"`
	RoleClaim  string `yaml:"role_claim"`
	RolePrefix string `yaml:"role_prefix"`
}

// APIKeyDef defines an API key by its bcrypt hash.
type APIKeyDef struct {
	Name   string `yaml:"name"`
	Hash   string `yaml:"hash"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
	Role   string `yaml:"role"`
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, expanding ${VAR} references and
// applying defaults. It does not validate.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "solar-portal"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 25 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Storage == "" {
		cfg.Storage = StoragePostgres
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	applyNotificationDefaults(&cfg.Notifications)
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = MailLog
	}
	if cfg.Mail.SMTP.Port == 0 {
		cfg.Mail.SMTP.Port = 587
	}
	if cfg.Sessions.InactivityWindow == 0 {
		cfg.Sessions.InactivityWindow = 20 * time.Minute
	}
	if cfg.Sessions.MaxDuration == 0 {
		cfg.Sessions.MaxDuration = 8 * time.Hour
	}
	if cfg.Sessions.WarningLeadTime == 0 {
		cfg.Sessions.WarningLeadTime = 2 * time.Minute
	}
	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = time.Minute
	}
	if cfg.Auth.JWT.RoleClaim == "" {
		cfg.Auth.JWT.RoleClaim = "role"
	}
}

func applyNotificationDefaults(n *NotificationsConfig) {
	if n.CooldownWindow == 0 {
		n.CooldownWindow = 5 * time.Minute
	}
	if n.LeaseDuration == 0 {
		n.LeaseDuration = 30 * time.Second
	}
	if n.SendTimeout == 0 {
		n.SendTimeout = 10 * time.Second
	}
	if n.SweepInterval == 0 {
		n.SweepInterval = time.Minute
	}
	if n.FromAddress == "" {
		n.FromAddress = "notifications@solar-portal.local"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage {
	case StoragePostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required when storage is postgres")
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Sprintf("storage must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage))
	}

	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateNotifications()...)
	errs = append(errs, c.validateMail()...)
	errs = append(errs, c.validateSessions()...)
	errs = append(errs, c.validateAuth()...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateLogging() []string {
	var errs []string
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, "logging.level: "+err.Error())
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Sprintf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	return errs
}

func (c *Config) validateNotifications() []string {
	n := c.Notifications
	var errs []string
	for name, d := range map[string]time.Duration{
		"notifications.cooldown_window": n.CooldownWindow,
		"notifications.lease_duration":  n.LeaseDuration,
		"notifications.send_timeout":    n.SendTimeout,
		"notifications.sweep_interval":  n.SweepInterval,
	} {
		if d <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	if n.SendTimeout > 0 && n.LeaseDuration > 0 && n.LeaseDuration <= n.SendTimeout {
		errs = append(errs, fmt.Sprintf("notifications.lease_duration (%s) must exceed notifications.send_timeout (%s)",
			n.LeaseDuration, n.SendTimeout))
	}
	return errs
}

func (c *Config) validateMail() []string {
	var errs []string
	switch c.Mail.Provider {
	case MailLog:
	case MailSMTP:
		if c.Mail.SMTP.Host == "" {
			errs = append(errs, "mail.smtp.host is required when provider is smtp")
		}
	default:
		errs = append(errs, fmt.Sprintf("mail.provider must be %q or %q, got %q", MailSMTP, MailLog, c.Mail.Provider))
	}
	for name := range c.Mail.Templates {
		if !notification.Type(name).Valid() {
			errs = append(errs, fmt.Sprintf("mail.templates: unknown notification type %q", name))
		}
	}
	return errs
}

func (c *Config) validateSessions() []string {
	s := c.Sessions
	var errs []string
	if s.InactivityWindow <= 0 {
		errs = append(errs, "sessions.inactivity_window must be positive")
	}
	if s.MaxDuration <= 0 {
		errs = append(errs, "sessions.max_duration must be positive")
	}
	if s.WarningLeadTime <= 0 {
		errs = append(errs, "sessions.warning_lead_time must be positive")
	}
	if s.SweepInterval <= 0 {
		errs = append(errs, "sessions.sweep_interval must be positive")
	}
	if s.InactivityWindow > 0 && s.MaxDuration > 0 && s.InactivityWindow > s.MaxDuration {
		errs = append(errs, "sessions.inactivity_window must not exceed sessions.max_duration")
	}
	if s.WarningLeadTime > 0 && s.InactivityWindow > 0 && s.WarningLeadTime >= s.InactivityWindow {
		errs = append(errs, "sessions.warning_lead_time must be less than sessions.inactivity_window")
	}
	return errs
}

func (c *Config) validateAuth() []string {
	var errs []string
	if c.Auth.JWT.Enabled {
		if c.Auth.JWT.Issuer == "" {
			errs = append(errs, "auth.jwt.issuer is required when JWT is enabled")
		}
		if len(c.Auth.JWT.SigningKey) < auth.MinSigningKeyLength {
			errs = append(errs, fmt.Sprintf("auth.jwt.signing_key must be at least %d bytes", auth.MinSigningKeyLength))
		}
	}
	seen := make(map[string]bool, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		switch {
		case k.Name == "":
			errs = append(errs, fmt.Sprintf("auth.api_keys[%d].name is required", i))
		case seen[k.Name]:
			errs = append(errs, fmt.Sprintf("auth.api_keys[%d]: duplicate name %q", i, k.Name))
		}
		seen[k.Name] = true
		if k.Hash == "" {
			errs = append(errs, fmt.Sprintf("auth.api_keys[%d].hash is required", i))
		}
		if !auth.ValidRole(k.Role) {
			errs = append(errs, fmt.Sprintf("auth.api_keys[%d].role must be admin or client", i))
		}
	}
	if !c.Auth.JWT.Enabled && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, "auth: at least one of jwt or api_keys must be configured")
	}
	return errs
}
