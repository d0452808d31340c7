package platform

import (
	"database/sql"

	"github.com/txn2/solar-portal/pkg/auth"
	"github.com/txn2/solar-portal/pkg/clock"
	"github.com/txn2/solar-portal/pkg/mailer"
)

// Options configures the platform.
type Options struct {
	// Config is the portal configuration.
	Config *Config

	// DB is an open database (optional, opened from config.database.dsn if
	// not provided). A provided DB is not closed by the platform.
	DB *sql.DB

	// Clock (optional, defaults to the real clock).
	Clock clock.Clock

	// Transport (optional, created from config.mail if not provided).
	Transport mailer.Transport

	// Authenticator (optional, created from config.auth if not provided).
	Authenticator auth.Authenticator

	// SkipMigrations leaves the schema untouched on startup.
	SkipMigrations bool
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithClock sets the clock used by every time-dependent component.
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

// WithTransport sets the email transport.
func WithTransport(t mailer.Transport) Option {
	return func(o *Options) {
		o.Transport = t
	}
}

// WithAuthenticator sets the caller authenticator.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(o *Options) {
		o.Authenticator = a
	}
}

// WithoutMigrations disables running migrations on startup.
func WithoutMigrations() Option {
	return func(o *Options) {
		o.SkipMigrations = true
	}
}
