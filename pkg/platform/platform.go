package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/txn2/solar-portal/internal/apidocs" // registers the OpenAPI document
	"github.com/txn2/solar-portal/pkg/api"
	"github.com/txn2/solar-portal/pkg/auth"
	"github.com/txn2/solar-portal/pkg/clock"
	"github.com/txn2/solar-portal/pkg/cooldown"
	cooldownpg "github.com/txn2/solar-portal/pkg/cooldown/postgres"
	"github.com/txn2/solar-portal/pkg/database/migrate"
	"github.com/txn2/solar-portal/pkg/dispatch"
	"github.com/txn2/solar-portal/pkg/health"
	"github.com/txn2/solar-portal/pkg/mailer"
	"github.com/txn2/solar-portal/pkg/middleware"
	"github.com/txn2/solar-portal/pkg/notification"
	notificationpg "github.com/txn2/solar-portal/pkg/notification/postgres"
	"github.com/txn2/solar-portal/pkg/session"
	sessionpg "github.com/txn2/solar-portal/pkg/session/postgres"
)

// dbPingTimeout bounds the initial connection check.
const dbPingTimeout = 10 * time.Second

// Platform owns every long-lived portal component.
type Platform struct {
	config    *Config
	lifecycle *Lifecycle
	clock     clock.Clock

	db     *sql.DB
	ownsDB bool

	sessionStore  session.Store
	notifications notification.Store
	slots         cooldown.Store

	claimer    *cooldown.Claimer
	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager

	transport     mailer.Transport
	authenticator auth.Authenticator
	health        *health.Checker
	handler       http.Handler
}

// New creates a platform from options. The configuration is validated and
// the database, when used, is opened and migrated.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		config:    options.Config,
		lifecycle: NewLifecycle(),
		clock:     clock.OrReal(options.Clock),
		health:    health.NewChecker(),
	}

	if err := p.initializeComponents(options); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return p, nil
}

// initializeComponents builds the platform bottom-up.
func (p *Platform) initializeComponents(opts *Options) error {
	if err := p.initStorage(opts); err != nil {
		return err
	}
	if err := p.initServices(opts); err != nil {
		return err
	}
	if err := p.initAuth(opts); err != nil {
		return err
	}
	p.initLifecycle()
	p.handler = p.buildHandler()
	return nil
}

// initStorage selects postgres or memory stores.
func (p *Platform) initStorage(opts *Options) error {
	if p.config.Storage == StorageMemory {
		slog.Warn("platform: using in-memory storage; state is lost on restart")
		p.sessionStore = session.NewMemoryStore()
		p.notifications = notification.NewMemoryStore()
		p.slots = cooldown.NewMemoryStore()
		return nil
	}

	db := opts.DB
	if db == nil {
		var err error
		if db, err = openDatabase(p.config.Database); err != nil {
			return err
		}
		p.ownsDB = true
	}
	p.db = db

	if !opts.SkipMigrations {
		if err := migrate.Run(db); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
	}

	p.sessionStore = sessionpg.New(db)
	p.notifications = notificationpg.New(db)
	p.slots = cooldownpg.New(db)
	p.health.AddCheck("database", db.PingContext)
	return nil
}

// openDatabase opens and pings a PostgreSQL pool.
func openDatabase(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// initServices builds the claimer, dispatcher and session manager.
func (p *Platform) initServices(opts *Options) error {
	n := p.config.Notifications

	claimer, err := cooldown.NewClaimer(p.slots, cooldown.Policy{
		CooldownWindow: n.CooldownWindow,
		LeaseDuration:  n.LeaseDuration,
	}, p.clock)
	if err != nil {
		return fmt.Errorf("creating claimer: %w", err)
	}
	p.claimer = claimer

	p.transport = opts.Transport
	if p.transport == nil {
		p.transport = newTransport(p.config.Mail, n.FromAddress)
	}

	renderer, err := mailer.NewTemplateRenderer(templateOverrides(p.config.Mail.Templates))
	if err != nil {
		return fmt.Errorf("parsing mail templates: %w", err)
	}

	p.dispatcher, err = dispatch.New(dispatch.Config{
		Records:     p.notifications,
		Claimer:     claimer,
		Transport:   p.transport,
		Renderer:    renderer,
		Clock:       p.clock,
		SendTimeout: n.SendTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	p.sessions, err = session.NewManager(session.ManagerConfig{
		Store: p.sessionStore,
		Policy: session.Policy{
			InactivityWindow: p.config.Sessions.InactivityWindow,
			MaxDuration:      p.config.Sessions.MaxDuration,
		},
		Clock: p.clock,
	})
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}
	return nil
}

func newTransport(cfg MailConfig, from string) mailer.Transport {
	if cfg.Provider == MailSMTP {
		return mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			From:        from,
			DialTimeout: cfg.SMTP.DialTimeout,
		})
	}
	return mailer.LogTransport{From: from}
}

func templateOverrides(in map[string]TemplateOverride) map[notification.Type][2]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[notification.Type][2]string, len(in))
	for name, t := range in {
		out[notification.Type(name)] = [2]string{t.Subject, t.Body}
	}
	return out
}

// initAuth builds the authenticator chain: JWT first, then API keys.
func (p *Platform) initAuth(opts *Options) error {
	if opts.Authenticator != nil {
		p.authenticator = opts.Authenticator
		return nil
	}

	var chain []auth.Authenticator
	if jwtCfg := p.config.Auth.JWT; jwtCfg.Enabled {
		claims := auth.DefaultClaimsExtractor()
		claims.RoleClaimPath = jwtCfg.RoleClaim
		claims.RolePrefix = jwtCfg.RolePrefix
		a, err := auth.NewJWTAuthenticator(auth.JWTConfig{
			Issuer:     jwtCfg.Issuer,
			SigningKey: []byte(jwtCfg.SigningKey),
			Claims:     claims,
		})
		if err != nil {
			return fmt.Errorf("creating jwt authenticator: %w", err)
		}
		chain = append(chain, a)
	}

	if len(p.config.Auth.APIKeys) > 0 {
		keys := make([]auth.APIKey, 0, len(p.config.Auth.APIKeys))
		for _, k := range p.config.Auth.APIKeys {
			keys = append(keys, auth.APIKey{
				Name:   k.Name,
				Hash:   k.Hash,
				UserID: k.UserID,
				Email:  k.Email,
				Role:   k.Role,
			})
		}
		a, err := auth.NewAPIKeyAuthenticator(keys)
		if err != nil {
			return fmt.Errorf("creating api key authenticator: %w", err)
		}
		chain = append(chain, a)
	}

	p.authenticator = auth.NewChain(chain...)
	return nil
}

// initLifecycle registers background work. Readiness is registered last so
// it is the first thing withdrawn on shutdown.
func (p *Platform) initLifecycle() {
	p.lifecycle.Add("cooldown sweep",
		func(context.Context) error {
			p.claimer.StartSweepRoutine(p.config.Notifications.SweepInterval)
			return nil
		},
		func(context.Context) error { return p.claimer.Close() })

	p.lifecycle.Add("session sweep",
		func(context.Context) error {
			p.sessions.StartSweepRoutine(p.config.Sessions.SweepInterval)
			return nil
		},
		func(context.Context) error { return p.sessions.Close() })

	p.lifecycle.Add("readiness",
		func(context.Context) error {
			p.health.SetReady()
			return nil
		},
		func(context.Context) error {
			p.health.SetDraining()
			return nil
		})
}

// buildHandler assembles the HTTP handler tree.
func (p *Platform) buildHandler() http.Handler {
	apiHandler := api.NewHandler(api.Deps{
		Sessions:      p.sessions,
		Notifications: p.notifications,
		Dispatcher:    p.dispatcher,
		Slots:         p.slots,
		Clock:         p.clock,
		Info: api.SystemInfo{
			Name:        p.config.Server.Name,
			Description: p.config.Server.Description,
			Storage:     p.config.Storage,
			MailMode:    p.config.Mail.Provider,
			SessionPolicy: &api.SessionPolicy{
				InactivityWindowSeconds: int64(p.config.Sessions.InactivityWindow / time.Second),
				MaxDurationSeconds:      int64(p.config.Sessions.MaxDuration / time.Second),
				WarningLeadSeconds:      int64(p.config.Sessions.WarningLeadTime / time.Second),
			},
		},
	}, auth.Middleware(p.authenticator))

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", p.health.LivenessHandler())
	mux.Handle("GET /readyz", p.health.ReadinessHandler())
	if p.config.Server.Swagger {
		mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	}
	mux.Handle("/api/", apiHandler)

	return middleware.Chain(mux,
		middleware.AssignRequestID,
		middleware.AccessLog("/healthz", "/readyz"),
		middleware.Recover,
	)
}

// Start starts background work and marks the platform ready.
func (p *Platform) Start(ctx context.Context) error {
	return p.lifecycle.Start(ctx)
}

// Stop withdraws readiness and stops background work.
func (p *Platform) Stop(ctx context.Context) error {
	return p.lifecycle.Stop(ctx)
}

// Handler returns the root HTTP handler.
func (p *Platform) Handler() http.Handler {
	return p.handler
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// Health returns the health checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}

// Sessions returns the session manager.
func (p *Platform) Sessions() *session.Manager {
	return p.sessions
}

// Dispatcher returns the notification dispatcher.
func (p *Platform) Dispatcher() *dispatch.Dispatcher {
	return p.dispatcher
}

// Close releases resources the platform opened. It does not stop the
// lifecycle; call Stop first.
func (p *Platform) Close() error {
	if p.db != nil && p.ownsDB {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
		p.db = nil
	}
	return nil
}
