// Package inactivity implements the client-side inactivity monitor that
// warns a user before their session expires and logs them out when it does.
//
// A Monitor moves through three states:
//
//	Active --warning timer--> Warning --expiry timer or Logout--> Expired
//	   ^                        |
//	   +-------- Extend --------+
//
// Activity in Active restarts both timers. In Warning only Extend brings the
// session back. Expired is terminal; a new login needs a new Monitor.
//
// Once a heartbeat reports a server expiry earlier than local inactivity
// allows, that expiry caps every later deadline until a heartbeat says
// otherwise.
//
// Timers fire on their own goroutines. Transitions are serialized by a
// mutex, callbacks run after it is released, and every re-arm bumps a
// generation counter so a timer that fires after being replaced does
// nothing. Callbacks must not call Dispose.
package inactivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/txn2/solar-portal/pkg/clock"
)

// ErrSessionEnded is returned by a Syncer when the server no longer
// considers the session active.
var ErrSessionEnded = errors.New("session ended on server")

// State is a monitor state.
type State int

// Monitor states.
const (
	StateActive State = iota
	StateWarning
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason says why a monitor expired.
type Reason string

// Expiry reasons.
const (
	ReasonTimeout Reason = "timeout"
	ReasonLogout  Reason = "logout"
	ReasonRevoked Reason = "revoked"
)

// Syncer keeps the server-side session in step with the monitor. Both
// methods must return promptly once ctx is cancelled.
type Syncer interface {
	// Heartbeat reports activity and returns the server's expiry. A zero
	// time with a nil error means the server could not confirm the expiry.
	Heartbeat(ctx context.Context) (time.Time, error)

	// End ends the server session.
	End(ctx context.Context) error
}

// Config configures a Monitor.
type Config struct {
	// InactivityWindow is how long the session survives without activity.
	InactivityWindow time.Duration

	// WarningLeadTime is how long before expiry OnWarning fires.
	WarningLeadTime time.Duration

	// SyncInterval is the minimum spacing of heartbeats sent on activity.
	// Zero sends a heartbeat for every activity.
	SyncInterval time.Duration

	Clock  clock.Clock
	Syncer Syncer

	// OnWarning receives the time left before expiry.
	OnWarning func(remaining time.Duration)

	// OnExpire is called at most once, when the monitor expires.
	OnExpire func(reason Reason)
}

// Monitor is the inactivity state machine for one session.
type Monitor struct {
	cfg   Config
	clock clock.Clock

	mu           sync.Mutex
	state        State
	gen          uint64
	deadline     time.Time
	lastActivity time.Time
	serverCap    time.Time
	warningTimer clock.Timer
	expiryTimer  clock.Timer
	lastSync     time.Time
	syncing      bool
	disposed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// callbacks tracks OnWarning and OnExpire calls in progress.
	callbacks sync.WaitGroup
}

// New creates a Monitor in the Active state with both timers armed.
func New(cfg Config) (*Monitor, error) {
	if cfg.InactivityWindow <= 0 {
		return nil, fmt.Errorf("inactivity window must be positive, got %s", cfg.InactivityWindow)
	}
	if cfg.WarningLeadTime <= 0 || cfg.WarningLeadTime >= cfg.InactivityWindow {
		return nil, fmt.Errorf("warning lead time %s must be positive and shorter than the inactivity window %s",
			cfg.WarningLeadTime, cfg.InactivityWindow)
	}
	if cfg.SyncInterval < 0 {
		return nil, fmt.Errorf("sync interval must not be negative, got %s", cfg.SyncInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		cfg:    cfg,
		clock:  clock.OrReal(cfg.Clock),
		state:  StateActive,
		ctx:    ctx,
		cancel: cancel,
	}

	m.mu.Lock()
	now := m.clock.Now()
	m.lastSync = now
	m.lastActivity = now
	m.armLocked(now, now.Add(cfg.InactivityWindow))
	m.mu.Unlock()
	return m, nil
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Deadline returns the instant the monitor will expire if nothing changes.
func (m *Monitor) Deadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline
}

// Remaining returns the time left before expiry, never negative.
func (m *Monitor) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return max(m.deadline.Sub(m.clock.Now()), 0)
}

// Activity records a user interaction. It restarts both timers in Active
// and is ignored in Warning and Expired.
func (m *Monitor) Activity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed || m.state != StateActive {
		return
	}
	now := m.clock.Now()
	m.lastActivity = now
	m.armLocked(now, m.cappedLocked(now.Add(m.cfg.InactivityWindow)))
	m.maybeSyncLocked(now, false)
}

// Extend leaves Warning for Active with fresh timers and reports whether it
// did. Outside Warning it is a no-op.
func (m *Monitor) Extend() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed || m.state != StateWarning {
		return false
	}
	now := m.clock.Now()
	m.state = StateActive
	m.lastActivity = now
	m.armLocked(now, m.cappedLocked(now.Add(m.cfg.InactivityWindow)))
	m.maybeSyncLocked(now, true)
	return true
}

// Logout expires the monitor now. It reports whether this call caused the
// expiry.
func (m *Monitor) Logout() bool {
	m.mu.Lock()
	expired := m.expireLocked(ReasonLogout)
	m.mu.Unlock()

	if expired {
		m.notifyExpire(ReasonLogout)
	}
	return expired
}

// cappedLocked returns deadline, or the server cap if that is earlier.
func (m *Monitor) cappedLocked(deadline time.Time) time.Time {
	if !m.serverCap.IsZero() && m.serverCap.Before(deadline) {
		return m.serverCap
	}
	return deadline
}

// Wait blocks until in-flight server calls return. After expiry it lets the
// End call finish before Dispose cancels it.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Dispose cancels both timers and any in-flight server call and waits for
// those calls and any running callback to return. No callback fires after
// Dispose returns.
func (m *Monitor) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.gen++
	m.stopTimersLocked()
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.callbacks.Wait()
}

// armLocked replaces both timers so that expiry happens at deadline and the
// warning WarningLeadTime before it.
func (m *Monitor) armLocked(now, deadline time.Time) {
	m.stopTimersLocked()
	m.gen++
	gen := m.gen
	m.deadline = deadline

	if m.state == StateActive {
		warnIn := max(deadline.Add(-m.cfg.WarningLeadTime).Sub(now), 0)
		m.warningTimer = m.clock.AfterFunc(warnIn, func() { m.fireWarning(gen) })
	}
	m.expiryTimer = m.clock.AfterFunc(max(deadline.Sub(now), 0), func() { m.fireExpiry(gen) })
}

func (m *Monitor) stopTimersLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
		m.warningTimer = nil
	}
	if m.expiryTimer != nil {
		m.expiryTimer.Stop()
		m.expiryTimer = nil
	}
}

func (m *Monitor) fireWarning(gen uint64) {
	m.mu.Lock()
	if m.disposed || gen != m.gen || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.state = StateWarning
	remaining := max(m.deadline.Sub(m.clock.Now()), 0)
	m.callbacks.Add(1)
	m.mu.Unlock()
	defer m.callbacks.Done()

	slog.Debug("inactivity: warning", "remaining", remaining)
	if m.cfg.OnWarning != nil {
		m.cfg.OnWarning(remaining)
	}
}

func (m *Monitor) fireExpiry(gen uint64) {
	m.mu.Lock()
	if m.disposed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	expired := m.expireLocked(ReasonTimeout)
	m.mu.Unlock()

	if expired {
		m.notifyExpire(ReasonTimeout)
	}
}

// expireLocked moves to Expired and starts the server-side end call. It
// returns false if the monitor was already expired or disposed. A true
// result must be followed by notifyExpire.
func (m *Monitor) expireLocked(reason Reason) bool {
	if m.disposed || m.state == StateExpired {
		return false
	}
	m.state = StateExpired
	m.gen++
	m.stopTimersLocked()

	if m.cfg.Syncer != nil && reason != ReasonRevoked {
		m.wg.Add(1)
		go m.syncEnd()
	}
	m.callbacks.Add(1)
	return true
}

func (m *Monitor) notifyExpire(reason Reason) {
	defer m.callbacks.Done()
	slog.Info("inactivity: session expired", "reason", reason)
	if m.cfg.OnExpire != nil {
		m.cfg.OnExpire(reason)
	}
}

// maybeSyncLocked starts a heartbeat when none is in flight and the last one
// is at least SyncInterval old, or unconditionally when force is set.
func (m *Monitor) maybeSyncLocked(now time.Time, force bool) {
	if m.cfg.Syncer == nil || m.syncing {
		return
	}
	if !force && now.Sub(m.lastSync) < m.cfg.SyncInterval {
		return
	}
	m.syncing = true
	m.lastSync = now
	m.wg.Add(1)
	go m.syncHeartbeat()
}

func (m *Monitor) syncHeartbeat() {
	defer m.wg.Done()

	serverExpiry, err := m.cfg.Syncer.Heartbeat(m.ctx)

	m.mu.Lock()
	m.syncing = false
	if m.disposed || m.state == StateExpired {
		m.mu.Unlock()
		return
	}

	switch {
	case errors.Is(err, ErrSessionEnded):
		expired := m.expireLocked(ReasonRevoked)
		m.mu.Unlock()
		if expired {
			m.notifyExpire(ReasonRevoked)
		}
		return
	case err != nil:
		slog.Warn("inactivity: heartbeat failed, keeping local timers", "error", err)
	case serverExpiry.IsZero():
		slog.Debug("inactivity: heartbeat degraded, keeping local timers")
	case serverExpiry.Before(m.lastActivity.Add(m.cfg.InactivityWindow)):
		m.serverCap = serverExpiry
		if serverExpiry.Before(m.deadline) {
			m.armLocked(m.clock.Now(), serverExpiry)
		}
	default:
		m.serverCap = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Monitor) syncEnd() {
	defer m.wg.Done()
	if err := m.cfg.Syncer.End(m.ctx); err != nil {
		slog.Warn("inactivity: ending server session failed", "error", err)
	}
}

// FormatRemaining renders d as m:ss, rounding partial seconds up.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
