package cooldown

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/solar-portal/pkg/clock"
)

// Claimer runs the claim protocol against a Store with a fixed Policy and a
// single time source.
type Claimer struct {
	store  Store
	policy Policy
	clock  clock.Clock

	cancel context.CancelFunc
	done   chan struct{}
}

// NewClaimer creates a Claimer. A nil clock uses the real clock.
func NewClaimer(store Store, policy Policy, c clock.Clock) (*Claimer, error) {
	if store == nil {
		return nil, fmt.Errorf("cooldown store is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Claimer{
		store:  store,
		policy: policy,
		clock:  clock.OrReal(c),
	}, nil
}

// Policy returns the claimer's timing parameters.
func (c *Claimer) Policy() Policy {
	return c.policy
}

// Store returns the underlying slot store.
func (c *Claimer) Store() Store {
	return c.store
}

// TryClaim asks for permission to send to key now.
func (c *Claimer) TryClaim(ctx context.Context, key Key) (Decision, error) {
	d, err := c.store.TryClaim(ctx, key, c.clock.Now(), c.policy)
	if err != nil {
		return Decision{}, fmt.Errorf("claiming slot %s: %w", key, err)
	}
	if !d.Granted {
		slog.Debug("cooldown: claim denied",
			"recipient_id", key.RecipientID,
			"project_id", key.ProjectID,
			"reason", d.Reason,
			"retry_after", d.RetryAfter)
	}
	return d, nil
}

// Confirm records a successful send for the lease. A lease that is no longer
// held is logged and ignored. Store failures are logged; the lease then
// expires on its own.
func (c *Claimer) Confirm(ctx context.Context, key Key, leaseID string) bool {
	ok, err := c.store.ConfirmSent(ctx, key, leaseID, c.clock.Now())
	if err != nil {
		slog.Error("cooldown: confirm failed, lease will expire",
			"recipient_id", key.RecipientID,
			"project_id", key.ProjectID,
			"lease_id", leaseID,
			"error", err)
		return false
	}
	if !ok {
		slog.Info("cooldown: confirm ignored, lease not held",
			"recipient_id", key.RecipientID,
			"project_id", key.ProjectID,
			"lease_id", leaseID)
	}
	return ok
}

// Release gives the slot back after a failed send.
func (c *Claimer) Release(ctx context.Context, key Key, leaseID string) bool {
	ok, err := c.store.ReleaseClaim(ctx, key, leaseID, c.clock.Now())
	if err != nil {
		slog.Error("cooldown: release failed, lease will expire",
			"recipient_id", key.RecipientID,
			"project_id", key.ProjectID,
			"lease_id", leaseID,
			"error", err)
		return false
	}
	if !ok {
		slog.Info("cooldown: release ignored, lease not held",
			"recipient_id", key.RecipientID,
			"project_id", key.ProjectID,
			"lease_id", leaseID)
	}
	return ok
}

// Sweep frees abandoned claims. TryClaim already treats them as claimable,
// so the sweep only keeps the stored state readable.
func (c *Claimer) Sweep(ctx context.Context) (int64, error) {
	n, err := c.store.CleanupExpiredLeases(ctx, c.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("cleaning up expired leases: %w", err)
	}
	if n > 0 {
		slog.Info("cooldown: freed abandoned claims", "count", n)
	}
	return n, nil
}

// StartSweepRoutine starts a background goroutine that periodically calls
// Sweep. The goroutine is stopped when Close is called.
func (c *Claimer) StartSweepRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.Sweep(ctx); err != nil {
					slog.Warn("cooldown sweep failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the sweep goroutine and waits for it to exit.
// It is safe to call Close even if StartSweepRoutine was never called.
func (c *Claimer) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}
