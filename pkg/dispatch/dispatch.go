// Package dispatch turns business events into in-app notification records
// and cooldown-gated notification emails.
//
// Every resolved recipient gets a record. Emails go through the cooldown
// claim protocol: claim, send, then confirm on success or release on
// failure. Only record creation failures reach the caller; the email path
// is contained so a delivery problem never fails the business action.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/solar-portal/pkg/clock"
	"github.com/txn2/solar-portal/pkg/cooldown"
	"github.com/txn2/solar-portal/pkg/mailer"
	"github.com/txn2/solar-portal/pkg/notification"
)

const defaultSendTimeout = 10 * time.Second

// Result summarizes one Dispatch call.
type Result struct {
	RecordsCreated int `json:"records_created"`
	EmailAttempted int `json:"email_attempted"`
	EmailSent      int `json:"email_sent"`
	EmailSkipped   int `json:"email_skipped"`
}

// Config configures a Dispatcher.
type Config struct {
	Records     notification.Store
	Claimer     *cooldown.Claimer
	Transport   mailer.Transport
	Renderer    mailer.Renderer
	Clock       clock.Clock
	SendTimeout time.Duration
}

// Dispatcher delivers events.
type Dispatcher struct {
	records     notification.Store
	claimer     *cooldown.Claimer
	transport   mailer.Transport
	renderer    mailer.Renderer
	clock       clock.Clock
	sendTimeout time.Duration
	validator   *EventValidator
}

// New creates a Dispatcher. Records, Claimer, Transport and Renderer are
// required.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Records == nil {
		return nil, errors.New("notification store is required")
	}
	if cfg.Claimer == nil {
		return nil, errors.New("cooldown claimer is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("mail transport is required")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("mail renderer is required")
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if lease := cfg.Claimer.Policy().LeaseDuration; timeout >= lease {
		return nil, fmt.Errorf("send timeout %s must be shorter than lease duration %s", timeout, lease)
	}
	return &Dispatcher{
		records:     cfg.Records,
		claimer:     cfg.Claimer,
		transport:   cfg.Transport,
		renderer:    cfg.Renderer,
		clock:       clock.OrReal(cfg.Clock),
		sendTimeout: timeout,
		validator:   NewEventValidator(),
	}, nil
}

// Dispatch creates one record per resolved recipient, then emails the
// recipients that accept email and whose slot can be claimed. The returned
// error is non-nil only for invalid events and record store failures.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Result, error) {
	var res Result
	if err := d.validator.Validate(ev); err != nil {
		return res, err
	}

	recipients := ResolveRecipients(ev)
	role := ev.ActorRole
	if role == "" {
		role = notification.RoleSystem
	}

	now := d.clock.Now()
	for _, r := range recipients {
		rec := &notification.Record{
			ID:          uuid.NewString(),
			RecipientID: r.UserID,
			ProjectID:   ev.ProjectID,
			Type:        ev.Type,
			Payload:     ev.Payload,
			SenderID:    ev.ActorID,
			SenderRole:  role,
			CreatedAt:   now,
		}
		if err := d.records.Insert(ctx, rec); err != nil {
			return res, fmt.Errorf("creating notification for %s: %w", r.UserID, err)
		}
		res.RecordsCreated++
	}

	// Finalizing a claim must not be skipped because the caller went away.
	finalizeCtx := context.WithoutCancel(ctx)

	for _, r := range recipients {
		if !r.EmailEnabled || r.Email == "" {
			continue
		}
		switch d.email(ctx, finalizeCtx, ev, r) {
		case outcomeSent:
			res.EmailAttempted++
			res.EmailSent++
		case outcomeFailed:
			res.EmailAttempted++
		case outcomeSkipped:
			res.EmailSkipped++
		}
	}

	slog.Info("dispatch: event delivered",
		"type", ev.Type,
		"project_id", ev.ProjectID,
		"records_created", res.RecordsCreated,
		"email_attempted", res.EmailAttempted,
		"email_sent", res.EmailSent,
		"email_skipped", res.EmailSkipped)
	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

// email runs claim, send, confirm/release for one recipient.
func (d *Dispatcher) email(ctx, finalizeCtx context.Context, ev Event, r Recipient) outcome {
	key := cooldown.Key{RecipientID: r.UserID, ProjectID: ev.ProjectID}

	decision, err := d.claimer.TryClaim(ctx, key)
	if err != nil {
		slog.Warn("dispatch: claim failed, email skipped",
			"recipient_id", r.UserID, "project_id", ev.ProjectID, "error", err)
		return outcomeSkipped
	}
	if !decision.Granted {
		return outcomeSkipped
	}

	subject, body, err := d.renderer.Render(mailer.Content{
		Type:        ev.Type,
		RecipientID: r.UserID,
		ProjectID:   ev.ProjectID,
		ActorID:     ev.ActorID,
		Payload:     ev.Payload,
	})
	if err != nil {
		slog.Error("dispatch: rendering failed",
			"recipient_id", r.UserID, "project_id", ev.ProjectID, "error", err)
		d.claimer.Release(finalizeCtx, key, decision.LeaseID)
		return outcomeFailed
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	err = d.send(sendCtx, mailer.Message{To: r.Email, Subject: subject, Body: body})
	cancel()
	if err != nil {
		slog.Warn("dispatch: email failed, slot released",
			"recipient_id", r.UserID, "project_id", ev.ProjectID, "error", err)
		d.claimer.Release(finalizeCtx, key, decision.LeaseID)
		return outcomeFailed
	}

	d.claimer.Confirm(finalizeCtx, key, decision.LeaseID)
	return outcomeSent
}

// send calls the transport, turning a panic into an error.
func (d *Dispatcher) send(ctx context.Context, msg mailer.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("mail transport panicked: %v", p)
		}
	}()
	return d.transport.Send(ctx, msg) //nolint:wrapcheck // wrapped by the caller's log
}
