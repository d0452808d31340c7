package dispatch

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/txn2/solar-portal/pkg/notification"
)

// ErrInvalidEvent is wrapped by every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

// Recipient is a user who should see an event.
type Recipient struct {
	UserID       string `json:"user_id" validate:"required"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	EmailEnabled bool   `json:"email_enabled"`
}

// Event is a business action that produces notifications.
type Event struct {
	Type       notification.Type       `json:"type" validate:"required,notification_type"`
	ProjectID  string                  `json:"project_id,omitempty"`
	ActorID    string                  `json:"actor_id,omitempty"`
	ActorRole  notification.SenderRole `json:"actor_role,omitempty" validate:"omitempty,oneof=admin client system"`
	Recipients []Recipient             `json:"recipients" validate:"required,min=1,dive"`
	Payload    map[string]any          `json:"payload,omitempty"`
}

// ValidationError describes the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidEvent, e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidEvent.
func (*ValidationError) Unwrap() error {
	return ErrInvalidEvent
}

// EventValidator checks events with go-playground/validator tags.
type EventValidator struct {
	validate *validator.Validate
}

// NewEventValidator creates a validator with the notification_type rule
// registered.
func NewEventValidator() *EventValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
		return notification.Type(fl.Field().String()).Valid()
	})
	return &EventValidator{validate: v}
}

// Validate returns a *ValidationError for the first failing field.
func (v *EventValidator) Validate(ev Event) error {
	err := v.validate.Struct(ev)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidEvent, err) //nolint:errorlint // validator error is informational
}

// ResolveRecipients returns the users to notify: duplicates collapse to the
// first entry (keeping an email address from a later duplicate when the
// first has none) and the actor is dropped.
func ResolveRecipients(ev Event) []Recipient {
	out := make([]Recipient, 0, len(ev.Recipients))
	index := make(map[string]int, len(ev.Recipients))
	for _, r := range ev.Recipients {
		if r.UserID == "" || r.UserID == ev.ActorID {
			continue
		}
		if i, seen := index[r.UserID]; seen {
			if out[i].Email == "" && r.Email != "" {
				out[i].Email = r.Email
				out[i].EmailEnabled = r.EmailEnabled
			}
			continue
		}
		index[r.UserID] = len(out)
		out = append(out, r)
	}
	return out
}
