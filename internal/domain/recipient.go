package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultLanguage is used when a recipient has no preferred language.
const DefaultLanguage = "en"

// Recipient is an employee who may receive dispatched reminders.
// Recipients are owned by the CRUD layer and are read-only here.
type Recipient struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	// Contact is a phone-style address; it is normalized only at send time.
	Contact  string `json:"contact,omitempty"`
	Language string `json:"language,omitempty"`
}

// PreferredLanguage returns the recipient's language or DefaultLanguage.
func (r Recipient) PreferredLanguage() string {
	lang := strings.ToLower(strings.TrimSpace(r.Language))
	if lang == "" {
		return DefaultLanguage
	}
	return lang
}

// Validate checks if the Recipient has valid data.
// A missing contact is allowed; it surfaces as a per-recipient send failure.
func (r *Recipient) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("%w: recipient id", ErrInvalidID)
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	return nil
}
