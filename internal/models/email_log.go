package models

import (
	"time"

	"github.com/google/uuid"
)

// Email types sent by the notification dispatcher.
const (
	EmailTypeConfirmation = "confirmation"
	EmailTypeStatusUpdate = "status_update"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
)

// EmailLog records one delivery attempt for an RSVP email.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	RsvpID         string     `json:"rsvp_id"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Provider       string     `json:"provider"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
