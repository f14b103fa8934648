package models

import (
	"strings"
	"time"
)

// MaxPlusOnes is the number of companions a single RSVP may bring.
const MaxPlusOnes = 3

// maskPlaceholder replaces the hidden part of an email's local part.
const maskPlaceholder = "***"

// Status is the RSVP state. Both values can be reached from each other.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// PlusOne is a companion attached to a primary RSVP.
type PlusOne struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Rsvp is the persisted guest record. JSON keys match the records already stored by the site.
type Rsvp struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Message          string    `json:"message"`
	FoodRestrictions string    `json:"foodRestrictions"`
	PlusOnes         []PlusOne `json:"plusOnes"`
	Status           Status    `json:"status"`
	Trophies         []string  `json:"trophies,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// RsvpPublic is the guest-facing projection: every email is masked.
type RsvpPublic struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Message          string    `json:"message"`
	FoodRestrictions string    `json:"foodRestrictions"`
	PlusOnes         []PlusOne `json:"plusOnes"`
	Status           Status    `json:"status"`
	Trophies         []string  `json:"trophies"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Attendee is a calendar guest derived from an RSVP.
type Attendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Normalize fills fields that older record versions did not carry.
func (r *Rsvp) Normalize() {
	if r.PlusOnes == nil {
		r.PlusOnes = []PlusOne{}
	}
	if r.Trophies == nil {
		r.Trophies = []string{}
	}
	if r.Status == "" {
		r.Status = StatusConfirmed
	}
}

// Public returns the masked projection of r.
func (r *Rsvp) Public() *RsvpPublic {
	plusOnes := make([]PlusOne, 0, len(r.PlusOnes))
	for _, p := range r.PlusOnes {
		plusOnes = append(plusOnes, PlusOne{Name: p.Name, Email: MaskEmail(p.Email)})
	}
	trophies := make([]string, len(r.Trophies))
	copy(trophies, r.Trophies)
	status := r.Status
	if status == "" {
		status = StatusConfirmed
	}
	return &RsvpPublic{
		ID:               r.ID,
		Name:             r.Name,
		Email:            MaskEmail(r.Email),
		Message:          r.Message,
		FoodRestrictions: r.FoodRestrictions,
		PlusOnes:         plusOnes,
		Status:           status,
		Trophies:         trophies,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// Attendees returns the primary guest plus every companion that left an email.
func (r *Rsvp) Attendees() []Attendee {
	out := []Attendee{{Email: r.Email, DisplayName: r.Name}}
	for _, p := range r.PlusOnes {
		if p.Email == "" {
			continue
		}
		out = append(out, Attendee{Email: p.Email, DisplayName: p.Name})
	}
	return out
}

// PlusOneNames lists companion names in order.
func (r *Rsvp) PlusOneNames() []string {
	names := make([]string, 0, len(r.PlusOnes))
	for _, p := range r.PlusOnes {
		names = append(names, p.Name)
	}
	return names
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CleanPlusOnes drops entries without a name, keeps at most MaxPlusOnes,
// trims names and normalizes emails.
func CleanPlusOnes(in []PlusOne) []PlusOne {
	out := make([]PlusOne, 0, MaxPlusOnes)
	for _, p := range in {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		out = append(out, PlusOne{Name: name, Email: NormalizeEmail(p.Email)})
		if len(out) == MaxPlusOnes {
			break
		}
	}
	return out
}

// MaskEmail keeps the first two characters of the local part and the whole domain:
// "ana@example.com" becomes "an***@example.com".
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return keepPrefix(email) + maskPlaceholder
	}
	return keepPrefix(email[:at]) + maskPlaceholder + email[at:]
}

func keepPrefix(s string) string {
	r := []rune(s)
	if len(r) <= 2 {
		return s
	}
	return string(r[:2])
}
