// Package calendar keeps the Google Calendar event's attendee list in step with RSVPs.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/psg2/level-30-birthday/internal/models"
)

// Scope is the only permission the reconciler needs.
const Scope = gcal.CalendarEventsScope

// responseAccepted marks attendees added from a confirmed RSVP.
const responseAccepted = "accepted"

// Config holds the OAuth client, the stored refresh token and the event to maintain.
// TokenURL and Endpoint override Google's defaults, for tests.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string
	EventID      string
	TokenURL     string
	Endpoint     string
	HTTPClient   *http.Client
}

// Reconciler merges attendees into a single calendar event.
type Reconciler struct {
	svc        *gcal.Service
	calendarID string
	eventID    string
	logger     *zap.Logger
}

// OAuthConfig returns the oauth2 client configuration for Google.
func (c Config) OAuthConfig(redirectURL string) *oauth2.Config {
	endpoint := google.Endpoint
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{Scope},
	}
}

// NewReconciler creates a reconciler. Access tokens are fetched with the refresh token and
// cached until they expire. Without an event id every call is a no-op.
func NewReconciler(ctx context.Context, cfg Config, logger *zap.Logger) (*Reconciler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	r := &Reconciler{calendarID: cfg.CalendarID, eventID: cfg.EventID, logger: logger}
	if cfg.EventID == "" {
		return r, nil
	}
	if cfg.RefreshToken == "" {
		return nil, fmt.Errorf("calendar: refresh token is required when an event id is set")
	}

	if cfg.HTTPClient != nil {
		ctx = contextWithClient(ctx, cfg.HTTPClient)
	}
	ts := cfg.OAuthConfig("").TokenSource(context.WithoutCancel(ctx), &oauth2.Token{RefreshToken: cfg.RefreshToken})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(cfg.Endpoint, "/")+"/calendar/v3/"))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	r.svc = svc
	return r, nil
}

// Enabled reports whether an event is configured.
func (r *Reconciler) Enabled() bool { return r.svc != nil && r.eventID != "" }

// AddAttendees merges attendees into the event.
func (r *Reconciler) AddAttendees(ctx context.Context, add []models.Attendee) error {
	return r.Sync(ctx, add, nil)
}

// RemoveAttendees drops the given emails from the event.
func (r *Reconciler) RemoveAttendees(ctx context.Context, emails []string) error {
	return r.Sync(ctx, nil, emails)
}

// Sync drops the removed emails, adds new attendees not being removed, and patches the
// event only if the list changed. Google notifies the guests.
func (r *Reconciler) Sync(ctx context.Context, add []models.Attendee, remove []string) error {
	if !r.Enabled() || (len(add) == 0 && len(remove) == 0) {
		return nil
	}
	ev, err := r.svc.Events.Get(r.calendarID, r.eventID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get calendar event: %w", err)
	}

	merged, changed := mergeAttendees(ev.Attendees, add, remove)
	if !changed {
		r.logger.Debug("calendar attendees unchanged", zap.String("event_id", r.eventID))
		return nil
	}

	patch := &gcal.Event{Attendees: merged, ForceSendFields: []string{"Attendees"}}
	if _, err := r.svc.Events.Patch(r.calendarID, r.eventID, patch).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("patch calendar event: %w", err)
	}
	r.logger.Info("calendar attendees updated",
		zap.String("event_id", r.eventID),
		zap.Int("attendees", len(merged)),
		zap.Int("added", len(add)),
		zap.Int("removed", len(remove)),
	)
	return nil
}

// mergeAttendees compares emails case-insensitively. Existing attendees keep their fields.
func mergeAttendees(current []*gcal.EventAttendee, add []models.Attendee, remove []string) ([]*gcal.EventAttendee, bool) {
	drop := make(map[string]bool, len(remove))
	for _, e := range remove {
		drop[strings.ToLower(strings.TrimSpace(e))] = true
	}

	out := make([]*gcal.EventAttendee, 0, len(current)+len(add))
	have := make(map[string]bool, len(current))
	changed := false
	for _, a := range current {
		key := strings.ToLower(a.Email)
		if drop[key] {
			changed = true
			continue
		}
		have[key] = true
		out = append(out, a)
	}
	for _, a := range add {
		key := strings.ToLower(strings.TrimSpace(a.Email))
		if key == "" || have[key] || drop[key] {
			continue
		}
		have[key] = true
		out = append(out, &gcal.EventAttendee{
			Email:          key,
			DisplayName:    a.DisplayName,
			ResponseStatus: responseAccepted,
		})
		changed = true
	}
	return out, changed
}
