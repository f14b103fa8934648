// Package rsvp holds the RSVP record lifecycle: storage, the create/read/update/list/delete
// state machine and its HTTP surface.
package rsvp

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/internal/models"
	"github.com/psg2/level-30-birthday/internal/ratelimit"
	"github.com/psg2/level-30-birthday/internal/trophy"
	"github.com/psg2/level-30-birthday/pkg/queue"
)

// honeypotID is returned to submissions that filled the hidden form field.
const honeypotID = "ok"

// Live feed events.
const (
	EventCreated = "rsvp_created"
	EventUpdated = "rsvp_updated"
	EventDeleted = "rsvp_deleted"
)

// Store is the persistence the service needs. *Repository implements it.
type Store interface {
	Get(ctx context.Context, id string) (*models.Rsvp, error)
	Put(ctx context.Context, rec *models.Rsvp) error
	LookupEmail(ctx context.Context, email string) (string, error)
	ClaimEmail(ctx context.Context, email, id string) (bool, error)
	AddID(ctx context.Context, id string) error
	ListIDs(ctx context.Context) ([]string, error)
	GetMany(ctx context.Context, ids []string) ([]*models.Rsvp, error)
	Remove(ctx context.Context, id string) error
	Delete(ctx context.Context, rec *models.Rsvp) error
}

// Limiter gates writes per client. *ratelimit.Limiter implements it.
type Limiter interface {
	Allow(ctx context.Context, scope, clientID string) (bool, error)
}

// Tasks accepts side effects for the background worker. *queue.Queue implements it.
type Tasks interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
	EnqueueCalendar(ctx context.Context, payload queue.CalendarPayload) error
}

// Broadcaster pushes admin-only events to the live feed.
type Broadcaster interface {
	Publish(event string, payload any)
}

// Authorizer decides whether a credential grants admin access.
type Authorizer interface {
	Authorize(credential string) bool
}

// CreateInput is a new RSVP submission. Website is the honeypot field.
type CreateInput struct {
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Message          string           `json:"message"`
	FoodRestrictions string           `json:"foodRestrictions"`
	PlusOnes         []models.PlusOne `json:"plusOnes"`
	Website          string           `json:"website"`
}

// CreateResult is either a new id or, when the email is taken, the existing id.
type CreateResult struct {
	Success    bool   `json:"success"`
	Duplicate  bool   `json:"duplicate"`
	ID         string `json:"id,omitempty"`
	ExistingID string `json:"existingId,omitempty"`
}

// UpdateInput holds the fields to change; nil means unchanged.
type UpdateInput struct {
	Name             *string           `json:"name"`
	Message          *string           `json:"message"`
	FoodRestrictions *string           `json:"foodRestrictions"`
	PlusOnes         *[]models.PlusOne `json:"plusOnes"`
	Status           *models.Status    `json:"status"`
}

// GuestList is the unmasked admin view.
type GuestList struct {
	Total     int            `json:"total"`
	Confirmed int            `json:"confirmed"`
	Cancelled int            `json:"cancelled"`
	Guests    []*models.Rsvp `json:"guests"`
}

// Service is the only writer of RSVP records.
type Service struct {
	store   Store
	limiter Limiter
	tasks   Tasks
	feed    Broadcaster
	admin   Authorizer
	logger  *zap.Logger
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBroadcaster attaches the admin live feed.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.feed = b }
}

// NewService creates the RSVP service.
func NewService(store Store, limiter Limiter, tasks Tasks, admin Authorizer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:   store,
		limiter: limiter,
		tasks:   tasks,
		admin:   admin,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new guest, or reports the id already holding the email.
func (s *Service) Create(ctx context.Context, clientIP string, in CreateInput) (*CreateResult, error) {
	if in.Website != "" {
		s.logger.Info("honeypot submission ignored", zap.String("client_ip", clientIP))
		return &CreateResult{Success: true, ID: honeypotID}, nil
	}
	if err := s.checkRate(ctx, ratelimit.ScopeCreate, clientIP); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	email := models.NormalizeEmail(in.Email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}

	existing, err := s.store.LookupEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return &CreateResult{Duplicate: true, ExistingID: existing}, nil
	}

	id, err := NewID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := s.now().UTC()
	rec := &models.Rsvp{
		ID:               id,
		Name:             name,
		Email:            email,
		Message:          strings.TrimSpace(in.Message),
		FoodRestrictions: strings.TrimSpace(in.FoodRestrictions),
		PlusOnes:         models.CleanPlusOnes(in.PlusOnes),
		Status:           models.StatusConfirmed,
		Trophies:         []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// record first, then index, then set membership
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	winner, err := s.claimEmail(ctx, email, id)
	if err != nil || winner != "" {
		if rmErr := s.store.Remove(ctx, id); rmErr != nil {
			s.logger.Warn("orphan rsvp left after lost email claim", zap.String("rsvp_id", id), zap.Error(rmErr))
		}
		if err != nil {
			return nil, err
		}
		return &CreateResult{Duplicate: true, ExistingID: winner}, nil
	}
	if err := s.store.AddID(ctx, id); err != nil {
		return nil, err
	}

	s.logger.Info("rsvp created", zap.String("rsvp_id", id), zap.Int("plus_ones", len(rec.PlusOnes)))
	bg := context.WithoutCancel(ctx)
	s.enqueueEmail(bg, queue.EmailConfirmation, rec)
	s.enqueueCalendar(bg, queue.CalendarPayload{RsvpID: id, Add: rec.Attendees()})
	s.publish(EventCreated, rec)

	return &CreateResult{Success: true, ID: id}, nil
}

// Get returns the masked record, or nil when id is unknown.
func (s *Service) Get(ctx context.Context, id string) (*models.RsvpPublic, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Public(), nil
}

// Update applies the present fields and returns the masked record.
func (s *Service) Update(ctx context.Context, clientIP, id string, in UpdateInput) (*models.RsvpPublic, error) {
	if err := s.checkRate(ctx, ratelimit.ScopeUpdate, clientIP); err != nil {
		return nil, err
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	before := rec.Attendees()

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrValidation)
		}
		rec.Name = name
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, *in.Status)
		}
		rec.Status = *in.Status
	}
	if in.Message != nil {
		rec.Message = strings.TrimSpace(*in.Message)
	}
	if in.FoodRestrictions != nil {
		rec.FoodRestrictions = strings.TrimSpace(*in.FoodRestrictions)
	}
	if in.PlusOnes != nil {
		rec.PlusOnes = models.CleanPlusOnes(*in.PlusOnes)
	}
	s.touch(rec)

	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("rsvp updated", zap.String("rsvp_id", id), zap.String("status", string(rec.Status)))
	bg := context.WithoutCancel(ctx)
	s.enqueueEmail(bg, queue.EmailStatusUpdate, rec)
	s.enqueueCalendar(bg, calendarDiff(rec, before))
	s.publish(EventUpdated, rec)

	return rec.Public(), nil
}

// List returns every record, newest first, with status counts.
func (s *Service) List(ctx context.Context, credential string) (*GuestList, error) {
	if !s.authorized(credential) {
		return nil, ErrUnauthorized
	}
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	guests, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(guests, func(i, j int) bool {
		return guests[i].CreatedAt.After(guests[j].CreatedAt)
	})

	list := &GuestList{Total: len(guests), Guests: guests}
	for _, g := range guests {
		switch g.Status {
		case models.StatusCancelled:
			list.Cancelled++
		default:
			list.Confirmed++
		}
	}
	return list, nil
}

// Delete removes a record and frees its email for a future Create.
func (s *Service) Delete(ctx context.Context, id, credential string) error {
	if !s.authorized(credential) {
		return ErrUnauthorized
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if err := s.store.Delete(ctx, rec); err != nil {
		return err
	}

	s.logger.Info("rsvp deleted", zap.String("rsvp_id", id))
	bg := context.WithoutCancel(ctx)
	s.enqueueCalendar(bg, queue.CalendarPayload{RsvpID: id, Remove: attendeeEmails(rec.Attendees())})
	s.publish(EventDeleted, map[string]string{"id": id})
	return nil
}

// SyncTrophies merges client-found trophies into the record. The stored set only grows.
func (s *Service) SyncTrophies(ctx context.Context, id string, trophies []string) (*models.RsvpPublic, error) {
	for _, t := range trophies {
		if !trophy.Known(t) {
			return nil, fmt.Errorf("%w: unknown trophy %q", ErrValidation, t)
		}
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	merged := trophy.Merge(rec.Trophies, trophies)
	if slices.Equal(merged, rec.Trophies) {
		return rec.Public(), nil
	}
	rec.Trophies = merged
	s.touch(rec)
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Debug("trophies synced", zap.String("rsvp_id", id), zap.Int("count", len(merged)))
	s.publish(EventUpdated, rec)
	return rec.Public(), nil
}

// claimEmail points the email index at id, or returns the id that already holds it. A holder
// deleted between the failed claim and the lookup frees the email, so the claim is tried twice.
func (s *Service) claimEmail(ctx context.Context, email, id string) (string, error) {
	for range 2 {
		claimed, err := s.store.ClaimEmail(ctx, email, id)
		if err != nil {
			return "", err
		}
		if claimed {
			return "", nil
		}
		winner, err := s.store.LookupEmail(ctx, email)
		if err != nil {
			return "", err
		}
		if winner != "" {
			return winner, nil
		}
	}
	return "", fmt.Errorf("claim email %s: index keeps changing", email)
}

func (s *Service) checkRate(ctx context.Context, scope, clientIP string) error {
	ok, err := s.limiter.Allow(ctx, scope, clientIP)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("rate limited", zap.String("scope", scope), zap.String("client_ip", clientIP))
		return ErrRateLimited
	}
	return nil
}

func (s *Service) authorized(credential string) bool {
	return s.admin != nil && credential != "" && s.admin.Authorize(credential)
}

// touch refreshes updatedAt; it must move forward even when the clock does not.
func (s *Service) touch(rec *models.Rsvp) {
	now := s.now().UTC()
	if !now.After(rec.UpdatedAt) {
		now = rec.UpdatedAt.Add(time.Millisecond)
	}
	rec.UpdatedAt = now
}

func (s *Service) enqueueEmail(ctx context.Context, kind queue.EmailKind, rec *models.Rsvp) {
	if s.tasks == nil {
		return
	}
	if err := s.tasks.EnqueueEmail(ctx, queue.EmailPayload{Kind: kind, Rsvp: *rec}); err != nil {
		s.logger.Error("enqueue email failed", zap.String("rsvp_id", rec.ID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Service) enqueueCalendar(ctx context.Context, payload queue.CalendarPayload) {
	if s.tasks == nil {
		return
	}
	if err := s.tasks.EnqueueCalendar(ctx, payload); err != nil {
		s.logger.Error("enqueue calendar sync failed", zap.String("rsvp_id", payload.RsvpID), zap.Error(err))
	}
}

func (s *Service) publish(event string, payload any) {
	if s.feed != nil {
		s.feed.Publish(event, payload)
	}
}

// calendarDiff computes the attendee changes for an updated record: a confirmed record is
// merged in and loses dropped companions, a cancelled one leaves entirely.
func calendarDiff(rec *models.Rsvp, before []models.Attendee) queue.CalendarPayload {
	after := rec.Attendees()
	if rec.Status == models.StatusCancelled {
		return queue.CalendarPayload{RsvpID: rec.ID, Remove: attendeeEmails(append(before, after...))}
	}
	current := make(map[string]bool, len(after))
	for _, a := range after {
		current[a.Email] = true
	}
	var removed []models.Attendee
	for _, a := range before {
		if !current[a.Email] {
			removed = append(removed, a)
		}
	}
	return queue.CalendarPayload{RsvpID: rec.ID, Add: after, Remove: attendeeEmails(removed)}
}

func attendeeEmails(list []models.Attendee) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.Email == "" || seen[a.Email] {
			continue
		}
		seen[a.Email] = true
		out = append(out, a.Email)
	}
	return out
}
