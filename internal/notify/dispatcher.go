// Package notify renders and sends the RSVP emails.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/internal/models"
)

// Template names under templates/.
const (
	templateConfirmation = "confirmation"
	templateStatusUpdate = "status_update"
)

// Site holds the event details printed in every email.
type Site struct {
	BaseURL      string
	EventTitle   string
	EventHost    string
	DateLabel    string
	DetailsLabel string
}

// Recorder stores one row per delivery attempt. emaillogs.Repository implements it.
type Recorder interface {
	Record(ctx context.Context, entry *models.EmailLog) error
}

// EmailData is the template context.
type EmailData struct {
	ID               string
	Name             string
	RsvpURL          string
	Confirmed        bool
	PlusOneNames     string
	PlusOneLabel     string
	FoodRestrictions string
	EventTitle       string
	EventHost        string
	HostFirstName    string
	DateLabel        string
	DetailsLabel     string
}

// Dispatcher renders the RSVP emails and hands them to a Mailer.
type Dispatcher struct {
	mailer   Mailer
	renderer *Renderer
	site     Site
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. recorder may be nil.
func NewDispatcher(mailer Mailer, site Site, recorder Recorder, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	site.BaseURL = strings.TrimRight(site.BaseURL, "/")
	return &Dispatcher{
		mailer:   mailer,
		renderer: NewRenderer(),
		site:     site,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// SendConfirmation sends the first confirmation for a new RSVP.
func (d *Dispatcher) SendConfirmation(ctx context.Context, rec *models.Rsvp) error {
	return d.send(ctx, rec, templateConfirmation, models.EmailTypeConfirmation)
}

// SendStatusUpdate sends the re-confirmation or cancellation notice after an update.
func (d *Dispatcher) SendStatusUpdate(ctx context.Context, rec *models.Rsvp) error {
	return d.send(ctx, rec, templateStatusUpdate, models.EmailTypeStatusUpdate)
}

func (d *Dispatcher) send(ctx context.Context, rec *models.Rsvp, tmpl, emailType string) error {
	if rec == nil {
		return fmt.Errorf("%s email: nil rsvp", emailType)
	}
	subject, html, text, err := d.renderer.Render(tmpl, d.data(rec))
	if err != nil {
		return fmt.Errorf("render %s: %w", tmpl, err)
	}

	sendErr := d.mailer.Send(ctx, rec.Email, subject, html, text)
	d.record(ctx, rec, emailType, subject, sendErr)
	if sendErr != nil {
		return fmt.Errorf("send %s email: %w", emailType, sendErr)
	}
	d.logger.Info("email sent",
		zap.String("rsvp_id", rec.ID),
		zap.String("email_type", emailType),
		zap.String("provider", d.mailer.Provider()),
	)
	return nil
}

func (d *Dispatcher) data(rec *models.Rsvp) EmailData {
	names := rec.PlusOneNames()
	label := "Acompanhante"
	if len(names) > 1 {
		label = "Acompanhantes"
	}
	host := d.site.EventHost
	first := host
	if fields := strings.Fields(host); len(fields) > 0 {
		first = fields[0]
	}
	return EmailData{
		ID:               rec.ID,
		Name:             rec.Name,
		RsvpURL:          d.site.BaseURL + "/rsvp/" + rec.ID,
		Confirmed:        rec.Status != models.StatusCancelled,
		PlusOneNames:     strings.Join(names, ", "),
		PlusOneLabel:     label,
		FoodRestrictions: rec.FoodRestrictions,
		EventTitle:       d.site.EventTitle,
		EventHost:        host,
		HostFirstName:    first,
		DateLabel:        d.site.DateLabel,
		DetailsLabel:     d.site.DetailsLabel,
	}
}

func (d *Dispatcher) record(ctx context.Context, rec *models.Rsvp, emailType, subject string, sendErr error) {
	if d.recorder == nil {
		return
	}
	now := d.now().UTC()
	entry := &models.EmailLog{
		ID:             uuid.New(),
		RsvpID:         rec.ID,
		EmailType:      emailType,
		RecipientEmail: rec.Email,
		Subject:        subject,
		Provider:       d.mailer.Provider(),
		Status:         models.EmailLogStatusSent,
		CreatedAt:      now,
	}
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = sendErr.Error()
	} else {
		entry.SentAt = &now
	}
	if err := d.recorder.Record(ctx, entry); err != nil {
		d.logger.Warn("record email log failed", zap.String("rsvp_id", rec.ID), zap.Error(err))
	}
}
