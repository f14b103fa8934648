// Package worker drains the email and calendar job lists.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/internal/models"
	"github.com/psg2/level-30-birthday/pkg/queue"
)

// Mailer sends the RSVP emails. notify.Dispatcher implements it.
type Mailer interface {
	SendConfirmation(ctx context.Context, rec *models.Rsvp) error
	SendStatusUpdate(ctx context.Context, rec *models.Rsvp) error
}

// Calendar reconciles the event's attendee list. calendar.Reconciler implements it.
type Calendar interface {
	Sync(ctx context.Context, add []models.Attendee, remove []string) error
}

// Source yields jobs and takes back failed ones. queue.Queue implements it.
type Source interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job, key string) error
}

// Records reads the current RSVP. rsvp.Repository implements it.
type Records interface {
	Get(ctx context.Context, id string) (*models.Rsvp, error)
}

// Processor runs email and calendar jobs.
type Processor struct {
	mailer   Mailer
	calendar Calendar
	source   Source
	records  Records
	backoff  time.Duration
	logger   *zap.Logger
}

// NewProcessor creates a job processor. calendar may be nil when no event is configured.
func NewProcessor(mailer Mailer, calendar Calendar, source Source, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		mailer:   mailer,
		calendar: calendar,
		source:   source,
		backoff:  queue.RetryBackoff,
		logger:   logger,
	}
}

// SetRecords lets retried calendar jobs be checked against the record's current state.
func (p *Processor) SetRecords(r Records) { p.records = r }

// SetBackoff overrides the pause after a failed job or dequeue error.
func (p *Processor) SetBackoff(d time.Duration) { p.backoff = d }

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeEmail:
		var payload queue.EmailPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal email payload: %w", err)
		}
		return p.sendEmail(ctx, payload)
	case queue.JobTypeCalendar:
		var payload queue.CalendarPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal calendar payload: %w", err)
		}
		if p.calendar == nil {
			p.logger.Debug("calendar not configured, dropping job", zap.String("job_id", job.ID))
			return nil
		}
		if job.Attempt > 0 {
			fresh, err := p.refresh(ctx, payload)
			if err != nil {
				return err
			}
			payload = fresh
			if len(payload.Add) == 0 && len(payload.Remove) == 0 {
				p.logger.Debug("stale calendar job dropped", zap.String("job_id", job.ID), zap.String("rsvp_id", payload.RsvpID))
				return nil
			}
		}
		if err := p.calendar.Sync(ctx, payload.Add, payload.Remove); err != nil {
			return fmt.Errorf("calendar sync for %s: %w", payload.RsvpID, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// refresh trims a retried calendar job to what the record still wants. A retry goes to the tail of
// the list, so a later job for the same RSVP may already have run: adds are kept only while the
// record is confirmed and still lists the attendee, removes only for addresses it no longer lists.
func (p *Processor) refresh(ctx context.Context, payload queue.CalendarPayload) (queue.CalendarPayload, error) {
	if p.records == nil || payload.RsvpID == "" {
		return payload, nil
	}
	rec, err := p.records.Get(ctx, payload.RsvpID)
	if err != nil {
		return payload, fmt.Errorf("load rsvp %s: %w", payload.RsvpID, err)
	}

	current := map[string]bool{}
	if rec != nil && rec.Status != models.StatusCancelled {
		for _, a := range rec.Attendees() {
			current[models.NormalizeEmail(a.Email)] = true
		}
	}

	out := queue.CalendarPayload{RsvpID: payload.RsvpID}
	for _, a := range payload.Add {
		if current[models.NormalizeEmail(a.Email)] {
			out.Add = append(out.Add, a)
		}
	}
	for _, email := range payload.Remove {
		if !current[models.NormalizeEmail(email)] {
			out.Remove = append(out.Remove, email)
		}
	}
	return out, nil
}

func (p *Processor) sendEmail(ctx context.Context, payload queue.EmailPayload) error {
	rec := payload.Rsvp
	switch payload.Kind {
	case queue.EmailConfirmation:
		return p.mailer.SendConfirmation(ctx, &rec)
	case queue.EmailStatusUpdate:
		return p.mailer.SendStatusUpdate(ctx, &rec)
	default:
		return fmt.Errorf("unknown email kind: %s", payload.Kind)
	}
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, key, err := p.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Error(err))
			if reErr := p.source.Retry(context.WithoutCancel(ctx), job, key); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
