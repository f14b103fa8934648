package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/internal/models"
	rediskeys "github.com/psg2/level-30-birthday/pkg/redis"
)

const (
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// PollTimeout bounds each blocking pop so the worker notices shutdown.
	PollTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeEmail    JobType = "email"
	JobTypeCalendar JobType = "calendar"
)

// EmailKind selects the notification copy.
type EmailKind string

const (
	EmailConfirmation EmailKind = "confirmation"
	EmailStatusUpdate EmailKind = "status_update"
)

// EmailPayload carries a snapshot of the record taken right after the write committed.
type EmailPayload struct {
	Kind EmailKind   `json:"kind"`
	Rsvp models.Rsvp `json:"rsvp"`
}

// CalendarPayload lists attendees to merge into and drop from the calendar event.
type CalendarPayload struct {
	RsvpID string            `json:"rsvp_id"`
	Add    []models.Attendee `json:"add,omitempty"`
	Remove []string          `json:"remove,omitempty"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis lists.
type Queue struct {
	client *redis.Client
	keys   rediskeys.Keyspace
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, keys rediskeys.Keyspace, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, keys: keys, logger: logger}
}

// EmailsKey is the list holding email jobs.
func (q *Queue) EmailsKey() string { return q.keys.Key("worker", "emails") }

// CalendarKey is the list holding calendar sync jobs.
func (q *Queue) CalendarKey() string { return q.keys.Key("worker", "calendar") }

// DLQKey is the dead-letter list for jobs that exhausted their retries.
func (q *Queue) DLQKey() string { return q.keys.Key("worker", "dlq") }

// EnqueueEmail enqueues an email job.
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	job, err := q.push(ctx, q.EmailsKey(), JobTypeEmail, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued email job", zap.String("job_id", job.ID), zap.String("kind", string(payload.Kind)), zap.String("rsvp_id", payload.Rsvp.ID))
	return nil
}

// EnqueueCalendar enqueues a calendar sync job. Empty payloads are dropped.
func (q *Queue) EnqueueCalendar(ctx context.Context, payload CalendarPayload) error {
	if len(payload.Add) == 0 && len(payload.Remove) == 0 {
		return nil
	}
	job, err := q.push(ctx, q.CalendarKey(), JobTypeCalendar, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued calendar job", zap.String("job_id", job.ID), zap.String("rsvp_id", payload.RsvpID))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, typ JobType, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return nil, fmt.Errorf("rpush: %w", err)
	}
	return job, nil
}

// Dequeue blocks up to PollTimeout for a job on any work list. Returns job and key (queue name);
// a nil job with nil error means the wait timed out.
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, PollTimeout, q.EmailsKey(), q.CalendarKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job on key with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job, key string) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, q.DLQKey(), raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
