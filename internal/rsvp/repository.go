package rsvp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/internal/models"
	rediskeys "github.com/psg2/level-30-birthday/pkg/redis"
)

// Repository persists RSVP records, the email index and the id set in Redis.
// Lookups return nil (or "") for absence, never an error.
type Repository struct {
	client *redis.Client
	keys   rediskeys.Keyspace
	logger *zap.Logger
}

// NewRepository creates an RSVP repository.
func NewRepository(client *redis.Client, keys rediskeys.Keyspace, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{client: client, keys: keys, logger: logger}
}

func (r *Repository) recordKey(id string) string   { return r.keys.Key("rsvp", id) }
func (r *Repository) emailKey(email string) string { return r.keys.Key("email", email) }
func (r *Repository) idsKey() string               { return r.keys.Key("rsvp_ids") }

// Get returns the record for id, or nil if none exists.
func (r *Repository) Get(ctx context.Context, id string) (*models.Rsvp, error) {
	raw, err := r.client.Get(ctx, r.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rsvp %s: %w", id, err)
	}
	rec, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode rsvp %s: %w", id, err)
	}
	return rec, nil
}

// Put writes the full record.
func (r *Repository) Put(ctx context.Context, rec *models.Rsvp) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal rsvp: %w", err)
	}
	if err := r.client.Set(ctx, r.recordKey(rec.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("put rsvp %s: %w", rec.ID, err)
	}
	return nil
}

// LookupEmail returns the id indexed under a normalized email, or "".
func (r *Repository) LookupEmail(ctx context.Context, email string) (string, error) {
	id, err := r.client.Get(ctx, r.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("lookup email: %w", err)
	}
	return id, nil
}

// ClaimEmail indexes email → id only if the email is free. Returns false when another id holds it.
func (r *Repository) ClaimEmail(ctx context.Context, email, id string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.emailKey(email), id, 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim email: %w", err)
	}
	return ok, nil
}

// AddID adds id to the set enumerated by admin listings.
func (r *Repository) AddID(ctx context.Context, id string) error {
	if err := r.client.SAdd(ctx, r.idsKey(), id).Err(); err != nil {
		return fmt.Errorf("add rsvp id: %w", err)
	}
	return nil
}

// ListIDs returns every known record id.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list rsvp ids: %w", err)
	}
	return ids, nil
}

// GetMany fetches records in one round trip. Ids without a record, or whose record
// cannot be decoded, are skipped: the id set may drift from the records.
func (r *Repository) GetMany(ctx context.Context, ids []string) ([]*models.Rsvp, error) {
	if len(ids) == 0 {
		return []*models.Rsvp{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget rsvps: %w", err)
	}
	out := make([]*models.Rsvp, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			r.logger.Warn("rsvp id without record", zap.String("rsvp_id", ids[i]))
			continue
		}
		rec, err := decode([]byte(s))
		if err != nil {
			r.logger.Warn("skipping undecodable rsvp", zap.String("rsvp_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Remove deletes a bare record without touching the index, used to undo a create that lost
// the email claim.
func (r *Repository) Remove(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.recordKey(id)).Err(); err != nil {
		return fmt.Errorf("remove rsvp %s: %w", id, err)
	}
	return nil
}

// deleteScript drops the email index entry only while it still points at this record.
var deleteScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
	redis.call("DEL", KEYS[2])
end
redis.call("SREM", KEYS[3], ARGV[1])
return 1
`)

// Delete removes the record, frees its email for reuse and drops it from the id set.
func (r *Repository) Delete(ctx context.Context, rec *models.Rsvp) error {
	keys := []string{r.recordKey(rec.ID), r.emailKey(rec.Email), r.idsKey()}
	if err := deleteScript.Run(ctx, r.client, keys, rec.ID).Err(); err != nil {
		return fmt.Errorf("delete rsvp %s: %w", rec.ID, err)
	}
	return nil
}

func decode(raw []byte) (*models.Rsvp, error) {
	var rec models.Rsvp
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	rec.Normalize()
	return &rec, nil
}
