package trophy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// DefaultSyncDelay coalesces bursts of unlocks into one push.
const DefaultSyncDelay = time.Second

// Syncer pushes the found set for an RSVP to the server.
type Syncer interface {
	Sync(ctx context.Context, rsvpID string, trophies []string) error
}

// lastState remembers the found set and RSVP id of the last snapshot a listener acted on.
// Notification and platinum snapshots leave both unchanged.
type lastState struct {
	mu      sync.Mutex
	seen    bool
	version uint64
	found   []string
	rsvpID  string
}

// diff records snap and reports which of its persisted fields changed since the last call.
// A snapshot older than one already seen reports no change. Version 0 is unordered.
func (l *lastState) diff(snap Snapshot) (foundChanged, rsvpChanged bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if snap.Version != 0 {
		if l.seen && snap.Version <= l.version {
			return false, false
		}
		l.version = snap.Version
	}
	foundChanged = !l.seen || !slices.Equal(l.found, snap.Found)
	rsvpChanged = !l.seen || l.rsvpID != snap.RsvpID
	l.seen = true
	l.found = slices.Clone(snap.Found)
	l.rsvpID = snap.RsvpID
	return foundChanged, rsvpChanged
}

// DebouncedSync is a Listener that pushes the latest snapshot once changes settle.
// Snapshots that change neither the found set nor the RSVP id are ignored.
// Pushes are fire-and-forget: failures are logged.
type DebouncedSync struct {
	syncer  Syncer
	delay   time.Duration
	timeout time.Duration
	logger  *zap.Logger
	last    lastState

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewDebouncedSync creates a debounced listener. delay <= 0 uses DefaultSyncDelay.
func NewDebouncedSync(syncer Syncer, delay time.Duration, logger *zap.Logger) *DebouncedSync {
	if delay <= 0 {
		delay = DefaultSyncDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DebouncedSync{syncer: syncer, delay: delay, timeout: 10 * time.Second, logger: logger}
}

// Listen implements Listener. Each change restarts the delay.
func (d *DebouncedSync) Listen(snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if found, rsvp := d.last.diff(snap); !found && !rsvp {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.push(snap) })
}

// Close cancels a pending push.
func (d *DebouncedSync) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *DebouncedSync) push(snap Snapshot) {
	if snap.RsvpID == "" || len(snap.Found) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.syncer.Sync(ctx, snap.RsvpID, snap.Found); err != nil {
		d.logger.Warn("trophy sync failed", zap.String("rsvp_id", snap.RsvpID), zap.Error(err))
	}
}

// HTTPSyncer posts trophies to POST {baseURL}/api/rsvp/{id}/trophies.
type HTTPSyncer struct {
	baseURL string
	client  *http.Client
	backoff func() retry.Backoff
}

// NewHTTPSyncer creates a syncer for the site at baseURL. client may be nil.
// Each push is a single attempt unless WithRetries is set.
func NewHTTPSyncer(baseURL string, client *http.Client) *HTTPSyncer {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSyncer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(0, retry.NewConstant(time.Millisecond))
		},
	}
}

// WithRetries retries server errors and transport failures up to n times with exponential
// backoff from 200ms.
func (s *HTTPSyncer) WithRetries(n uint64) *HTTPSyncer {
	s.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(n, retry.NewExponential(200*time.Millisecond))
	}
	return s
}

// Sync implements Syncer. Only server errors and transport failures are retryable.
func (s *HTTPSyncer) Sync(ctx context.Context, rsvpID string, trophies []string) error {
	body, err := json.Marshal(map[string][]string{"trophies": trophies})
	if err != nil {
		return err
	}
	endpoint := s.baseURL + "/api/rsvp/" + url.PathEscape(rsvpID) + "/trophies"

	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("sync trophies: status %d", resp.StatusCode))
		case resp.StatusCode >= 300:
			return fmt.Errorf("sync trophies: status %d", resp.StatusCode)
		}
		return nil
	})
}
