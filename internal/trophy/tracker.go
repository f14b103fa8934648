package trophy

import (
	"sync"
	"time"
)

// Default notification timings.
const (
	DefaultNotificationTTL = 3 * time.Second
	DefaultPlatinumDelay   = 3500 * time.Millisecond
	DefaultPlatinumTTL     = 5 * time.Second
)

// Snapshot is the tracker state handed to listeners after every change.
// Version increases with every snapshot; listeners run outside the lock and
// may see snapshots out of order.
type Snapshot struct {
	Version         uint64
	Found           []string
	RsvpID          string
	LastUnlocked    *Trophy
	JustGotPlatinum bool
}

// Listener observes tracker changes. It is called outside the tracker lock.
type Listener func(Snapshot)

// Timings controls when transient notifications appear and clear.
type Timings struct {
	NotificationTTL time.Duration
	PlatinumDelay   time.Duration
	PlatinumTTL     time.Duration
}

// DefaultTimings returns the site's notification timings.
func DefaultTimings() Timings {
	return Timings{
		NotificationTTL: DefaultNotificationTTL,
		PlatinumDelay:   DefaultPlatinumDelay,
		PlatinumTTL:     DefaultPlatinumTTL,
	}
}

// Tracker holds the found set and the transient notification state.
type Tracker struct {
	mu        sync.Mutex
	timings   Timings
	found     map[string]bool
	rsvpID    string
	last      *Trophy
	platinum  bool
	listeners []Listener
	timers    []*time.Timer
	version   uint64
	closed    bool
}

// NewTracker creates a tracker seeded with previously found ids. Unknown ids are dropped.
func NewTracker(initial []string, timings Timings) *Tracker {
	t := &Tracker{timings: timings, found: make(map[string]bool)}
	for _, id := range initial {
		if Known(id) {
			t.found[id] = true
		}
	}
	return t
}

// OnChange registers a listener.
func (t *Tracker) OnChange(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Unlock marks id found. Unknown and already-found ids are ignored and return false.
func (t *Tracker) Unlock(id string) bool {
	tr, ok := Lookup(id)
	if !ok {
		return false
	}

	t.mu.Lock()
	if t.closed || t.found[id] {
		t.mu.Unlock()
		return false
	}
	t.found[id] = true
	t.last = &tr
	t.after(t.timings.NotificationTTL, func() bool {
		if t.last != nil && t.last.ID == id {
			t.last = nil
			return true
		}
		return false
	})
	if len(t.found) >= Total() {
		t.after(t.timings.PlatinumDelay, func() bool {
			t.platinum = true
			t.after(t.timings.PlatinumTTL, func() bool {
				if !t.platinum {
					return false
				}
				t.platinum = false
				return true
			})
			return true
		})
	}
	snap, listeners := t.snapshotLocked()
	t.mu.Unlock()

	notify(listeners, snap)
	return true
}

// IsFound reports whether id has been found.
func (t *Tracker) IsFound(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.found[id]
}

// Found returns the found ids in catalog order.
func (t *Tracker) Found() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.foundLocked()
}

// AllFound reports whether every catalog trophy has been found.
func (t *Tracker) AllFound() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.found) >= Total()
}

// LastUnlocked returns the trophy currently being announced, or nil.
func (t *Tracker) LastUnlocked() *Trophy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// JustGotPlatinum reports whether the platinum announcement is showing.
func (t *Tracker) JustGotPlatinum() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.platinum
}

// DismissNotification clears the current trophy announcement.
func (t *Tracker) DismissNotification() {
	t.update(func() bool {
		if t.last == nil {
			return false
		}
		t.last = nil
		return true
	})
}

// DismissPlatinum clears the platinum announcement.
func (t *Tracker) DismissPlatinum() {
	t.update(func() bool {
		if !t.platinum {
			return false
		}
		t.platinum = false
		return true
	})
}

// SetRsvpID records the guest's RSVP id so found trophies can be pushed to the server.
func (t *Tracker) SetRsvpID(id string) {
	t.update(func() bool {
		if t.rsvpID == id {
			return false
		}
		t.rsvpID = id
		return true
	})
}

// RsvpID returns the recorded RSVP id.
func (t *Tracker) RsvpID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rsvpID
}

// Close stops pending timers. Later changes are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, tm := range t.timers {
		tm.Stop()
	}
	t.timers = nil
}

// update applies fn under the lock and notifies listeners when it reports a change.
func (t *Tracker) update(fn func() bool) {
	t.mu.Lock()
	if t.closed || !fn() {
		t.mu.Unlock()
		return
	}
	snap, listeners := t.snapshotLocked()
	t.mu.Unlock()
	notify(listeners, snap)
}

// after schedules fn to run under the lock after d. Must be called with the lock held.
func (t *Tracker) after(d time.Duration, fn func() bool) {
	t.timers = append(t.timers, time.AfterFunc(d, func() { t.update(fn) }))
}

func (t *Tracker) snapshotLocked() (Snapshot, []Listener) {
	t.version++
	snap := Snapshot{
		Version:         t.version,
		Found:           t.foundLocked(),
		RsvpID:          t.rsvpID,
		JustGotPlatinum: t.platinum,
	}
	if t.last != nil {
		last := *t.last
		snap.LastUnlocked = &last
	}
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	return snap, listeners
}

func (t *Tracker) foundLocked() []string {
	out := make([]string, 0, len(t.found))
	for _, tr := range Catalog {
		if t.found[tr.ID] {
			out = append(out, tr.ID)
		}
	}
	return out
}

func notify(listeners []Listener, snap Snapshot) {
	for _, l := range listeners {
		l(snap)
	}
}
