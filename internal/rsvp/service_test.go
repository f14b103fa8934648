package rsvp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psg2/level-30-birthday/internal/models"
	"github.com/psg2/level-30-birthday/internal/ratelimit"
	"github.com/psg2/level-30-birthday/pkg/queue"
)

const (
	testIP    = "203.0.113.7"
	testAdmin = "level30"
)

type staticGate string

func (g staticGate) Authorize(cred string) bool { return cred == string(g) }

type fakeTasks struct {
	mu       sync.Mutex
	emails   []queue.EmailPayload
	calendar []queue.CalendarPayload
	err      error
}

func (f *fakeTasks) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, p)
	return f.err
}

func (f *fakeTasks) EnqueueCalendar(_ context.Context, p queue.CalendarPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendar = append(f.calendar, p)
	return f.err
}

type fakeFeed struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeFeed) Publish(event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fixture struct {
	svc   *Service
	repo  *Repository
	mr    *miniredis.Miniredis
	tasks *fakeTasks
	feed  *fakeFeed
	clock *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewRepository(client, "birthday", nil)
	limiter := ratelimit.New(client, "birthday", 5, time.Hour)
	f := &fixture{repo: repo, mr: mr, tasks: &fakeTasks{}, feed: &fakeFeed{}}
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	f.clock = &now
	f.svc = NewService(repo, limiter, f.tasks, staticGate(testAdmin), nil,
		WithClock(func() time.Time { return *f.clock }),
		WithBroadcaster(f.feed),
	)
	return f
}

func (f *fixture) create(t *testing.T, in CreateInput) string {
	t.Helper()
	res, err := f.svc.Create(context.Background(), testIP, in)
	require.NoError(t, err)
	require.True(t, res.Success)
	return res.ID
}

func TestCreateThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.create(t, CreateInput{Name: "  Ana Souza ", Email: " Ana@Example.com ", Message: "bora!"})
	assert.True(t, ValidID(id))

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana Souza", got.Name)
	assert.Equal(t, "an***@example.com", got.Email)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	stored, err := f.repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", stored.Email)

	require.Len(t, f.tasks.emails, 1)
	assert.Equal(t, queue.EmailConfirmation, f.tasks.emails[0].Kind)
	require.Len(t, f.tasks.calendar, 1)
	assert.Equal(t, []models.Attendee{{Email: "ana@example.com", DisplayName: "Ana Souza"}}, f.tasks.calendar[0].Add)
	assert.Equal(t, []string{EventCreated}, f.feed.events)
}

func TestGet_Unknown(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.Get(context.Background(), "zzzzzzzzzz")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreate_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com"})

	res, err := f.svc.Create(ctx, testIP, CreateInput{Name: "Ana again", Email: "  ANA@example.COM"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Duplicate)
	assert.Equal(t, id, res.ExistingID)

	list, err := f.svc.List(ctx, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	assert.Len(t, f.tasks.emails, 1)
}

type racingStore struct {
	*Repository
	once sync.Once
}

// LookupEmail misses once, as if a concurrent create had not yet claimed the email.
func (s *racingStore) LookupEmail(ctx context.Context, email string) (string, error) {
	miss := false
	s.once.Do(func() { miss = true })
	if miss {
		return "", nil
	}
	return s.Repository.LookupEmail(ctx, email)
}

func TestCreate_LostClaimReturnsWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mr.Set("birthday:email:ana@example.com", "wwwwwwwwww"))

	store := &racingStore{Repository: f.repo}
	svc := NewService(store, ratelimit.New(redis.NewClient(&redis.Options{Addr: f.mr.Addr()}), "birthday", 5, time.Hour), f.tasks, staticGate(testAdmin), nil)

	res, err := svc.Create(ctx, testIP, CreateInput{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "wwwwwwwwww", res.ExistingID)

	assert.Len(t, f.mr.Keys(), 2) // email index and rate limit counter
	assert.Empty(t, f.tasks.emails)
}

// vanishingClaimStore refuses the first `refusals` claims while the index stays empty, as if
// the record holding the email was deleted right after winning.
type vanishingClaimStore struct {
	*Repository
	refusals int
}

func (s *vanishingClaimStore) ClaimEmail(ctx context.Context, email, id string) (bool, error) {
	if s.refusals > 0 {
		s.refusals--
		return false, nil
	}
	return s.Repository.ClaimEmail(ctx, email, id)
}

func TestCreate_ClaimRetriedWhenWinnerVanishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := &vanishingClaimStore{Repository: f.repo, refusals: 1}
	svc := NewService(store, ratelimit.New(redis.NewClient(&redis.Options{Addr: f.mr.Addr()}), "birthday", 5, time.Hour), f.tasks, staticGate(testAdmin), nil)

	res, err := svc.Create(ctx, testIP, CreateInput{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Duplicate)

	owner, err := f.repo.LookupEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, res.ID, owner)
}

func TestCreate_ClaimNeverSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := &vanishingClaimStore{Repository: f.repo, refusals: 2}
	svc := NewService(store, ratelimit.New(redis.NewClient(&redis.Options{Addr: f.mr.Addr()}), "birthday", 5, time.Hour), f.tasks, staticGate(testAdmin), nil)

	res, err := svc.Create(ctx, testIP, CreateInput{Name: "Ana", Email: "ana@example.com"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Len(t, f.mr.Keys(), 1) // only the rate limit counter
	assert.Empty(t, f.tasks.emails)
}

func TestCreate_Honeypot(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), testIP, CreateInput{Name: "Bot", Email: "bot@example.com", Website: "http://spam"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "ok", res.ID)
	assert.Empty(t, f.mr.Keys())
	assert.Empty(t, f.tasks.emails)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, testIP, CreateInput{Name: "   ", Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(ctx, testIP, CreateInput{Name: "Ana", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreate_PlusOnes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{
		Name:  "Ana",
		Email: "ana@example.com",
		PlusOnes: []models.PlusOne{
			{Name: " Bia ", Email: "Bia@Example.com"},
			{Name: "   ", Email: "ghost@example.com"},
			{Name: "Caio"},
			{Name: "Duda", Email: "duda@example.com"},
			{Name: "Edu", Email: "edu@example.com"},
		},
	})

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []models.PlusOne{
		{Name: "Bia", Email: "bi***@example.com"},
		{Name: "Caio", Email: ""},
		{Name: "Duda", Email: "du***@example.com"},
	}, got.PlusOnes)

	add := f.tasks.calendar[0].Add
	require.Len(t, add, 3)
	assert.Equal(t, "bia@example.com", add[1].Email)
	assert.Equal(t, "duda@example.com", add[2].Email)
}

func TestCreate_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.svc.Create(ctx, testIP, CreateInput{Name: "Ana", Email: "ana@example.com"})
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, testIP, CreateInput{Name: "Ana", Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = f.svc.Create(ctx, "198.51.100.1", CreateInput{Name: "Bia", Email: "bia@example.com"})
	assert.NoError(t, err)

	f.mr.FastForward(time.Hour + time.Second)
	_, err = f.svc.Create(ctx, testIP, CreateInput{Name: "Caio", Email: "caio@example.com"})
	assert.NoError(t, err)
}

func TestUpdate_CancelThenConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com", PlusOnes: []models.PlusOne{{Name: "Bia", Email: "bia@example.com"}}})
	created, err := f.svc.Get(ctx, id)
	require.NoError(t, err)

	cancelled := models.StatusCancelled
	got, err := f.svc.Update(ctx, testIP, id, UpdateInput{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.True(t, got.UpdatedAt.After(created.UpdatedAt))
	first := got.UpdatedAt

	confirmed := models.StatusConfirmed
	got, err = f.svc.Update(ctx, testIP, id, UpdateInput{Status: &confirmed})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.True(t, got.UpdatedAt.After(first))
	assert.Equal(t, created.CreatedAt, got.CreatedAt)

	require.Len(t, f.tasks.emails, 3)
	assert.Equal(t, queue.EmailStatusUpdate, f.tasks.emails[1].Kind)
	assert.Equal(t, models.StatusCancelled, f.tasks.emails[1].Rsvp.Status)
	assert.Equal(t, models.StatusConfirmed, f.tasks.emails[2].Rsvp.Status)

	require.Len(t, f.tasks.calendar, 3)
	assert.ElementsMatch(t, []string{"ana@example.com", "bia@example.com"}, f.tasks.calendar[1].Remove)
	assert.Empty(t, f.tasks.calendar[1].Add)
	assert.Len(t, f.tasks.calendar[2].Add, 2)
	assert.Empty(t, f.tasks.calendar[2].Remove)
}

func TestUpdate_Fields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com", PlusOnes: []models.PlusOne{{Name: "Bia", Email: "bia@example.com"}}})

	name, msg, food := " Ana S. ", "chego tarde", "vegana"
	plusOnes := []models.PlusOne{{Name: "Caio", Email: "caio@example.com"}}
	got, err := f.svc.Update(ctx, testIP, id, UpdateInput{Name: &name, Message: &msg, FoodRestrictions: &food, PlusOnes: &plusOnes})
	require.NoError(t, err)
	assert.Equal(t, "Ana S.", got.Name)
	assert.Equal(t, "chego tarde", got.Message)
	assert.Equal(t, "vegana", got.FoodRestrictions)
	assert.Equal(t, []models.PlusOne{{Name: "Caio", Email: "ca***@example.com"}}, got.PlusOnes)

	diff := f.tasks.calendar[len(f.tasks.calendar)-1]
	assert.Equal(t, []string{"bia@example.com"}, diff.Remove)
	assert.Len(t, diff.Add, 2)
}

func TestUpdate_PlusOnesCleanedAndMaskedOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com"})

	plusOnes := []models.PlusOne{
		{Name: "Bia", Email: " Bia@Example.com "},
		{Name: "  ", Email: "ghost@example.com"},
		{Name: "Caio", Email: "caio@example.com"},
		{Name: "Duda"},
		{Name: "Enzo", Email: "enzo@example.com"},
	}
	_, err := f.svc.Update(ctx, testIP, id, UpdateInput{PlusOnes: &plusOnes})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []models.PlusOne{
		{Name: "Bia", Email: "bi***@example.com"},
		{Name: "Caio", Email: "ca***@example.com"},
		{Name: "Duda", Email: ""},
	}, got.PlusOnes)

	stored, err := f.repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bia@example.com", stored.PlusOnes[0].Email)
}

func TestUpdate_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, testIP, "zzzzzzzzzz", UpdateInput{})
	assert.ErrorIs(t, err, ErrNotFound)

	id := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com"})
	blank := "  "
	_, err = f.svc.Update(ctx, testIP, id, UpdateInput{Name: &blank})
	assert.ErrorIs(t, err, ErrValidation)

	bogus := models.Status("maybe")
	_, err = f.svc.Update(ctx, testIP, id, UpdateInput{Status: &bogus})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdate_RateLimitedSeparately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com"})

	msg := "oi"
	for i := 0; i < 5; i++ {
		_, err := f.svc.Update(ctx, testIP, id, UpdateInput{Message: &msg})
		require.NoError(t, err)
	}
	_, err := f.svc.Update(ctx, testIP, id, UpdateInput{Message: &msg})
	assert.ErrorIs(t, err, ErrRateLimited)

	f.mr.FastForward(time.Hour + time.Second)
	_, err = f.svc.Update(ctx, testIP, id, UpdateInput{Message: &msg})
	assert.NoError(t, err)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.List(ctx, "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	first := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com"})
	*f.clock = f.clock.Add(time.Minute)
	second := f.create(t, CreateInput{Name: "Bia", Email: "bia@example.com"})
	cancelled := models.StatusCancelled
	_, err = f.svc.Update(ctx, testIP, first, UpdateInput{Status: &cancelled})
	require.NoError(t, err)

	list, err := f.svc.List(ctx, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Confirmed)
	assert.Equal(t, 1, list.Cancelled)
	assert.Equal(t, list.Total, list.Confirmed+list.Cancelled)
	require.Len(t, list.Guests, 2)
	assert.Equal(t, second, list.Guests[0].ID)
	assert.Equal(t, "bia@example.com", list.Guests[0].Email)
}

func TestDelete_FreesEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com"})

	assert.ErrorIs(t, f.svc.Delete(ctx, id, "wrong"), ErrUnauthorized)
	assert.ErrorIs(t, f.svc.Delete(ctx, "zzzzzzzzzz", testAdmin), ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, id, testAdmin))

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	last := f.tasks.calendar[len(f.tasks.calendar)-1]
	assert.Equal(t, []string{"ana@example.com"}, last.Remove)
	assert.Contains(t, f.feed.events, EventDeleted)

	res, err := f.svc.Create(ctx, testIP, CreateInput{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEqual(t, id, res.ID)
}

func TestSyncTrophies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com"})

	got, err := f.svc.SyncTrophies(ctx, id, []string{"teatro", "nintendo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"nintendo", "teatro"}, got.Trophies)

	got, err = f.svc.SyncTrophies(ctx, id, []string{"lol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"nintendo", "lol", "teatro"}, got.Trophies)

	_, err = f.svc.SyncTrophies(ctx, id, []string{"zelda"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SyncTrophies(ctx, "zzzzzzzzzz", []string{"lol"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, f.tasks.emails, 1)
}

func TestEnqueueFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.tasks.err = errors.New("queue down")

	id := f.create(t, CreateInput{Name: "Ana", Email: "ana@example.com"})
	got, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
