package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psg2/level-30-birthday/internal/models"
	"github.com/psg2/level-30-birthday/internal/rsvp"
)

type memBucket struct {
	key  string
	ct   string
	body []byte
	err  error
}

func (b *memBucket) Upload(_ context.Context, key, ct string, body io.Reader) error {
	if b.err != nil {
		return b.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.key, b.ct, b.body = key, ct, raw
	return nil
}

func (b *memBucket) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://bucket.example.com/" + key + "?sig=1", nil
}

func (b *memBucket) PresignExpire() time.Duration { return 10 * time.Minute }

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func guests() []*models.Rsvp {
	return []*models.Rsvp{
		{
			ID: "abcdefghij", Name: "Ana", Email: "ana@example.com", Status: models.StatusConfirmed,
			PlusOnes:         []models.PlusOne{{Name: "Bia", Email: "bia@example.com"}, {Name: "Caio"}},
			FoodRestrictions: "vegana", Message: "Parabéns, Pedro!",
			Trophies: []string{"nintendo", "lol"}, CreatedAt: at, UpdatedAt: at,
		},
		{ID: "kmnpqrstuv", Name: "Duda", Email: "duda@example.com", Status: models.StatusCancelled, CreatedAt: at, UpdatedAt: at},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, guests()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "ana@example.com", rows[1][2])
	assert.Equal(t, "Bia <bia@example.com>; Caio", rows[1][4])
	assert.Equal(t, "2", rows[1][5])
	assert.Equal(t, "Parabéns, Pedro!", rows[1][7])
	assert.Equal(t, "nintendo lol", rows[1][8])
	assert.Equal(t, "2026-03-01T12:00:00Z", rows[1][9])
	assert.Equal(t, "cancelled", rows[2][3])
	assert.Equal(t, "0", rows[2][5])
}

func TestExport(t *testing.T) {
	b := &memBucket{}
	e := NewExporter(b, nil)
	e.now = func() time.Time { return at }

	res, err := e.Export(context.Background(), guests())
	require.NoError(t, err)
	assert.Equal(t, "exports/2026-03-01/guests-1772366400.csv", res.Key)
	assert.Equal(t, res.Key, b.key)
	assert.Equal(t, contentType, b.ct)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, at.Add(10*time.Minute), res.ExpiresAt)
	assert.Contains(t, res.URL, res.Key)
	assert.Contains(t, string(b.body), "duda@example.com")
}

type fakeGuests struct {
	list *rsvp.GuestList
	err  error
}

func (f fakeGuests) List(_ context.Context, credential string) (*rsvp.GuestList, error) {
	if credential != "level30" {
		return nil, rsvp.ErrUnauthorized
	}
	return f.list, f.err
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/admin/export", h.Create)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, nil))
	return w
}

func TestHandler_Create(t *testing.T) {
	list := &rsvp.GuestList{Total: 2, Guests: guests()}
	h := NewHandler(fakeGuests{list: list}, NewExporter(&memBucket{}, nil), nil)

	w := serve(h, "/api/admin/export?key=level30")
	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Success bool   `json:"success"`
		Data    Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Data.Rows)

	assert.Equal(t, http.StatusUnauthorized, serve(h, "/api/admin/export").Code)
}

func TestHandler_Errors(t *testing.T) {
	h := NewHandler(fakeGuests{}, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "/api/admin/export?key=level30").Code)

	h = NewHandler(fakeGuests{list: &rsvp.GuestList{}}, NewExporter(&memBucket{err: errors.New("denied")}, nil), nil)
	assert.Equal(t, http.StatusInternalServerError, serve(h, "/api/admin/export?key=level30").Code)
}
