package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psg2/level-30-birthday/pkg/utils"
)

func TestSessionService_RoundTrip(t *testing.T) {
	s := NewSessionService("secret", 1)
	token, expires, err := s.Generate()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = NewSessionService("other", 1).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionService_Expired(t *testing.T) {
	s := NewSessionService("secret", 1)
	token, _, err := s.Generate()
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionService_Disabled(t *testing.T) {
	s := NewSessionService("", 1)
	assert.False(t, s.Enabled())
	_, _, err := s.Generate()
	assert.Error(t, err)
}

func TestGate(t *testing.T) {
	sessions := NewSessionService("secret", 1)
	token, _, err := sessions.Generate()
	require.NoError(t, err)

	g := NewGate("level30", "", sessions)
	assert.True(t, g.Authorize("level30"))
	assert.True(t, g.Authorize(token))
	assert.False(t, g.Authorize("nope"))
	assert.False(t, g.Authorize(""))
	assert.False(t, g.CheckKey(token))
}

func TestGate_Hash(t *testing.T) {
	hash, err := utils.HashSecret("level30")
	require.NoError(t, err)
	g := NewGate("", hash, nil)
	assert.True(t, g.Authorize("level30"))
	assert.False(t, g.Authorize("level31"))
}

func TestGate_NothingConfigured(t *testing.T) {
	g := NewGate("", "", NewSessionService("secret", 1))
	assert.False(t, g.Enabled())
	assert.False(t, g.Authorize(""))
	assert.False(t, g.Authorize("anything"))
}

func TestHandler_CreateSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := NewSessionService("secret", 1)
	h := NewHandler(NewGate("level30", "", sessions), sessions, nil)
	r := gin.New()
	r.POST("/api/admin/session", h.CreateSession)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/session", strings.NewReader(`{"key":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/session", strings.NewReader(`{"key":"level30"}`)))
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Success bool            `json:"success"`
		Data    SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	_, err := sessions.Validate(body.Data.Token)
	assert.NoError(t, err)
}
