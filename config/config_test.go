package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "")
	t.Setenv("RATE_LIMIT_WINDOW", "")
	t.Setenv("RATE_LIMIT_MAX", "")
	t.Setenv("ADMIN_KEY", "s3cret")
	t.Setenv("ADMIN_JWT_SECRET", "")
	t.Setenv("SITE_URL", "https://party.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "noop", cfg.Email.Provider)
	assert.Equal(t, 5, cfg.RateLimit.Max)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, "s3cret", cfg.Admin.JWTSecret)
	assert.Equal(t, "https://party.example.com", cfg.Site.BaseURL)
	assert.Equal(t, "primary", cfg.Calendar.CalendarID)
	assert.False(t, cfg.Calendar.Enabled())
}

func TestLoad_RateLimitWindowFormats(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "noop")

	t.Setenv("RATE_LIMIT_WINDOW", "600")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.Window)

	t.Setenv("RATE_LIMIT_WINDOW", "90m")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.RateLimit.Window)

	t.Setenv("RATE_LIMIT_WINDOW", "soon")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_UnknownProvider(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "pigeon")
	t.Setenv("RATE_LIMIT_WINDOW", "")

	_, err := Load()
	require.Error(t, err)
}

func TestCalendarEnabled(t *testing.T) {
	c := CalendarConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "rt"}
	assert.False(t, c.Enabled())
	c.EventID = "evt"
	assert.True(t, c.Enabled())
}
