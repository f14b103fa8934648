package calendar

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/psg2/level-30-birthday/pkg/response"
)

const (
	stateCookie   = "level30_oauth_state"
	stateTTL      = 600
	callbackPath  = "/api/oauth/callback"
	missingTokens = "NOT RETURNED: you may have already authorized. Revoke access at https://myaccount.google.com/permissions and try again."
)

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>OAuth Complete</title></head>
<body style="margin:0;padding:40px;background:#0A0A0A;color:#F5E6D3;font-family:monospace;">
  <div style="max-width:600px;margin:0 auto;">
    <h1 style="color:#D4A843;font-style:italic;font-family:Georgia,serif;">🎭 Level 30 · OAuth Complete</h1>
    <p style="color:#00F5D4;">✓ Authorization successful!</p>
    <p style="color:#D4A843;font-size:12px;letter-spacing:2px;text-transform:uppercase;">Refresh Token</p>
    <textarea readonly style="width:100%;height:80px;background:#1A1A1A;border:1px solid #D4A84340;color:#00F5D4;padding:12px;font-family:monospace;font-size:12px;resize:none;">{{.RefreshToken}}</textarea>
    <p style="color:#F5E6D360;font-size:12px;margin-top:8px;">Add it to your <code>.env</code> as <code style="color:#D4A843;">GOOGLE_REFRESH_TOKEN</code>, then set <code style="color:#D4A843;">GOOGLE_CALENDAR_EVENT_ID</code> and restart the server.</p>
  </div>
</body>
</html>
`))

// OAuthHandler runs the one-time consent flow that yields the refresh token.
type OAuthHandler struct {
	cfg    Config
	logger *zap.Logger
}

// NewOAuthHandler creates the OAuth bootstrap handler.
func NewOAuthHandler(cfg Config, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthHandler{cfg: cfg, logger: logger}
}

// Start handles GET /api/oauth/start. It redirects to Google consent asking for offline access.
func (h *OAuthHandler) Start(c *gin.Context) {
	if h.cfg.ClientID == "" {
		response.ServiceUnavailable(c, "GOOGLE_CLIENT_ID not set")
		return
	}
	state, err := newState()
	if err != nil {
		h.logger.Error("generate oauth state failed", zap.Error(err))
		response.Internal(c, "failed to start oauth")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, stateTTL, callbackPath, "", !isLocal(c.Request.Host), true)

	url := h.cfg.OAuthConfig(redirectURI(c.Request)).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.Redirect(http.StatusFound, url)
}

// Callback handles GET /api/oauth/callback. It verifies state, exchanges the code and shows
// the refresh token for the operator to copy.
func (h *OAuthHandler) Callback(c *gin.Context) {
	if msg := c.Query("error"); msg != "" {
		response.BadRequest(c, "authorization denied: "+msg)
		return
	}
	code := c.Query("code")
	if code == "" {
		response.BadRequest(c, "no authorization code received")
		return
	}
	if h.cfg.ClientID == "" || h.cfg.ClientSecret == "" {
		response.ServiceUnavailable(c, "GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
		return
	}
	want, err := c.Cookie(stateCookie)
	got := c.Query("state")
	if err != nil || got == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		response.BadRequest(c, "invalid oauth state")
		return
	}
	c.SetCookie(stateCookie, "", -1, callbackPath, "", !isLocal(c.Request.Host), true)

	ctx := c.Request.Context()
	if h.cfg.HTTPClient != nil {
		ctx = contextWithClient(ctx, h.cfg.HTTPClient)
	}
	tok, err := h.cfg.OAuthConfig(redirectURI(c.Request)).Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", zap.Error(err))
		response.BadRequest(c, "token exchange failed")
		return
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = missingTokens
	}
	h.logger.Info("calendar oauth completed", zap.Bool("refresh_token_returned", tok.RefreshToken != ""))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := callbackPage.Execute(c.Writer, struct{ RefreshToken string }{refresh}); err != nil {
		h.logger.Error("render oauth page failed", zap.Error(err))
	}
}

// redirectURI mirrors the request host: plain http for localhost, https otherwise.
func redirectURI(r *http.Request) string {
	host := r.Host
	if host == "" {
		host = "localhost:3000"
	}
	scheme := "https"
	if isLocal(host) {
		scheme = "http"
	}
	return scheme + "://" + host + callbackPath
}

func isLocal(host string) bool {
	return strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1")
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
