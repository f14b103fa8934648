package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/psg2/level-30-birthday/pkg/utils"
)

// Gate decides admin access. A credential is accepted when it equals the plain admin key,
// matches the bcrypt key hash, or is a valid session token. With neither key nor hash
// configured nothing is accepted.
type Gate struct {
	key      string
	keyHash  string
	sessions *SessionService
}

// NewGate creates an admin gate. sessions may be nil.
func NewGate(key, keyHash string, sessions *SessionService) *Gate {
	return &Gate{key: key, keyHash: keyHash, sessions: sessions}
}

// Enabled reports whether any admin secret is configured.
func (g *Gate) Enabled() bool { return g.key != "" || g.keyHash != "" }

// CheckKey verifies a raw admin key, without accepting session tokens.
func (g *Gate) CheckKey(key string) bool {
	if key == "" || !g.Enabled() {
		return false
	}
	if g.key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(g.key)) == 1 {
		return true
	}
	return g.keyHash != "" && utils.CheckSecret(key, g.keyHash)
}

// Authorize accepts a raw key or a "Bearer"-less session token.
func (g *Gate) Authorize(credential string) bool {
	credential = strings.TrimSpace(credential)
	if credential == "" || !g.Enabled() {
		return false
	}
	if g.CheckKey(credential) {
		return true
	}
	if g.sessions != nil && g.sessions.Enabled() {
		if _, err := g.sessions.Validate(credential); err == nil {
			return true
		}
	}
	return false
}
