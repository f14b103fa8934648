package rsvp

import (
	"crypto/rand"
	"math/big"
)

// idAlphabet has 32 symbols and leaves out l, o, 0 and 1.
const idAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// IDLength is the length of public RSVP ids.
const IDLength = 10

// NewID returns a random public id. Uniqueness is not checked; 32^10 ids make collisions negligible.
func NewID() (string, error) {
	max := big.NewInt(int64(len(idAlphabet)))
	b := make([]byte, IDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b), nil
}

// ValidID reports whether id could have been produced by NewID.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !isIDChar(id[i]) {
			return false
		}
	}
	return true
}

func isIDChar(c byte) bool {
	for i := 0; i < len(idAlphabet); i++ {
		if idAlphabet[i] == c {
			return true
		}
	}
	return false
}
