package whisper

import (
	"crypto/rand"
	"fmt"
)

// Alphabet is the identifier alphabet: 32 symbols with visually confusable
// characters (0/O, 1/I/L) removed.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed identifier length.
const CodeLength = 6

// NewCode returns a CodeLength-character identifier drawn uniformly at random
// from Alphabet. With 32 symbols each byte of randomness maps onto the
// alphabet without modulo bias.
func NewCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}

// ValidCode reports whether s is a well-formed identifier.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for _, c := range s {
		found := false
		for _, a := range Alphabet {
			if c == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
