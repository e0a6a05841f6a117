package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 iteration count for passphrase key derivation.
	Iterations = 310000

	keySize   = 32
	saltSize  = 32
	nonceSize = 12
)

// ErrDecryptionFailed is returned when the passphrase is wrong or the payload
// has been tampered with (GCM authentication tag mismatch). Callers must not
// receive partial plaintext on this path.
var ErrDecryptionFailed = errors.New("decryption failed")

// Envelope holds the output of Encrypt. All fields are hex strings and are
// persisted verbatim; salt and iv are freshly random per message.
type Envelope struct {
	Ciphertext string
	Salt       string
	IV         string
}

// deriveKey stretches a passphrase into a 256-bit AES key using PBKDF2-SHA256.
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, Iterations, keySize, sha256.New)
}

// Encrypt seals plaintext under a key derived from the passphrase using
// AES-256-GCM with a fresh 32-byte salt and 12-byte nonce.
func Encrypt(plaintext, passphrase string) (*Envelope, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	key := deriveKey(passphrase, salt)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return &Envelope{
		Ciphertext: hex.EncodeToString(ciphertext),
		Salt:       hex.EncodeToString(salt),
		IV:         hex.EncodeToString(nonce),
	}, nil
}

// Decrypt opens an envelope with the given passphrase. A wrong passphrase or
// corrupted payload yields ErrDecryptionFailed, never partial plaintext.
func Decrypt(env *Envelope, passphrase string) (string, error) {
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	salt, err := hex.DecodeString(env.Salt)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	nonce, err := hex.DecodeString(env.IV)
	if err != nil || len(nonce) != nonceSize {
		return "", ErrDecryptionFailed
	}

	key := deriveKey(passphrase, salt)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
