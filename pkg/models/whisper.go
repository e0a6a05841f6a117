package models

import "time"

// WhisperStatus is the lifecycle state of a stored whisper.
// The only legal transition is StatusWaiting → StatusRead; it is never reversed.
type WhisperStatus string

const (
	StatusWaiting WhisperStatus = "waiting"
	StatusRead    WhisperStatus = "read"
)

// WhisperTTL is the fixed lifetime of an unread whisper. Not configurable
// per message.
const WhisperTTL = 24 * time.Hour

// Whisper is one encrypted, single-read, TTL-bounded message record.
// Ciphertext, Salt, and IV are opaque hex strings produced by the envelope
// primitive and persisted verbatim.
type Whisper struct {
	ID         string
	Ciphertext string
	Salt       string
	IV         string
	Status     WhisperStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ReadAt     *time.Time
}

// Expired reports whether the whisper's TTL has elapsed at the given instant.
func (w *Whisper) Expired(now time.Time) bool {
	return now.After(w.ExpiresAt)
}
