package models

import "time"

// CreditKind selects which of a card's counters an operation consumes.
type CreditKind string

const (
	CreditSend CreditKind = "send"
	CreditRead CreditKind = "read"
)

// Card is a prepaid access grant with independent send and read counters.
// Cards are provisioned out-of-band; this service only reads and decrements them.
type Card struct {
	ID          string
	SendCredits int
	ReadCredits int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CardState is the caller-visible view of a card. Invalid cards (absent,
// inactive, or not allow-listed) are indistinguishable from one another.
type CardState struct {
	SendCredits int  `json:"send_credits"`
	ReadCredits int  `json:"read_credits"`
	Valid       bool `json:"valid"`
}

// StateOf projects a card onto its caller-visible state.
func StateOf(c *Card) *CardState {
	return &CardState{
		SendCredits: c.SendCredits,
		ReadCredits: c.ReadCredits,
		Valid:       c.Active,
	}
}
