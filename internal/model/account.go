package model

import "time"

// AccountID uniquely identifies an account. Assigned at creation, never reused.
type AccountID int64

// Account is the persisted player record
type Account struct {
	ID          AccountID
	TokenHash   string // bcrypt hash of the pass token handed out at creation
	Name        string
	Trophies    int
	CharacterID int // selected brawler, a catalog character id
	Banned      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a copy that can be mutated without affecting the original
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
