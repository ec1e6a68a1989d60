package models

import "time"

// User is a registered account.
type User struct {
	ID           int       `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Identity is the resolved principal for a session. It is immutable once
// resolved; the zero value is the anonymous identity.
type Identity struct {
	ID            int
	Username      string
	Authenticated bool
}

// Anonymous is the identity of an unresolved or invalid token.
var Anonymous = Identity{}
