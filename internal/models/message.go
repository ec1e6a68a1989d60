package models

import "time"

// Message is a persisted direct message between two users. Content may be
// empty for photo-only messages; a message with neither content nor photo is
// rejected before it reaches the store.
type Message struct {
	ID         int       `db:"id" json:"id"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	ReceiverID int       `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	Photo      *string   `db:"photo" json:"photo,omitempty"`
	IsRead     bool      `db:"is_read" json:"is_read"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
