package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository is the durable message store consumed by the delivery
// engine and the history endpoints.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID int, content string, photo *string) (models.Message, error)
	GetConversation(ctx context.Context, userID, peerID int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	AttachPhoto(ctx context.Context, messageID, senderID int, photo string) error
	MarkConversationRead(ctx context.Context, senderID, receiverID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a direct message and returns the persisted row,
// including the server-assigned timestamp and the read flag default.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID int, content string, photo *string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, content, photo) VALUES ($1, $2, $3, $4) RETURNING id, sender_id, receiver_id, content, photo, is_read, created_at`, senderID, receiverID, content, photo).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Photo, &msg.IsRead, &msg.CreatedAt)
	return msg, err
}

// GetConversation returns messages exchanged between two users in either
// direction, ordered by creation time.
func (r *MessageRepo) GetConversation(ctx context.Context, userID, peerID int) ([]models.Message, error) {
	query := `SELECT id, sender_id, receiver_id, content, photo, is_read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, userID, peerID)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, sender_id, receiver_id, content, photo, is_read, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// AttachPhoto sets the photo reference on a message owned by senderID.
func (r *MessageRepo) AttachPhoto(ctx context.Context, messageID, senderID int, photo string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET photo=$1 WHERE id=$2 AND sender_id=$3`, photo, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkConversationRead flags every message from senderID to receiverID as read.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, senderID, receiverID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE sender_id=$1 AND receiver_id=$2 AND is_read = FALSE`, senderID, receiverID)
	return err
}
