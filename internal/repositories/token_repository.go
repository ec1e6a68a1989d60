package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrTokenNotFound = errors.New("token not found")

// TokenRepository is the credential store behind the auth resolver.
type TokenRepository interface {
	CreateToken(ctx context.Context, token string, userID int) error
	GetTokenForUser(ctx context.Context, userID int) (string, error)
	GetUserByToken(ctx context.Context, token string) (models.User, error)
}

// TokenRepo is a sqlx-backed repository.
type TokenRepo struct {
	db *sqlx.DB
}

// NewTokenRepo constructs TokenRepo.
func NewTokenRepo(db *sqlx.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// CreateToken stores an issued token for a user.
func (r *TokenRepo) CreateToken(ctx context.Context, token string, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO auth_tokens (token, user_id) VALUES ($1, $2)`, token, userID)
	return err
}

// GetTokenForUser returns the user's existing token, if any.
func (r *TokenRepo) GetTokenForUser(ctx context.Context, userID int) (string, error) {
	var token string
	err := r.db.GetContext(ctx, &token, `SELECT token FROM auth_tokens WHERE user_id=$1 ORDER BY created_at DESC LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTokenNotFound
	}
	return token, err
}

// GetUserByToken resolves a bearer token to its owning account.
func (r *TokenRepo) GetUserByToken(ctx context.Context, token string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT u.id, u.username, u.password_hash, u.created_at
        FROM auth_tokens t JOIN users u ON u.id = t.user_id
        WHERE t.token=$1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrTokenNotFound
	}
	return user, err
}
