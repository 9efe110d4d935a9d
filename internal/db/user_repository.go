package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carlosapgomes/caseflow/internal/models"
)

// ErrDuplicateEmail is returned by CreateUser when a user with the given
// email already exists.
var ErrDuplicateEmail = errors.New("duplicate user email")

// UserRepository implements the widget/admin API's user and bearer-token
// persistence: the users table and its auth_tokens/auth_events satellites.
type UserRepository struct {
	db *Client
}

// NewUserRepository builds a UserRepository over an open Client.
func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{db: client}
}

// UserCreateInput is the payload accepted by CreateUser.
type UserCreateInput struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
}

// CreateUser inserts a new user row.
func (r *UserRepository) CreateUser(ctx context.Context, in UserCreateInput) (*models.User, error) {
	const q = `
		INSERT INTO users (id, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING *`
	var u models.User
	err := r.db.GetContext(ctx, &u, q, in.ID, in.Email, in.PasswordHash, in.Role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_users_email" {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// CountUsers returns the total number of rows in the users table, used by
// the admin bootstrap to decide whether it is safe to seed one.
func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	const q = `SELECT count(*) FROM users`
	var n int
	if err := r.db.GetContext(ctx, &n, q); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// GetUserByEmail returns the user with the given email, or ErrNotFound.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT * FROM users WHERE email = $1`
	var u models.User
	if err := r.db.GetContext(ctx, &u, q, email); err != nil {
		return nil, wrapNotFound(err)
	}
	return &u, nil
}

// AuthTokenCreateInput is the payload accepted by CreateAuthToken.
type AuthTokenCreateInput struct {
	TokenHash string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// CreateAuthToken inserts a new bearer-token row.
func (r *UserRepository) CreateAuthToken(ctx context.Context, in AuthTokenCreateInput) error {
	const q = `INSERT INTO auth_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, q, in.TokenHash, in.UserID, in.ExpiresAt)
	return err
}

// AuthenticatedUser is the read model returned by a bearer-token lookup: the
// token's owning user, joined in one query.
type AuthenticatedUser struct {
	UserID     uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	Role      string    `db:"role"`
	Active    bool      `db:"active"`
	TokenHash string    `db:"token_hash"`
}

// GetUserByTokenHash resolves a bearer token's owning user, filtering out
// a revoked or expired token at the SQL level so callers never have to
// re-derive the expiry policy. Returns ErrNotFound if the hash is unknown,
// revoked, or expired.
func (r *UserRepository) GetUserByTokenHash(ctx context.Context, tokenHash string) (*AuthenticatedUser, error) {
	const q = `
		SELECT u.id, u.email, u.role, u.active, t.token_hash
		FROM auth_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1 AND t.revoked_at IS NULL AND t.expires_at > now()`
	var row AuthenticatedUser
	if err := r.db.GetContext(ctx, &row, q, tokenHash); err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

// TouchAuthToken records a token's most recent successful use.
func (r *UserRepository) TouchAuthToken(ctx context.Context, tokenHash string) error {
	const q = `UPDATE auth_tokens SET last_used_at = now() WHERE token_hash = $1`
	_, err := r.db.ExecContext(ctx, q, tokenHash)
	return err
}

// AppendAuthEvent records a login/auth audit event, kept on its own table
// (auth_events) rather than case_events since these events have no
// case_id.
func (r *UserRepository) AppendAuthEvent(ctx context.Context, userID uuid.UUID, eventType string, ipAddress *string) error {
	const q = `INSERT INTO auth_events (user_id, event_type, ip_address) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, q, userID, eventType, ipAddress)
	return err
}
