package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/fleet-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SQLiteUserCollection keeps accounts in the local SQLite database so the app
// can sign users in without a remote backend.
type SQLiteUserCollection struct {
	DB *sql.DB
}

// NewSQLiteUserCollection creates the users table when missing.
func NewSQLiteUserCollection(ctx context.Context, db *sql.DB) (*SQLiteUserCollection, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_login INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("create users table: %w", err)
	}
	return &SQLiteUserCollection{DB: db}, nil
}

const userColumns = `id, username, email, password_hash, role, first_name, last_name, is_active, last_login, created_at, updated_at`

func (c *SQLiteUserCollection) InsertUser(ctx context.Context, user models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now()
	_, err := c.DB.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 1, NULL, ?, ?)`,
		user.ID.Hex(), user.Username, user.Email, user.PasswordHash, string(user.Role),
		user.FirstName, user.LastName, now.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (c *SQLiteUserCollection) findOne(ctx context.Context, where string, arg any) (*models.User, error) {
	var (
		user                 models.User
		id, role             string
		active               int
		lastLogin            sql.NullInt64
		createdAt, updatedAt int64
	)
	err := c.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = ?`, arg).Scan(
		&id, &user.Username, &user.Email, &user.PasswordHash, &role,
		&user.FirstName, &user.LastName, &active, &lastLogin, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if user.ID, err = primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("stored user id %q: %w", id, err)
	}
	user.Role = models.Role(role)
	user.IsActive = active != 0
	user.CreatedAt = time.Unix(0, createdAt)
	user.UpdatedAt = time.Unix(0, updatedAt)
	if lastLogin.Valid {
		t := time.Unix(0, lastLogin.Int64)
		user.LastLogin = &t
	}
	return &user, nil
}

func (c *SQLiteUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.findOne(ctx, "id", id)
}

func (c *SQLiteUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return c.findOne(ctx, "username", username)
}

func (c *SQLiteUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.findOne(ctx, "email", email)
}

func (c *SQLiteUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	active := 0
	if user.IsActive {
		active = 1
	}
	res, err := c.DB.ExecContext(ctx, `UPDATE users SET username = ?, email = ?, password_hash = ?, role = ?,
		first_name = ?, last_name = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		user.Username, user.Email, user.PasswordHash, string(user.Role),
		user.FirstName, user.LastName, active, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (c *SQLiteUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now().UnixNano()
	_, err := c.DB.ExecContext(ctx, `UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

func (c *SQLiteUserCollection) HasUsers(ctx context.Context) (bool, error) {
	var exists bool
	if err := c.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return exists, nil
}
