package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite" // SQLite driver
)

// ErrInvalidCredentials is returned when a username is unknown or the
// password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Store persists users and the per-request audit trail in SQLite.
//
// 审计表只记录“发生了什么量级的脱敏”（条数、耗时），绝不落盘原文或占位符映射：
// 映射的生命周期只在一次请求内（见 engine.Table），落盘会把可逆映射变成泄漏面。
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS audit (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id  TEXT NOT NULL,
	route       TEXT NOT NULL,
	entities    INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens (and if needed initializes) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// User is a stored account, without the password hash.
type User struct {
	ID        int64
	Username  string
	Role      string
	CreatedAt time.Time
}

// CreateUser stores a new account with a bcrypt-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, password, role string) (*User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	if role == "" {
		role = "user"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		username, string(hash), role)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Username: username, Role: role, CreatedAt: time.Now()}, nil
}

// Authenticate verifies a username/password pair. The error is always
// ErrInvalidCredentials for both unknown users and wrong passwords, so the
// service boundary can't be used to enumerate accounts.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var (
		u    User
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &hash, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// AuditRecord is one processed-request audit row. It carries counts only.
type AuditRecord struct {
	RequestID string
	Route     string
	Entities  int
	Duration  time.Duration
}

// AppendAudit stores one audit record.
func (s *Store) AppendAudit(ctx context.Context, rec AuditRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (request_id, route, entities, duration_ms) VALUES (?, ?, ?, ?)`,
		rec.RequestID, rec.Route, rec.Entities, rec.Duration.Milliseconds())
	return err
}

// CountAudit returns the number of audit rows.
func (s *Store) CountAudit(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit`).Scan(&n)
	return n, err
}
