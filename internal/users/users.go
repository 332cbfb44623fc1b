// Package users stores application accounts and checks their passwords.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	ErrDuplicate          = errors.New("users: email or username already taken")
	ErrInvalid            = errors.New("users: invalid user")
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is an account as exposed to handlers; the hash never leaves the store.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether u may manage settings and other accounts.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NewUser is the input for Create.
type NewUser struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

const minPasswordLength = 6

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UsernameFromEmail is the local part of email.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Authenticate accepts an email or username as identifier.
func (s *Store) Authenticate(ctx context.Context, identifier, password string) (User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	var (
		u    User
		role string
		hash string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, role, password_hash
		FROM users
		WHERE lower(email) = lower(?) OR username = ?
		ORDER BY id
		LIMIT 1
	`, identifier, identifier).Scan(&u.ID, &u.Email, &u.Username, &role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("query user credentials: %w", err)
	}
	if !CheckPassword(hash, password) {
		return User{}, ErrInvalidCredentials
	}
	u.Role = Role(role)
	return u, nil
}

func (s *Store) ByEmail(ctx context.Context, email string) (User, error) {
	var (
		u    User
		role string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, role FROM users WHERE lower(email) = lower(?)
	`, email).Scan(&u.ID, &u.Email, &u.Username, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	u.Role = Role(role)
	return u, nil
}

func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, username, role FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	out := make([]User, 0)
	for rows.Next() {
		var (
			u    User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = Role(role)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// Create validates n, hashes its password and stores the account.
func (s *Store) Create(ctx context.Context, n NewUser) (User, error) {
	n.Email = strings.TrimSpace(n.Email)
	n.Username = strings.TrimSpace(n.Username)
	if _, err := mail.ParseAddress(n.Email); err != nil {
		return User{}, fmt.Errorf("%w: email is not valid", ErrInvalid)
	}
	if len(n.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must have at least %d characters", ErrInvalid, minPasswordLength)
	}
	if n.Username == "" {
		n.Username = UsernameFromEmail(n.Email)
	}
	if n.Role == "" {
		n.Role = RoleUser
	}
	if n.Role != RoleAdmin && n.Role != RoleUser {
		return User{}, fmt.Errorf("%w: role must be admin or user", ErrInvalid)
	}

	var taken bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower(?) OR username = ?)
	`, n.Email, n.Username).Scan(&taken); err != nil {
		return User{}, fmt.Errorf("check user existence: %w", err)
	}
	if taken {
		return User{}, ErrDuplicate
	}

	hash, err := HashPassword(n.Password)
	if err != nil {
		return User{}, err
	}

	u := User{Email: n.Email, Username: n.Username, Role: n.Role}
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, username, password_hash, role)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, u.Email, u.Username, hash, string(u.Role)).Scan(&u.ID); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}
