package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"careercoach/internal/models"
	"careercoach/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already registered")
)

// Service handles user accounts and their stored provider keys.
type Service struct {
	db     *storage.DB
	cipher *keyCipher
}

// NewService builds the account service. The provider key cipher is read from
// the environment.
func NewService(db *storage.DB) (*Service, error) {
	kc, err := newKeyCipherFromEnv()
	if err != nil {
		return nil, err
	}
	return &Service{db: db, cipher: kc}, nil
}

// RegisterUser creates a user with the supplied credentials.
func (s *Service) RegisterUser(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`), username,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	id, err := s.db.InsertID(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, string(hash), now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &models.User{ID: id, Username: username, PasswordHash: string(hash), CreatedAt: now}, nil
}

// Login validates credentials and returns the user profile.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`), username,
	)
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// DeleteUser removes a user; tokens, keys and interviews cascade.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid user id")
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasUserToken returns the provider key stored for the user, or "" when none is set.
func (s *Service) HasUserToken(ctx context.Context, userID int64, provider string) (string, error) {
	if userID <= 0 {
		return "", errors.New("invalid user id")
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", errors.New("provider is required")
	}
	var stored string
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT api_key FROM api_keys WHERE user_id = ? AND provider = ?`),
		userID, provider,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup api token: %w", err)
	}
	return s.reveal(stored), nil
}

// SetUserToken stores or replaces the provider key for a user.
func (s *Service) SetUserToken(ctx context.Context, userID int64, provider, token string) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return errors.New("provider is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`), userID).Scan(&exists); err != nil {
		return fmt.Errorf("verify user: %w", err)
	}
	if !exists {
		return errors.New("user not found")
	}

	sealed, err := s.cipher.seal(token)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}

	var query string
	switch s.db.Driver {
	case storage.DriverMySQL:
		query = `INSERT INTO api_keys (user_id, provider, api_key, created_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE api_key = VALUES(api_key), created_at = VALUES(created_at)`
	default:
		query = `INSERT INTO api_keys (user_id, provider, api_key, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, provider) DO UPDATE SET api_key = excluded.api_key, created_at = excluded.created_at`
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), userID, provider, sealed, time.Now().UTC()); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// ListUserTokens returns every stored provider key with the secret masked.
func (s *Service) ListUserTokens(ctx context.Context, userID int64) ([]models.APIToken, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT provider, api_key, created_at FROM api_keys WHERE user_id = ? ORDER BY provider`), userID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.APIToken
	for rows.Next() {
		var tok models.APIToken
		var stored string
		if err := rows.Scan(&tok.Provider, &stored, &tok.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tok.Masked = mask(s.reveal(stored))
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

// DeleteUserToken removes the key for a provider. sql.ErrNoRows reports a missing key.
func (s *Service) DeleteUserToken(ctx context.Context, userID int64, provider string) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return errors.New("provider is required")
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM api_keys WHERE user_id = ? AND provider = ?`), userID, provider)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// reveal decrypts a stored key; rows written before encryption come back as is.
func (s *Service) reveal(stored string) string {
	plain, err := s.cipher.open(stored)
	if err != nil {
		return stored
	}
	return plain
}
