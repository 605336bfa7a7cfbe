package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/shopgrab/internal/model"
)

const magicLinkTTL = 15 * time.Minute

type MagicLinkStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMagicLinkStore(db *sql.DB) *MagicLinkStore {
	return &MagicLinkStore{db: db, now: time.Now}
}

func scanMagicLink(scanner interface{ Scan(...any) error }) (*model.MagicLink, error) {
	var ml model.MagicLink
	var usedAt sql.NullTime
	err := scanner.Scan(&ml.ID, &ml.Token, &ml.Email, &ml.ExpiresAt, &usedAt, &ml.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		ml.UsedAt = &usedAt.Time
	}
	return &ml, nil
}

const magicLinkCols = `id, token, email, expires_at, used_at, created_at`

// Create issues a single-use sign-in token for email with a 15-minute expiry.
// Pending tokens for the same address are invalidated first.
func (s *MagicLinkStore) Create(email string) (*model.MagicLink, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.now().UTC()

	_, err := s.db.Exec(
		`UPDATE magic_links SET used_at = ? WHERE email = ? AND used_at IS NULL`,
		now, email,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous links: %w", err)
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	result, err := s.db.Exec(
		`INSERT INTO magic_links (token, email, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		token, email, now.Add(magicLinkTTL), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert magic link: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+magicLinkCols+` FROM magic_links WHERE id = ?`, id)
	return scanMagicLink(row)
}

// Redeem marks the token used and returns it. Unknown, expired and already
// used tokens return nil.
func (s *MagicLinkStore) Redeem(token string) (*model.MagicLink, error) {
	now := s.now().UTC()
	row := s.db.QueryRow(
		`UPDATE magic_links SET used_at = ?
		 WHERE token = ? AND used_at IS NULL AND expires_at > ?
		 RETURNING `+magicLinkCols,
		now, token, now,
	)
	ml, err := scanMagicLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redeem magic link: %w", err)
	}
	return ml, nil
}

func (s *MagicLinkStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM magic_links WHERE expires_at <= ?`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired magic links: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
