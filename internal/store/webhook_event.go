package store

import (
	"database/sql"
	"fmt"
	"time"
)

// WebhookEventStore remembers processed payment events so replays are no-ops.
type WebhookEventStore struct {
	db *sql.DB
}

func NewWebhookEventStore(db *sql.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

func (s *WebhookEventStore) Seen(id string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM webhook_events WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return n > 0, nil
}

// Record marks the event processed. Recording the same id twice is not an error.
func (s *WebhookEventStore) Record(id, eventType string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO webhook_events (id, type, received_at) VALUES (?, ?, ?)`,
		id, eventType, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}
