package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationService manages the email recipients of activation notices.
type NotificationService interface {
	Recipients(ctx context.Context) ([]string, error)
	Subscribe(ctx context.Context, email string) error
	Unsubscribe(ctx context.Context, email string) error
}

type notificationService struct {
	pool *pgxpool.Pool
}

func NewNotificationService(pool *pgxpool.Pool) NotificationService {
	return &notificationService{pool: pool}
}

func (s *notificationService) Recipients(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT email FROM notification_subscribers ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (s *notificationService) Subscribe(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: %q is not an email address", ErrInvalidInput, email)
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO notification_subscribers (email) VALUES ($1) ON CONFLICT (email) DO NOTHING", email)
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", email, err)
	}
	return nil
}

func (s *notificationService) Unsubscribe(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	tag, err := s.pool.Exec(ctx, "DELETE FROM notification_subscribers WHERE email = $1", email)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe %s: %w", email, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s is not subscribed", ErrNotFound, email)
	}
	return nil
}
