package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bikeservice/internal/models"
)

const notificationColumns = `id, kind, recipient, payload, status, attempts, last_error, next_attempt_at, created_at, sent_at`

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) (int64, error) {
	now := db.now()
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	if n.NextAttemptAt.IsZero() {
		n.NextAttemptAt = now
	}

	query := `INSERT INTO notifications (kind, recipient, payload, status, attempts, last_error, next_attempt_at, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		n.Kind,
		n.Recipient,
		n.Payload,
		n.Status,
		n.Attempts,
		n.LastError,
		n.NextAttemptAt.UTC(),
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return id, nil
}

func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`
	n, err := scanNotification(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", notFound(err, ErrNotificationNotFound))
	}
	return n, nil
}

// ClaimNotification moves a deliverable row to sending and stamps the claim.
// A row left in sending since before staleBefore counts as abandoned and can
// be claimed again. It returns false when another consumer holds the row or
// it is finished.
func (db *DB) ClaimNotification(ctx context.Context, id int64, staleBefore time.Time) (bool, error) {
	query := `UPDATE notifications SET status = ?, claimed_at = ?
              WHERE id = ? AND (status IN (?, ?) OR (status = ? AND (claimed_at IS NULL OR claimed_at <= ?)))`
	result, err := db.ExecContext(ctx, query,
		models.NotificationSending,
		db.now(),
		id,
		models.NotificationPending,
		models.NotificationRetry,
		models.NotificationSending,
		staleBefore.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// GetDueNotifications returns rows ready for delivery, including rows whose
// sending claim is older than staleBefore.
func (db *DB) GetDueNotifications(ctx context.Context, limit int, staleBefore time.Time) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
              WHERE (status IN (?, ?) AND next_attempt_at <= ?)
                 OR (status = ? AND (claimed_at IS NULL OR claimed_at <= ?))
              ORDER BY next_attempt_at ASC, id ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query,
		models.NotificationPending,
		models.NotificationRetry,
		db.now(),
		models.NotificationSending,
		staleBefore.UTC(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get due notifications: %w", err)
	}
	defer rows.Close()

	var list []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (db *DB) UpdateNotificationStatus(ctx context.Context, id int64, status, lastError string, nextAttemptAt *time.Time) error {
	var query string
	var args []interface{}
	now := db.now()

	switch status {
	case models.NotificationRetry:
		next := now
		if nextAttemptAt != nil {
			next = nextAttemptAt.UTC()
		}
		query = `UPDATE notifications SET status = ?, last_error = ?, next_attempt_at = ?, attempts = attempts + 1 WHERE id = ?`
		args = []interface{}{status, lastError, next, id}
	case models.NotificationSent, models.NotificationFailed:
		query = `UPDATE notifications SET status = ?, last_error = ?, attempts = attempts + 1, sent_at = ? WHERE id = ?`
		args = []interface{}{status, lastError, &now, id}
	default:
		query = `UPDATE notifications SET status = ?, last_error = ? WHERE id = ?`
		args = []interface{}{status, lastError, id}
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var sentAt sql.NullTime
	err := row.Scan(&n.ID, &n.Kind, &n.Recipient, &n.Payload, &n.Status, &n.Attempts, &n.LastError, &n.NextAttemptAt, &n.CreatedAt, &sentAt)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	return &n, nil
}
