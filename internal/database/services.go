package database

import (
	"context"
	"fmt"
	"strings"

	"bikeservice/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const serviceColumns = `id, name, description, price, estimated_time, is_active, created_at, updated_at`

func (db *DB) CreateService(ctx context.Context, service *models.Service) error {
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	now := db.now()

	query := `INSERT INTO services (` + serviceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		service.ID,
		service.Name,
		service.Description,
		service.Price.String(),
		service.DurationMinutes,
		service.IsActive,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	service.CreatedAt = now
	service.UpdatedAt = now
	return nil
}

func (db *DB) UpdateService(ctx context.Context, service *models.Service) error {
	now := db.now()
	query := `UPDATE services SET name = ?, description = ?, price = ?, estimated_time = ?, is_active = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query,
		service.Name,
		service.Description,
		service.Price.String(),
		service.DurationMinutes,
		service.IsActive,
		now,
		service.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrServiceNotFound
	}
	service.UpdatedAt = now
	return nil
}

func (db *DB) DeactivateService(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `UPDATE services SET is_active = 0, updated_at = ? WHERE id = ?`, db.now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate service: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (db *DB) GetServiceByID(ctx context.Context, id string) (*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = ?`
	service, err := scanService(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", notFound(err, ErrServiceNotFound))
	}
	return service, nil
}

// ListServices returns services newest first. limit <= 0 means no limit.
func (db *DB) ListServices(ctx context.Context, activeOnly bool, offset, limit int) ([]*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services`
	var args []interface{}
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	return db.queryServices(ctx, query, args...)
}

func (db *DB) CountServices(ctx context.Context, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM services`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	var total int
	if err := db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count services: %w", err)
	}
	return total, nil
}

// FindActiveServicesByIDs resolves ids against active services. Unknown,
// inactive and repeated ids simply produce no extra rows.
func (db *DB) FindActiveServicesByIDs(ctx context.Context, ids []string) ([]*models.Service, error) {
	if len(ids) == 0 {
		return []*models.Service{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + serviceColumns + ` FROM services
              WHERE is_active = 1 AND id IN (` + strings.Join(placeholders, ",") + `)`
	return db.queryServices(ctx, query, args...)
}

func (db *DB) queryServices(ctx context.Context, query string, args ...interface{}) ([]*models.Service, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	services := []*models.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func scanService(row rowScanner) (*models.Service, error) {
	var s models.Service
	var price string
	err := row.Scan(&s.ID, &s.Name, &s.Description, &price, &s.DurationMinutes, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("failed to parse service price %q: %w", price, err)
	}
	return &s, nil
}
