package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bikeservice/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const bookingColumns = `b.id, b.customer_id, u.name, u.email, u.phone, b.booking_date, b.status,
	b.total_price, b.notes, b.created_at, b.updated_at, b.version`

// CreateBookingWithItems inserts the booking and its line items in one
// transaction. Ids, timestamps and version are assigned here.
func (db *DB) CreateBookingWithItems(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := db.now()

	queryInsert := `INSERT INTO bookings (
				id, customer_id, booking_date, status, total_price, notes, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, queryInsert,
		booking.ID,
		booking.CustomerID,
		booking.BookingDate.Format(models.DateLayout),
		booking.Status,
		booking.TotalPrice.String(),
		booking.Notes,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	queryItem := `INSERT INTO booking_services (id, booking_id, service_id, price, position) VALUES (?, ?, ?, ?, ?)`
	for i := range booking.Items {
		item := &booking.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.BookingID = booking.ID
		item.Position = i
		if _, err := tx.ExecContext(ctx, queryItem, item.ID, booking.ID, item.ServiceID, item.Price.String(), i); err != nil {
			return fmt.Errorf("failed to insert booking item in tx: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
              FROM bookings b JOIN users u ON u.id = b.customer_id
              WHERE b.id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", notFound(err, ErrBookingNotFound))
	}

	if err := db.loadItems(ctx, []*models.Booking{booking}); err != nil {
		return nil, err
	}
	return booking, nil
}

// ListBookings returns one page of bookings matching filter together with
// the total number of matches. PageSize <= 0 returns every match.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	where, args := bookingWhere(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM bookings b` + where
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := `SELECT ` + bookingColumns + `
              FROM bookings b JOIN users u ON u.id = b.customer_id` + where + `
              ORDER BY b.created_at DESC, b.id ASC`
	if filter.PageSize > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.PageSize, filter.Offset())
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	rows.Close()

	if err := db.loadItems(ctx, bookings); err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func bookingWhere(filter models.BookingFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.CustomerID != "" {
		conds = append(conds, "b.customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.Status != "" {
		conds = append(conds, "b.status = ?")
		args = append(args, filter.Status)
	}
	if !filter.DateFrom.IsZero() {
		conds = append(conds, "b.booking_date >= ?")
		args = append(args, filter.DateFrom.Format(models.DateLayout))
	}
	if !filter.DateTo.IsZero() {
		conds = append(conds, "b.booking_date <= ?")
		args = append(args, filter.DateTo.Format(models.DateLayout))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status models.BookingStatus) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, db.now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", notFound(err, ErrBookingNotFound))
		}
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) DeleteBooking(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// loadItems fills Items for every booking in one query, ordered by position.
func (db *DB) loadItems(ctx context.Context, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	byID := make(map[string]*models.Booking, len(bookings))
	placeholders := make([]string, 0, len(bookings))
	args := make([]interface{}, 0, len(bookings))
	for _, b := range bookings {
		b.Items = []models.BookingLineItem{}
		byID[b.ID] = b
		placeholders = append(placeholders, "?")
		args = append(args, b.ID)
	}

	query := `SELECT bs.id, bs.booking_id, bs.service_id, s.name, bs.price, bs.position
              FROM booking_services bs JOIN services s ON s.id = bs.service_id
              WHERE bs.booking_id IN (` + strings.Join(placeholders, ",") + `)
              ORDER BY bs.booking_id, bs.position`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load booking items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.BookingLineItem
		var price string
		if err := rows.Scan(&item.ID, &item.BookingID, &item.ServiceID, &item.ServiceName, &price, &item.Position); err != nil {
			return fmt.Errorf("failed to scan booking item: %w", err)
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("failed to parse item price %q: %w", price, err)
		}
		b := byID[item.BookingID]
		b.Items = append(b.Items, item)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var dateStr, total string
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.Customer.Name, &b.Customer.Email, &b.Customer.Phone,
		&dateStr, &b.Status, &total, &b.Notes, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	if b.BookingDate, err = time.Parse(models.DateLayout, dateStr); err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	if b.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("failed to parse total price %q: %w", total, err)
	}
	return &b, nil
}
