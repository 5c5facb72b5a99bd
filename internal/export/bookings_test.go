package export

import (
	"testing"
	"time"

	"bikeservice/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBookingsXLSX(t *testing.T) {
	bookings := []*models.Booking{
		{
			ID:          "b-1",
			Customer:    models.CustomerInfo{Name: "Ann", Email: "ann@example.com", Phone: "5551234567"},
			BookingDate: time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC),
			Status:      models.StatusReadyForDelivery,
			TotalPrice:  decimal.RequireFromString("75.5"),
			Items: []models.BookingLineItem{
				{ServiceName: "Tune-up", Price: decimal.RequireFromString("30")},
				{ServiceName: "Brake service", Price: decimal.RequireFromString("45.5")},
			},
			CreatedAt: time.Date(2030, 1, 10, 9, 30, 0, 0, time.UTC),
		},
	}

	buf, err := BookingsXLSX(bookings)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Booking ID", rows[0][0])
	require.Len(t, rows[1], 10)
	assert.Equal(t, []string{
		"b-1", "2030-01-15", "Ready for Delivery", "Ann", "ann@example.com", "5551234567",
		"Tune-up, Brake service", "75.50", "", "2030-01-10 09:30",
	}, rows[1])
}

func TestBookingsXLSX_Empty(t *testing.T) {
	buf, err := BookingsXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
