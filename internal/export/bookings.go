// Package export renders booking reports.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"bikeservice/internal/models"

	"github.com/xuri/excelize/v2"
)

const bookingsSheet = "Bookings"

var bookingHeaders = []string{"Booking ID", "Date", "Status", "Customer", "Email", "Phone", "Services", "Total", "Notes", "Created At"}

// BookingsXLSX writes bookings to a single-sheet workbook.
func BookingsXLSX(bookings []*models.Booking) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bookingsSheet); err != nil {
		return nil, fmt.Errorf("error renaming sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating style: %w", err)
	}

	for i, header := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, header)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(bookingHeaders), 1)
	_ = f.SetCellStyle(bookingsSheet, "A1", lastHeader, headerStyle)

	for i, b := range bookings {
		row := i + 2
		names := make([]string, 0, len(b.Items))
		for _, item := range b.Items {
			names = append(names, item.ServiceName)
		}
		values := []interface{}{
			b.ID,
			b.BookingDate.Format(models.DateLayout),
			b.Status.Display(),
			b.Customer.Name,
			b.Customer.Email,
			b.Customer.Phone,
			strings.Join(names, ", "),
			b.TotalPrice.StringFixed(2),
			b.Notes,
			b.CreatedAt.Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(bookingsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 38)
	_ = f.SetColWidth(bookingsSheet, "B", "F", 18)
	_ = f.SetColWidth(bookingsSheet, "G", "G", 40)
	_ = f.SetColWidth(bookingsSheet, "H", "J", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}
	return buf, nil
}
