package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bikeservice/internal/domain"
	"bikeservice/internal/export"
	"bikeservice/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	var req createBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	date, err := parseDate("booking_date", req.BookingDate)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if date.IsZero() {
		writeError(w, http.StatusBadRequest, "booking_date is required")
		return
	}

	booking, err := s.services.Bookings.CreateBooking(r.Context(), actor, domain.CreateBookingInput{
		ServiceIDs:  req.ServiceIDs,
		BookingDate: date,
		Notes:       req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(booking))
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	booking, err := s.services.Bookings.GetBooking(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(booking))
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	filter, err := bookingFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	page, err := s.services.Bookings.ListBookings(r.Context(), actor, filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingList(page))
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	filter, err := bookingFilterFromQuery(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	bookings, err := s.services.Bookings.ExportBookings(r.Context(), actor, filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	buf, err := export.BookingsXLSX(bookings)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	filename := fmt.Sprintf("bookings_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.services.Bookings.UpdateStatus(r.Context(), actor, r.PathValue("id"), req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(booking))
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	if err := s.services.Bookings.CancelBooking(r.Context(), actor, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bookingFilterFromQuery(q url.Values) (models.BookingFilter, error) {
	var filter models.BookingFilter
	var err error

	filter.Status = models.BookingStatus(strings.TrimSpace(q.Get("status")))
	if filter.DateFrom, err = parseDate("date_from", q.Get("date_from")); err != nil {
		return filter, err
	}
	if filter.DateTo, err = parseDate("date_to", q.Get("date_to")); err != nil {
		return filter, err
	}
	if filter.Page, err = intParam(q, "page", 0); err != nil {
		return filter, err
	}
	if filter.PageSize, err = intParam(q, "page_size", 0); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseDate returns the zero time for an empty value.
func parseDate(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, domain.Validationf("invalid %s; expected YYYY-MM-DD", name)
	}
	return d, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validationf("%s must be an integer", name)
	}
	return v, nil
}
