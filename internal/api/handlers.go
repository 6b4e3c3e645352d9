package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bookingdesk/internal/export"
	"bookingdesk/internal/models"
	"bookingdesk/internal/store"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": s.deps.Catalog.ActiveServices()})
}

func (s *HTTPServer) handleAvailabilityRange(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeParams(w, r)
	if !ok {
		return
	}

	days, err := s.deps.Availability.GetAvailabilityRange(r.Context(), start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": days})
}

type dateResponse struct {
	Date         string                   `json:"date"`
	Exists       bool                     `json:"exists"`
	Availability *models.AvailabilityDate `json:"availability"`
}

func (s *HTTPServer) handleGetDate(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	day, err := s.deps.Availability.GetDateAvailability(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dateResponse{Date: date, Exists: day != nil, Availability: day})
}

func (s *HTTPServer) handleDaySlots(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	slots, err := s.deps.Availability.DaySchedule(r.Context(), date, s.deps.SlotTimes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}

type setDateRequest struct {
	IsAvailable *bool              `json:"isAvailable"`
	Slots       *[]models.TimeSlot `json:"slots"`
}

func (s *HTTPServer) handleSetDate(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]

	var body setDateRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.IsAvailable == nil && body.Slots == nil {
		writeError(w, http.StatusBadRequest, "isAvailable or slots is required")
		return
	}

	var slots []models.TimeSlot
	if body.Slots != nil {
		slots = *body.Slots
		if slots == nil {
			slots = []models.TimeSlot{}
		}
	}
	if err := s.deps.Availability.SetDateAvailability(r.Context(), date, body.IsAvailable, slots); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	day, err := s.deps.Availability.GetDateAvailability(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dateResponse{Date: date, Exists: day != nil, Availability: day})
}

type batchRequest struct {
	Dates       []string `json:"dates"`
	IsAvailable *bool    `json:"isAvailable"`
}

func (s *HTTPServer) handleBatchAvailability(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.Dates) == 0 {
		writeError(w, http.StatusBadRequest, "dates is required")
		return
	}
	if body.IsAvailable == nil {
		writeError(w, http.StatusBadRequest, "isAvailable is required")
		return
	}

	if err := s.deps.Availability.SetBatchAvailability(r.Context(), body.Dates, *body.IsAvailable); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(body.Dates)})
}

func (s *HTTPServer) handleAvailabilityStream(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeParams(w, r)
	if !ok {
		return
	}
	s.streamSnapshots(w, r, "availability", func(ctx context.Context, push func(any)) (store.Unsubscribe, error) {
		return s.deps.Availability.SubscribeToAvailability(ctx, start, end, func(days []models.AvailabilityDate) {
			push(map[string]any{"dates": days})
		})
	})
}

type createBookingRequest struct {
	ServiceID     string `json:"serviceId"`
	ServiceName   string `json:"serviceName"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	ClientName    string `json:"clientName"`
	ClientEmail   string `json:"clientEmail"`
	ClientPhone   string `json:"clientPhone"`
	ClientMessage string `json:"clientMessage"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	serviceName := body.ServiceName
	if svc, ok := s.deps.Catalog.GetService(strings.TrimSpace(body.ServiceID)); ok {
		if !svc.IsActive {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("service %s is not available", svc.ID))
			return
		}
		serviceName = svc.Name
	}

	booking := &models.Booking{
		ServiceID:     strings.TrimSpace(body.ServiceID),
		ServiceName:   strings.TrimSpace(serviceName),
		Date:          strings.TrimSpace(body.Date),
		Time:          strings.TrimSpace(body.Time),
		ClientName:    strings.TrimSpace(body.ClientName),
		ClientEmail:   strings.TrimSpace(body.ClientEmail),
		ClientPhone:   strings.TrimSpace(body.ClientPhone),
		ClientMessage: strings.TrimSpace(body.ClientMessage),
	}

	id, err := s.deps.Bookings.CreateBooking(r.Context(), booking)
	if err != nil && id != "" {
		// The record exists but its slot was not marked; return the ID so the
		// caller can find or cancel it.
		statusCode, message := errorStatus(err)
		s.logger.Error().Err(err).Str("booking_id", id).Msg("booking stored without its slot")
		writeJSON(w, statusCode, map[string]string{"error": message, "id": id})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "status": models.StatusPending})
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.filteredBookings(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.deps.Bookings.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body statusRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Bookings.UpdateBookingStatus(r.Context(), id, strings.TrimSpace(body.Status)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.deps.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingsStream(w http.ResponseWriter, r *http.Request) {
	s.streamSnapshots(w, r, "bookings", func(ctx context.Context, push func(any)) (store.Unsubscribe, error) {
		return s.deps.Bookings.SubscribeToBookings(ctx, func(bookings []models.Booking) {
			push(map[string]any{"bookings": bookings})
		})
	})
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.filteredBookings(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	now := time.Now()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(now)))
	if err := export.WriteBookings(w, bookings, export.Title(now)); err != nil {
		s.logger.Error().Err(err).Msg("failed to write bookings export")
	}
}

// filteredBookings applies the optional start, end and status query filters.
func (s *HTTPServer) filteredBookings(r *http.Request) ([]models.Booking, error) {
	bookings, err := s.deps.Bookings.GetAllBookings(r.Context())
	if err != nil {
		return nil, err
	}

	q := r.URL.Query()
	bookings = export.FilterByDate(bookings, strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end")))
	if status := strings.TrimSpace(q.Get("status")); status != "" {
		filtered := bookings[:0]
		for _, b := range bookings {
			if b.Status == status {
				filtered = append(filtered, b)
			}
		}
		bookings = filtered
	}
	return bookings, nil
}

func rangeParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	start := strings.TrimSpace(r.URL.Query().Get("start"))
	end := strings.TrimSpace(r.URL.Query().Get("end"))
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return "", "", false
	}
	return start, end, true
}
