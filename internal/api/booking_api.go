package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

type BookingAPI struct {
	Routes       store.RouteStore
	Reservations store.ReservationStore
	Users        store.UserStore
	Logger       *slog.Logger
}

func NewBookingAPI(routes store.RouteStore, reservations store.ReservationStore, users store.UserStore, logger *slog.Logger) *BookingAPI {
	return &BookingAPI{Routes: routes, Reservations: reservations, Users: users, Logger: logger}
}

type BookingRequest struct {
	StudentID string `json:"student_id"`
	RouteID   string `json:"route_id"`
	SeatCount int    `json:"seat_count"`
}

// Create books seats on a route. Seats are reserved with an atomic
// conditional decrement before the reservation record is written, so two
// concurrent bookings cannot oversell a route.
func (api *BookingAPI) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.StudentID == "" || req.RouteID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing student_id or route_id")
		return
	}
	if req.SeatCount <= 0 {
		req.SeatCount = 1
	}

	// Contact details come from the user record when one exists; a booking
	// under an unregistered student ID still goes through under that ID.
	userName := req.StudentID
	userEmail, userPhone := "", ""
	if user, err := api.Users.GetUser(ctx, req.StudentID); err == nil {
		if user.Name != "" {
			userName = user.Name
		}
		userEmail = user.Email
		userPhone = user.Phone
	}

	remaining, err := api.Routes.ReserveSeats(ctx, req.RouteID, req.SeatCount)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.WriteJSONError(w, http.StatusNotFound, "route not found")
		case errors.Is(err, store.ErrRouteClosed):
			response.WriteJSONError(w, http.StatusBadRequest, "route is not open for booking")
		case errors.Is(err, store.ErrInsufficientSeats):
			response.WriteJSONError(w, http.StatusBadRequest, "not enough seats available")
		default:
			api.Logger.Error("failed to reserve seats", "err", err)
			response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		}
		return
	}

	reservation := shuttle.Reservation{
		ID:        uuid.NewString(),
		RouteID:   req.RouteID,
		UserName:  userName,
		UserEmail: userEmail,
		UserPhone: userPhone,
		SeatCount: req.SeatCount,
		Status:    "confirmed",
		CreatedAt: time.Now(),
	}
	if err := api.Reservations.InsertReservation(ctx, reservation); err != nil {
		// Seats were already decremented; hand them back before failing.
		if _, rbErr := api.Routes.ReserveSeats(ctx, req.RouteID, -req.SeatCount); rbErr != nil {
			api.Logger.Error("failed to release seats after reservation failure", "err", rbErr)
		}
		api.Logger.Error("failed to create reservation", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "reservation failed")
		return
	}

	api.Logger.Info("booking created",
		"student_id", req.StudentID, "route_id", req.RouteID, "seats", req.SeatCount, "remaining", remaining)

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     "booking confirmed",
		"reservation": reservation,
	})
}

// ListForUser returns a student's bookings, newest first, each paired with
// its route info. Reservations carry contact fields rather than a student
// ID, so name, email and phone are each queried and the results merged.
func (api *BookingAPI) ListForUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := api.Users.GetUser(ctx, r.PathValue("studentID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		api.Logger.Error("failed to get user", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	seen := make(map[string]shuttle.Reservation)
	lookups := []struct{ field, value string }{
		{"user_email", user.Email},
		{"user_phone", user.Phone},
		{"user_name", user.Name},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		found, err := api.Reservations.ReservationsBy(ctx, l.field, l.value)
		if err != nil {
			api.Logger.Error("failed to query reservations", "field", l.field, "err", err)
			response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
			return
		}
		for _, res := range found {
			seen[res.ID] = res
		}
	}

	type bookingEntry struct {
		Reservation shuttle.Reservation `json:"reservation"`
		Route       *shuttle.Route      `json:"route"`
	}
	entries := make([]bookingEntry, 0, len(seen))
	for _, res := range seen {
		route, err := api.Routes.GetRoute(ctx, res.RouteID)
		if err != nil {
			route = nil
		}
		entries = append(entries, bookingEntry{Reservation: res, Route: route})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Reservation.CreatedAt.After(entries[j].Reservation.CreatedAt)
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"bookings": entries,
		"count":    len(entries),
	})
}
