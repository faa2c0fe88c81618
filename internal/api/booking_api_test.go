package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/schoolbus/go-reservation-service/internal/api"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

func setupBookingAPI(t *testing.T) (*api.BookingAPI, *MockRouteStore, *MockReservationStore, *MockUserStore) {
	t.Helper()
	routes := new(MockRouteStore)
	reservations := new(MockReservationStore)
	users := new(MockUserStore)
	return api.NewBookingAPI(routes, reservations, users, newTestLogger()), routes, reservations, users
}

func bookingRequest(t *testing.T, studentID, routeID string, seats int) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"student_id": studentID,
		"route_id":   routeID,
		"seat_count": seats,
	})
	require.NoError(t, err)
	return httptest.NewRequest("POST", "/api/v1/bookings", bytes.NewReader(body))
}

func TestCreateBooking(t *testing.T) {
	registered := &shuttle.User{
		StudentID: "20260101",
		Name:      "Kim",
		Email:     "kim@campus.ac.kr",
		Phone:     "010-1234-5678",
	}

	t.Run("Success fills contact details from the user record", func(t *testing.T) {
		handler, routes, reservations, users := setupBookingAPI(t)

		users.On("GetUser", mock.Anything, "20260101").Return(registered, nil)
		routes.On("ReserveSeats", mock.Anything, "R-01", 2).Return(38, nil)
		reservations.On("InsertReservation", mock.Anything, mock.MatchedBy(func(res shuttle.Reservation) bool {
			return res.RouteID == "R-01" && res.UserName == "Kim" &&
				res.UserEmail == "kim@campus.ac.kr" && res.SeatCount == 2 &&
				res.Status == "confirmed" && res.ID != ""
		})).Return(nil)

		w := httptest.NewRecorder()
		handler.Create(w, bookingRequest(t, "20260101", "R-01", 2))

		assert.Equal(t, http.StatusCreated, w.Code)
		reservations.AssertExpectations(t)
	})

	t.Run("Unregistered student books under their ID", func(t *testing.T) {
		handler, routes, reservations, users := setupBookingAPI(t)

		users.On("GetUser", mock.Anything, "ghost-1").Return(nil, store.ErrNotFound)
		routes.On("ReserveSeats", mock.Anything, "R-01", 1).Return(39, nil)
		reservations.On("InsertReservation", mock.Anything, mock.MatchedBy(func(res shuttle.Reservation) bool {
			return res.UserName == "ghost-1" && res.UserEmail == ""
		})).Return(nil)

		w := httptest.NewRecorder()
		handler.Create(w, bookingRequest(t, "ghost-1", "R-01", 1))

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("Zero seat count defaults to one", func(t *testing.T) {
		handler, routes, reservations, users := setupBookingAPI(t)

		users.On("GetUser", mock.Anything, "20260101").Return(registered, nil)
		routes.On("ReserveSeats", mock.Anything, "R-01", 1).Return(39, nil)
		reservations.On("InsertReservation", mock.Anything, mock.Anything).Return(nil)

		w := httptest.NewRecorder()
		handler.Create(w, bookingRequest(t, "20260101", "R-01", 0))

		assert.Equal(t, http.StatusCreated, w.Code)
		routes.AssertExpectations(t)
	})

	t.Run("Closed route", func(t *testing.T) {
		handler, routes, _, users := setupBookingAPI(t)

		users.On("GetUser", mock.Anything, "20260101").Return(registered, nil)
		routes.On("ReserveSeats", mock.Anything, "R-01", 1).Return(0, store.ErrRouteClosed)

		w := httptest.NewRecorder()
		handler.Create(w, bookingRequest(t, "20260101", "R-01", 1))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "not open")
	})

	t.Run("Not enough seats", func(t *testing.T) {
		handler, routes, _, users := setupBookingAPI(t)

		users.On("GetUser", mock.Anything, "20260101").Return(registered, nil)
		routes.On("ReserveSeats", mock.Anything, "R-01", 5).Return(0, store.ErrInsufficientSeats)

		w := httptest.NewRecorder()
		handler.Create(w, bookingRequest(t, "20260101", "R-01", 5))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "seats")
	})

	t.Run("Unknown route", func(t *testing.T) {
		handler, routes, _, users := setupBookingAPI(t)

		users.On("GetUser", mock.Anything, "20260101").Return(registered, nil)
		routes.On("ReserveSeats", mock.Anything, "missing", 1).Return(0, store.ErrNotFound)

		w := httptest.NewRecorder()
		handler.Create(w, bookingRequest(t, "20260101", "missing", 1))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Failed insert releases the reserved seats", func(t *testing.T) {
		handler, routes, reservations, users := setupBookingAPI(t)

		users.On("GetUser", mock.Anything, "20260101").Return(registered, nil)
		routes.On("ReserveSeats", mock.Anything, "R-01", 2).Return(38, nil).Once()
		reservations.On("InsertReservation", mock.Anything, mock.Anything).Return(assert.AnError)
		// Rollback: seats handed back with a negative count.
		routes.On("ReserveSeats", mock.Anything, "R-01", -2).Return(40, nil).Once()

		w := httptest.NewRecorder()
		handler.Create(w, bookingRequest(t, "20260101", "R-01", 2))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		routes.AssertExpectations(t)
	})
}

func TestListBookingsForUser(t *testing.T) {
	t.Run("Merges contact-field queries and sorts newest first", func(t *testing.T) {
		handler, routes, reservations, users := setupBookingAPI(t)

		users.On("GetUser", mock.Anything, "20260101").Return(&shuttle.User{
			StudentID: "20260101",
			Name:      "Kim",
			Email:     "kim@campus.ac.kr",
		}, nil)

		older := shuttle.Reservation{ID: "res-old", RouteID: "R-01", UserName: "Kim", CreatedAt: time.Now().Add(-time.Hour)}
		newer := shuttle.Reservation{ID: "res-new", RouteID: "R-02", UserName: "Kim", CreatedAt: time.Now()}

		// The same reservation surfaces under both email and name; it must
		// appear once in the response.
		reservations.On("ReservationsBy", mock.Anything, "user_email", "kim@campus.ac.kr").
			Return([]shuttle.Reservation{older, newer}, nil)
		reservations.On("ReservationsBy", mock.Anything, "user_name", "Kim").
			Return([]shuttle.Reservation{older}, nil)

		routes.On("GetRoute", mock.Anything, "R-01").Return(&shuttle.Route{RouteID: "R-01"}, nil)
		routes.On("GetRoute", mock.Anything, "R-02").Return(&shuttle.Route{RouteID: "R-02"}, nil)

		req := httptest.NewRequest("GET", "/api/v1/bookings/user/20260101", nil)
		req.SetPathValue("studentID", "20260101")
		w := httptest.NewRecorder()
		handler.ListForUser(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Count    int `json:"count"`
			Bookings []struct {
				Reservation shuttle.Reservation `json:"reservation"`
			} `json:"bookings"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, 2, resp.Count)
		assert.Equal(t, "res-new", resp.Bookings[0].Reservation.ID)
		assert.Equal(t, "res-old", resp.Bookings[1].Reservation.ID)
	})

	t.Run("Unknown student", func(t *testing.T) {
		handler, _, _, users := setupBookingAPI(t)
		users.On("GetUser", mock.Anything, "missing").Return(nil, store.ErrNotFound)

		req := httptest.NewRequest("GET", "/api/v1/bookings/user/missing", nil)
		req.SetPathValue("studentID", "missing")
		w := httptest.NewRecorder()
		handler.ListForUser(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
