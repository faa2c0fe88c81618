// Package store defines the keyed record-store capabilities the service
// needs: get-by-key, insert, update-by-key and filter-by-equality. The
// concrete backend lives behind these interfaces so nothing above the
// storage layer depends on a particular storage product.
package store

import (
	"context"
	"errors"

	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
)

var (
	// ErrNotFound is returned for any get-by-key miss.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("store: record already exists")
	// ErrRouteClosed is returned by ReserveSeats when the route is not open.
	ErrRouteClosed = errors.New("store: route is not open for booking")
	// ErrInsufficientSeats is returned by ReserveSeats when fewer seats
	// remain than were requested.
	ErrInsufficientSeats = errors.New("store: not enough seats available")
)

// UserUpdate carries the optional fields of a partial user update. Nil
// means "leave unchanged".
type UserUpdate struct {
	Name                *string
	Email               *string
	Phone               *string
	FCMToken            *string
	APNToken            *string
	NotificationEnabled *bool
}

// RouteUpdate carries the optional fields of a partial route update.
type RouteUpdate struct {
	RouteName      *string
	BusType        *string
	DepartureTime  *string
	TotalSeats     *int
	AvailableSeats *int
	IsOpen         *bool
}

type UserStore interface {
	GetUser(ctx context.Context, studentID string) (*shuttle.User, error)
	InsertUser(ctx context.Context, u shuttle.User) error
	UpdateUser(ctx context.Context, studentID string, upd UserUpdate) error

	// SavePushSubscription stores the subscription and enables notifications.
	SavePushSubscription(ctx context.Context, studentID string, sub shuttle.Subscription) error
	// ClearPushSubscription removes the subscription and disables
	// notifications. Used both by the unsubscribe endpoint and by the
	// pipeline's stale-subscription cleanup.
	ClearPushSubscription(ctx context.Context, studentID string) error

	// SubscribedUsers returns every user with notifications enabled and a
	// complete push subscription, in a stable order.
	SubscribedUsers(ctx context.Context) ([]shuttle.User, error)
}

type RouteStore interface {
	GetRoute(ctx context.Context, routeID string) (*shuttle.Route, error)
	ListRoutes(ctx context.Context) ([]shuttle.Route, error)
	InsertRoute(ctx context.Context, r shuttle.Route) error
	UpdateRoute(ctx context.Context, routeID string, upd RouteUpdate) (*shuttle.Route, error)
	DeleteRoute(ctx context.Context, routeID string) error

	// SetOpen flips the booking window and returns the updated route.
	SetOpen(ctx context.Context, routeID string, open bool) (*shuttle.Route, error)
	// OpenRoutes returns all routes whose booking window is open.
	OpenRoutes(ctx context.Context) ([]shuttle.Route, error)

	// ReserveSeats atomically decrements available_seats by seats, failing
	// with ErrRouteClosed or ErrInsufficientSeats instead of overselling.
	// It returns the seats remaining after the decrement.
	ReserveSeats(ctx context.Context, routeID string, seats int) (int, error)
}

type ReservationStore interface {
	InsertReservation(ctx context.Context, r shuttle.Reservation) error
	// ReservationsBy filters reservations on a single field equality,
	// e.g. ("user_email", "kim@campus.ac.kr").
	ReservationsBy(ctx context.Context, field, value string) ([]shuttle.Reservation, error)
}

type StatusStore interface {
	// GetStatus returns the campus-wide booking window flag. A missing
	// record reads as closed, not as an error.
	GetStatus(ctx context.Context) (*shuttle.ReservationStatus, error)
	SetStatus(ctx context.Context, open bool) (*shuttle.ReservationStatus, error)
}
