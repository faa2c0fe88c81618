package api_test

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockRouteStore struct {
	mock.Mock
}

func (m *MockRouteStore) GetRoute(ctx context.Context, routeID string) (*shuttle.Route, error) {
	args := m.Called(ctx, routeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shuttle.Route), args.Error(1)
}
func (m *MockRouteStore) ListRoutes(ctx context.Context) ([]shuttle.Route, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shuttle.Route), args.Error(1)
}
func (m *MockRouteStore) OpenRoutes(ctx context.Context) ([]shuttle.Route, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shuttle.Route), args.Error(1)
}
func (m *MockRouteStore) InsertRoute(ctx context.Context, r shuttle.Route) error {
	return m.Called(ctx, r).Error(0)
}
func (m *MockRouteStore) UpdateRoute(ctx context.Context, routeID string, upd store.RouteUpdate) (*shuttle.Route, error) {
	args := m.Called(ctx, routeID, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shuttle.Route), args.Error(1)
}
func (m *MockRouteStore) DeleteRoute(ctx context.Context, routeID string) error {
	return m.Called(ctx, routeID).Error(0)
}
func (m *MockRouteStore) SetOpen(ctx context.Context, routeID string, open bool) (*shuttle.Route, error) {
	args := m.Called(ctx, routeID, open)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shuttle.Route), args.Error(1)
}
func (m *MockRouteStore) ReserveSeats(ctx context.Context, routeID string, seats int) (int, error) {
	args := m.Called(ctx, routeID, seats)
	return args.Int(0), args.Error(1)
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetUser(ctx context.Context, studentID string) (*shuttle.User, error) {
	args := m.Called(ctx, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shuttle.User), args.Error(1)
}
func (m *MockUserStore) InsertUser(ctx context.Context, u shuttle.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *MockUserStore) UpdateUser(ctx context.Context, studentID string, upd store.UserUpdate) error {
	return m.Called(ctx, studentID, upd).Error(0)
}
func (m *MockUserStore) SavePushSubscription(ctx context.Context, studentID string, sub shuttle.Subscription) error {
	return m.Called(ctx, studentID, sub).Error(0)
}
func (m *MockUserStore) ClearPushSubscription(ctx context.Context, studentID string) error {
	return m.Called(ctx, studentID).Error(0)
}
func (m *MockUserStore) SubscribedUsers(ctx context.Context) ([]shuttle.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shuttle.User), args.Error(1)
}

type MockReservationStore struct {
	mock.Mock
}

func (m *MockReservationStore) InsertReservation(ctx context.Context, r shuttle.Reservation) error {
	return m.Called(ctx, r).Error(0)
}
func (m *MockReservationStore) ReservationsBy(ctx context.Context, field, value string) ([]shuttle.Reservation, error) {
	args := m.Called(ctx, field, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shuttle.Reservation), args.Error(1)
}

type MockStatusStore struct {
	mock.Mock
}

func (m *MockStatusStore) GetStatus(ctx context.Context) (*shuttle.ReservationStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shuttle.ReservationStatus), args.Error(1)
}
func (m *MockStatusStore) SetStatus(ctx context.Context, open bool) (*shuttle.ReservationStatus, error) {
	args := m.Called(ctx, open)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shuttle.ReservationStatus), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishRouteOpen(ctx context.Context, ev shuttle.RouteOpenEvent) error {
	return m.Called(ctx, ev).Error(0)
}

type MockWebDispatcher struct {
	mock.Mock
}

func (m *MockWebDispatcher) Dispatch(ctx context.Context, subs []shuttle.Subscription, content shuttle.NotificationContent, data map[string]string) (shuttle.BroadcastSummary, error) {
	args := m.Called(ctx, subs, content, data)
	return args.Get(0).(shuttle.BroadcastSummary), args.Error(1)
}
