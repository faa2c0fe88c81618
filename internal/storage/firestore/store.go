// Package firestore implements the record-store capabilities over Google
// Cloud Firestore: users keyed by student ID, routes keyed by route ID,
// reservations keyed by a generated ID and a singleton status document.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

const (
	usersCollection        = "users"
	routesCollection       = "bus_routes"
	reservationsCollection = "reservations"
	statusCollection       = "reservation_status"
	statusDocID            = "current"
)

type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

// --- internal records (firestore representation) ---

type userRecord struct {
	StudentID           string                `firestore:"student_id"`
	Name                string                `firestore:"name"`
	Email               string                `firestore:"email,omitempty"`
	Phone               string                `firestore:"phone,omitempty"`
	FCMToken            string                `firestore:"fcm_token,omitempty"`
	APNToken            string                `firestore:"apn_token,omitempty"`
	NotificationEnabled bool                  `firestore:"notification_enabled"`
	PushSubscription    *subscriptionRecord   `firestore:"push_subscription,omitempty"`
	CreatedAt           time.Time             `firestore:"created_at"`
}

type subscriptionRecord struct {
	Endpoint string `firestore:"endpoint"`
	P256dh   string `firestore:"p256dh"`
	Auth     string `firestore:"auth"`
}

type routeRecord struct {
	RouteID        string    `firestore:"route_id"`
	RouteName      string    `firestore:"route_name"`
	BusType        string    `firestore:"bus_type"`
	DepartureTime  string    `firestore:"departure_time"`
	TotalSeats     int       `firestore:"total_seats"`
	AvailableSeats int       `firestore:"available_seats"`
	IsOpen         bool      `firestore:"is_open"`
	CreatedAt      time.Time `firestore:"created_at"`
}

type reservationRecord struct {
	ID        string    `firestore:"id"`
	RouteID   string    `firestore:"route_id"`
	UserName  string    `firestore:"user_name"`
	UserEmail string    `firestore:"user_email,omitempty"`
	UserPhone string    `firestore:"user_phone,omitempty"`
	SeatCount int       `firestore:"seat_count"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"created_at"`
}

type statusRecord struct {
	IsOpen    bool      `firestore:"is_open"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// --- users ---

func (s *Store) userRef(studentID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(studentID)
}

func (s *Store) GetUser(ctx context.Context, studentID string) (*shuttle.User, error) {
	snap, err := s.userRef(studentID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("firestore get user: %w", err)
	}
	var rec userRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("firestore decode user: %w", err)
	}
	u := rec.toDomain()
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u shuttle.User) error {
	rec := userRecordFrom(u)
	_, err := s.userRef(u.StudentID).Create(ctx, rec)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return store.ErrDuplicate
		}
		return fmt.Errorf("firestore insert user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, studentID string, upd store.UserUpdate) error {
	var updates []firestore.Update
	if upd.Name != nil {
		updates = append(updates, firestore.Update{Path: "name", Value: *upd.Name})
	}
	if upd.Email != nil {
		updates = append(updates, firestore.Update{Path: "email", Value: *upd.Email})
	}
	if upd.Phone != nil {
		updates = append(updates, firestore.Update{Path: "phone", Value: *upd.Phone})
	}
	if upd.FCMToken != nil {
		updates = append(updates, firestore.Update{Path: "fcm_token", Value: *upd.FCMToken})
	}
	if upd.APNToken != nil {
		updates = append(updates, firestore.Update{Path: "apn_token", Value: *upd.APNToken})
	}
	if upd.NotificationEnabled != nil {
		updates = append(updates, firestore.Update{Path: "notification_enabled", Value: *upd.NotificationEnabled})
	}
	if len(updates) == 0 {
		return nil
	}
	_, err := s.userRef(studentID).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) SavePushSubscription(ctx context.Context, studentID string, sub shuttle.Subscription) error {
	_, err := s.userRef(studentID).Update(ctx, []firestore.Update{
		{Path: "push_subscription", Value: &subscriptionRecord{
			Endpoint: sub.Endpoint,
			P256dh:   sub.Keys.P256dh,
			Auth:     sub.Keys.Auth,
		}},
		{Path: "notification_enabled", Value: true},
	})
	if status.Code(err) == codes.NotFound {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) ClearPushSubscription(ctx context.Context, studentID string) error {
	_, err := s.userRef(studentID).Update(ctx, []firestore.Update{
		{Path: "push_subscription", Value: firestore.Delete},
		{Path: "notification_enabled", Value: false},
	})
	if status.Code(err) == codes.NotFound {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) SubscribedUsers(ctx context.Context) ([]shuttle.User, error) {
	iter := s.client.Collection(usersCollection).
		Where("notification_enabled", "==", true).
		Documents(ctx)
	defer iter.Stop()

	users := make([]shuttle.User, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var rec userRecord
		if err := doc.DataTo(&rec); err != nil {
			// Corrupt rows are skipped rather than failing the broadcast.
			continue
		}
		u := rec.toDomain()
		if u.PushSubscription != nil && u.PushSubscription.Complete() {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].StudentID < users[j].StudentID })
	return users, nil
}

// --- routes ---

func (s *Store) routeRef(routeID string) *firestore.DocumentRef {
	return s.client.Collection(routesCollection).Doc(routeID)
}

func (s *Store) GetRoute(ctx context.Context, routeID string) (*shuttle.Route, error) {
	snap, err := s.routeRef(routeID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("firestore get route: %w", err)
	}
	var rec routeRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("firestore decode route: %w", err)
	}
	r := rec.toDomain()
	return &r, nil
}

func (s *Store) ListRoutes(ctx context.Context) ([]shuttle.Route, error) {
	return s.collectRoutes(s.client.Collection(routesCollection).OrderBy("created_at", firestore.Asc).Documents(ctx))
}

func (s *Store) OpenRoutes(ctx context.Context) ([]shuttle.Route, error) {
	return s.collectRoutes(s.client.Collection(routesCollection).Where("is_open", "==", true).Documents(ctx))
}

func (s *Store) collectRoutes(iter *firestore.DocumentIterator) ([]shuttle.Route, error) {
	defer iter.Stop()
	routes := make([]shuttle.Route, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var rec routeRecord
		if err := doc.DataTo(&rec); err != nil {
			continue
		}
		routes = append(routes, rec.toDomain())
	}
	return routes, nil
}

func (s *Store) InsertRoute(ctx context.Context, r shuttle.Route) error {
	_, err := s.routeRef(r.RouteID).Create(ctx, routeRecordFrom(r))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return store.ErrDuplicate
		}
		return fmt.Errorf("firestore insert route: %w", err)
	}
	return nil
}

func (s *Store) UpdateRoute(ctx context.Context, routeID string, upd store.RouteUpdate) (*shuttle.Route, error) {
	var updates []firestore.Update
	if upd.RouteName != nil {
		updates = append(updates, firestore.Update{Path: "route_name", Value: *upd.RouteName})
	}
	if upd.BusType != nil {
		updates = append(updates, firestore.Update{Path: "bus_type", Value: *upd.BusType})
	}
	if upd.DepartureTime != nil {
		updates = append(updates, firestore.Update{Path: "departure_time", Value: *upd.DepartureTime})
	}
	if upd.TotalSeats != nil {
		updates = append(updates, firestore.Update{Path: "total_seats", Value: *upd.TotalSeats})
	}
	if upd.AvailableSeats != nil {
		updates = append(updates, firestore.Update{Path: "available_seats", Value: *upd.AvailableSeats})
	}
	if upd.IsOpen != nil {
		updates = append(updates, firestore.Update{Path: "is_open", Value: *upd.IsOpen})
	}
	if len(updates) == 0 {
		return s.GetRoute(ctx, routeID)
	}
	if _, err := s.routeRef(routeID).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("firestore update route: %w", err)
	}
	return s.GetRoute(ctx, routeID)
}

func (s *Store) DeleteRoute(ctx context.Context, routeID string) error {
	// Existence check first: Delete on a missing doc is a silent no-op and
	// the API reports 404 for unknown routes.
	if _, err := s.GetRoute(ctx, routeID); err != nil {
		return err
	}
	_, err := s.routeRef(routeID).Delete(ctx)
	return err
}

func (s *Store) SetOpen(ctx context.Context, routeID string, open bool) (*shuttle.Route, error) {
	return s.UpdateRoute(ctx, routeID, store.RouteUpdate{IsOpen: &open})
}

// ReserveSeats decrements available_seats inside a transaction so two
// concurrent bookings cannot oversell the same route.
func (s *Store) ReserveSeats(ctx context.Context, routeID string, seats int) (int, error) {
	remaining := 0
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.routeRef(routeID)
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return store.ErrNotFound
			}
			return err
		}
		var rec routeRecord
		if err := snap.DataTo(&rec); err != nil {
			return err
		}
		if !rec.IsOpen {
			return store.ErrRouteClosed
		}
		if rec.AvailableSeats < seats {
			return store.ErrInsufficientSeats
		}
		remaining = rec.AvailableSeats - seats
		return tx.Update(ref, []firestore.Update{
			{Path: "available_seats", Value: remaining},
		})
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// --- reservations ---

func (s *Store) InsertReservation(ctx context.Context, r shuttle.Reservation) error {
	_, err := s.client.Collection(reservationsCollection).Doc(r.ID).Create(ctx, reservationRecord{
		ID:        r.ID,
		RouteID:   r.RouteID,
		UserName:  r.UserName,
		UserEmail: r.UserEmail,
		UserPhone: r.UserPhone,
		SeatCount: r.SeatCount,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("firestore insert reservation: %w", err)
	}
	return nil
}

func (s *Store) ReservationsBy(ctx context.Context, field, value string) ([]shuttle.Reservation, error) {
	iter := s.client.Collection(reservationsCollection).Where(field, "==", value).Documents(ctx)
	defer iter.Stop()

	out := make([]shuttle.Reservation, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var rec reservationRecord
		if err := doc.DataTo(&rec); err != nil {
			continue
		}
		out = append(out, shuttle.Reservation{
			ID:        rec.ID,
			RouteID:   rec.RouteID,
			UserName:  rec.UserName,
			UserEmail: rec.UserEmail,
			UserPhone: rec.UserPhone,
			SeatCount: rec.SeatCount,
			Status:    rec.Status,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

// --- reservation status ---

func (s *Store) statusRef() *firestore.DocumentRef {
	return s.client.Collection(statusCollection).Doc(statusDocID)
}

func (s *Store) GetStatus(ctx context.Context) (*shuttle.ReservationStatus, error) {
	snap, err := s.statusRef().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// No record yet reads as closed.
			return &shuttle.ReservationStatus{IsOpen: false}, nil
		}
		return nil, fmt.Errorf("firestore get status: %w", err)
	}
	var rec statusRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("firestore decode status: %w", err)
	}
	return &shuttle.ReservationStatus{IsOpen: rec.IsOpen, UpdatedAt: rec.UpdatedAt}, nil
}

func (s *Store) SetStatus(ctx context.Context, open bool) (*shuttle.ReservationStatus, error) {
	now := time.Now()
	_, err := s.statusRef().Set(ctx, statusRecord{IsOpen: open, UpdatedAt: now})
	if err != nil {
		return nil, fmt.Errorf("firestore set status: %w", err)
	}
	return &shuttle.ReservationStatus{IsOpen: open, UpdatedAt: now}, nil
}

// --- mapping helpers ---

func userRecordFrom(u shuttle.User) userRecord {
	rec := userRecord{
		StudentID:           u.StudentID,
		Name:                u.Name,
		Email:               u.Email,
		Phone:               u.Phone,
		FCMToken:            u.FCMToken,
		APNToken:            u.APNToken,
		NotificationEnabled: u.NotificationEnabled,
		CreatedAt:           u.CreatedAt,
	}
	if u.PushSubscription != nil {
		rec.PushSubscription = &subscriptionRecord{
			Endpoint: u.PushSubscription.Endpoint,
			P256dh:   u.PushSubscription.Keys.P256dh,
			Auth:     u.PushSubscription.Keys.Auth,
		}
	}
	return rec
}

func (rec userRecord) toDomain() shuttle.User {
	u := shuttle.User{
		StudentID:           rec.StudentID,
		Name:                rec.Name,
		Email:               rec.Email,
		Phone:               rec.Phone,
		FCMToken:            rec.FCMToken,
		APNToken:            rec.APNToken,
		NotificationEnabled: rec.NotificationEnabled,
		CreatedAt:           rec.CreatedAt,
	}
	if rec.PushSubscription != nil {
		u.PushSubscription = &shuttle.Subscription{
			Endpoint: rec.PushSubscription.Endpoint,
			Keys: shuttle.SubscriptionKeys{
				P256dh: rec.PushSubscription.P256dh,
				Auth:   rec.PushSubscription.Auth,
			},
		}
	}
	return u
}

func routeRecordFrom(r shuttle.Route) routeRecord {
	return routeRecord{
		RouteID:        r.RouteID,
		RouteName:      r.RouteName,
		BusType:        r.BusType,
		DepartureTime:  r.DepartureTime,
		TotalSeats:     r.TotalSeats,
		AvailableSeats: r.AvailableSeats,
		IsOpen:         r.IsOpen,
		CreatedAt:      r.CreatedAt,
	}
}

func (rec routeRecord) toDomain() shuttle.Route {
	return shuttle.Route{
		RouteID:        rec.RouteID,
		RouteName:      rec.RouteName,
		BusType:        rec.BusType,
		DepartureTime:  rec.DepartureTime,
		TotalSeats:     rec.TotalSeats,
		AvailableSeats: rec.AvailableSeats,
		IsOpen:         rec.IsOpen,
		CreatedAt:      rec.CreatedAt,
	}
}
