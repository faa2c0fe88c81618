// Package shuttle contains the domain models shared between the HTTP API,
// the storage layer and the notification pipeline.
package shuttle

import "time"

// User is a registered student. StudentID is the natural key.
type User struct {
	StudentID           string        `json:"student_id"`
	Name                string        `json:"name"`
	Email               string        `json:"email,omitempty"`
	Phone               string        `json:"phone,omitempty"`
	FCMToken            string        `json:"fcm_token,omitempty"`
	APNToken            string        `json:"apn_token,omitempty"`
	NotificationEnabled bool          `json:"notification_enabled"`
	PushSubscription    *Subscription `json:"push_subscription,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Subscription is the browser push subscription exactly as the client's
// PushManager produced it. The key material stays base64url encoded until
// the encryptor needs it.
type Subscription struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Complete reports whether all three fields a push delivery needs are present.
// Incomplete subscriptions are never attempted.
func (s Subscription) Complete() bool {
	return s.Endpoint != "" && s.Keys.P256dh != "" && s.Keys.Auth != ""
}

// Route is a shuttle bus route. RouteID is the natural key.
type Route struct {
	RouteID        string    `json:"route_id"`
	RouteName      string    `json:"route_name"`
	BusType        string    `json:"bus_type"`
	DepartureTime  string    `json:"departure_time"` // "HH:MM"
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	IsOpen         bool      `json:"is_open"`
	CreatedAt      time.Time `json:"created_at"`
}

// Reservation is one confirmed booking on a route.
type Reservation struct {
	ID        string    `json:"id"`
	RouteID   string    `json:"route_id"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email,omitempty"`
	UserPhone string    `json:"user_phone,omitempty"`
	SeatCount int       `json:"seat_count"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ReservationStatus is the campus-wide booking window flag the poller watches.
type ReservationStatus struct {
	IsOpen    bool      `json:"is_open"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationContent is what the end user sees. It is ephemeral; the
// dispatchers wrap it in each platform's wire payload per send.
type NotificationContent struct {
	Title              string `json:"title"`
	Body               string `json:"body"`
	Icon               string `json:"icon,omitempty"`
	Badge              string `json:"badge,omitempty"`
	Vibrate            []int  `json:"vibrate,omitempty"`
	RequireInteraction bool   `json:"requireInteraction"`
}

// RouteOpenEvent is published when a route's booking window opens and
// consumed by the broadcast pipeline.
type RouteOpenEvent struct {
	RouteID        string    `json:"route_id"`
	RouteName      string    `json:"route_name"`
	DepartureTime  string    `json:"departure_time"`
	AvailableSeats int       `json:"available_seats"`
	OpenedAt       time.Time `json:"opened_at"`
}

// BroadcastSummary aggregates one fan-out. StaleIndices holds the positions
// of recipients the relay confirmed dead so the caller can clean them up;
// the fan-out itself never touches the store.
type BroadcastSummary struct {
	Delivered    int   `json:"delivered_count"`
	Failed       int   `json:"failed_count"`
	StaleIndices []int `json:"stale_indices"`
}
