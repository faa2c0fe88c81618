package poller_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbus/go-reservation-service/internal/poller"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStatusStore lets the test flip the booking window between ticks.
type fakeStatusStore struct {
	mu   sync.Mutex
	open bool
	err  error
}

func (f *fakeStatusStore) GetStatus(ctx context.Context) (*shuttle.ReservationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &shuttle.ReservationStatus{IsOpen: f.open}, nil
}
func (f *fakeStatusStore) SetStatus(ctx context.Context, open bool) (*shuttle.ReservationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = open
	return &shuttle.ReservationStatus{IsOpen: open}, nil
}
func (f *fakeStatusStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeRouteStore struct {
	routes []shuttle.Route
}

func (f *fakeRouteStore) OpenRoutes(ctx context.Context) ([]shuttle.Route, error) {
	return f.routes, nil
}
func (f *fakeRouteStore) GetRoute(context.Context, string) (*shuttle.Route, error) {
	return nil, store.ErrNotFound
}
func (f *fakeRouteStore) ListRoutes(context.Context) ([]shuttle.Route, error) { return nil, nil }
func (f *fakeRouteStore) InsertRoute(context.Context, shuttle.Route) error    { return nil }
func (f *fakeRouteStore) DeleteRoute(context.Context, string) error           { return nil }
func (f *fakeRouteStore) UpdateRoute(context.Context, string, store.RouteUpdate) (*shuttle.Route, error) {
	return nil, store.ErrNotFound
}
func (f *fakeRouteStore) SetOpen(context.Context, string, bool) (*shuttle.Route, error) {
	return nil, store.ErrNotFound
}
func (f *fakeRouteStore) ReserveSeats(context.Context, string, int) (int, error) {
	return 0, store.ErrNotFound
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shuttle.RouteOpenEvent
}

func (p *capturingPublisher) PublishRouteOpen(ctx context.Context, ev shuttle.RouteOpenEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}
func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
func (p *capturingPublisher) last() shuttle.RouteOpenEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func TestPoller_OpenTransition(t *testing.T) {
	statusStore := &fakeStatusStore{}
	routeStore := &fakeRouteStore{routes: []shuttle.Route{
		{RouteID: "R-01", RouteName: "Dorm Express", DepartureTime: "08:30", AvailableSeats: 40, IsOpen: true},
	}}
	publisher := &capturingPublisher{}

	p := poller.New(statusStore, routeStore, publisher, 10*time.Millisecond, newTestLogger())
	p.Start(context.Background())
	t.Cleanup(p.Stop)

	// Closed: a few ticks pass, nothing is announced.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, publisher.count())

	// Flip to open: exactly one announcement, enriched with route details.
	_, err := statusStore.SetStatus(context.Background(), true)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return publisher.count() == 1 },
		time.Second, 5*time.Millisecond)

	ev := publisher.last()
	assert.Equal(t, "R-01", ev.RouteID)
	assert.Equal(t, "Dorm Express", ev.RouteName)
	assert.Equal(t, 40, ev.AvailableSeats)

	// Window stays open: no re-announcement on later ticks.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, publisher.count())

	// Close then reopen: a second announcement.
	_, err = statusStore.SetStatus(context.Background(), false)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = statusStore.SetStatus(context.Background(), true)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return publisher.count() == 2 },
		time.Second, 5*time.Millisecond)
}

func TestPoller_FlakyReadKeepsState(t *testing.T) {
	statusStore := &fakeStatusStore{}
	publisher := &capturingPublisher{}
	p := poller.New(statusStore, &fakeRouteStore{}, publisher, 10*time.Millisecond, newTestLogger())
	p.Start(context.Background())
	t.Cleanup(p.Stop)

	// Failing reads never announce, whatever the underlying state is.
	statusStore.setErr(assert.AnError)
	_, err := statusStore.SetStatus(context.Background(), true)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, publisher.count())

	// Once the store recovers the transition is announced.
	statusStore.setErr(nil)
	require.Eventually(t, func() bool { return publisher.count() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestPoller_AnnouncesWithoutOpenRoutes(t *testing.T) {
	statusStore := &fakeStatusStore{open: true}
	publisher := &capturingPublisher{}
	p := poller.New(statusStore, &fakeRouteStore{}, publisher, 10*time.Millisecond, newTestLogger())
	p.Start(context.Background())
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool { return publisher.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "ALL", publisher.last().RouteID)
}

func TestPoller_Lifecycle(t *testing.T) {
	statusStore := &fakeStatusStore{}
	p := poller.New(statusStore, &fakeRouteStore{}, &capturingPublisher{}, 10*time.Millisecond, newTestLogger())

	p.Start(context.Background())
	p.Start(context.Background()) // second start is a no-op

	require.Eventually(t, func() bool { return p.GetStats().CheckCount > 0 },
		time.Second, 5*time.Millisecond)

	stats := p.GetStats()
	assert.True(t, stats.Running)
	assert.Equal(t, "10ms", stats.Interval)

	p.Stop()
	p.Stop() // second stop is a no-op
	assert.False(t, p.GetStats().Running)
}
