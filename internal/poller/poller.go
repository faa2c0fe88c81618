// Package poller watches the campus-wide reservation status and announces
// the closed-to-open transition on the broadcast topic.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/schoolbus/go-reservation-service/pkg/dispatch"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

const DefaultInterval = 30 * time.Second

// Stats is a snapshot of the poller's state, served by the status API.
type Stats struct {
	Running    bool      `json:"is_running"`
	CheckCount int       `json:"check_count"`
	Interval   string    `json:"check_interval"`
	LastOpen   bool      `json:"last_open"`
	LastCheck  time.Time `json:"last_check,omitempty"`
}

type Poller struct {
	status    store.StatusStore
	routes    store.RouteStore
	publisher dispatch.RouteEventPublisher
	interval  time.Duration
	logger    *slog.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	checkCount int
	lastOpen   bool
	lastCheck  time.Time
}

func New(
	status store.StatusStore,
	routes store.RouteStore,
	publisher dispatch.RouteEventPublisher,
	interval time.Duration,
	logger *slog.Logger,
) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		status:    status,
		routes:    routes,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With("component", "ReservationPoller"),
	}
}

// Start launches the polling loop. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.logger.Warn("Poller already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	p.checkCount = 0
	p.lastOpen = false
	go p.loop(loopCtx)
	p.logger.Info("Poller started", "interval", p.interval.String())
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("Poller stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkOnce(ctx)
		}
	}
}

// checkOnce reads the status flag and, on a closed-to-open transition,
// publishes one route-open event. Errors keep the previous state so a
// flaky read cannot fire a spurious announcement.
func (p *Poller) checkOnce(ctx context.Context) {
	p.mu.Lock()
	p.checkCount++
	count := p.checkCount
	wasOpen := p.lastOpen
	p.lastCheck = time.Now()
	p.mu.Unlock()

	status, err := p.status.GetStatus(ctx)
	if err != nil {
		p.logger.Error("Status check failed", "check", count, "err", err)
		return
	}
	p.logger.Debug("Status checked", "check", count, "is_open", status.IsOpen)

	if status.IsOpen && !wasOpen {
		p.logger.Info("Booking window opened")
		p.announce(ctx)
	}

	p.mu.Lock()
	p.lastOpen = status.IsOpen
	p.mu.Unlock()
}

func (p *Poller) announce(ctx context.Context) {
	ev := shuttle.RouteOpenEvent{OpenedAt: time.Now()}

	// Enrich the event with the first open route, if any are listed yet.
	if routes, err := p.routes.OpenRoutes(ctx); err != nil {
		p.logger.Warn("Open-route lookup failed; announcing without route info", "err", err)
	} else if len(routes) > 0 {
		first := routes[0]
		ev.RouteID = first.RouteID
		ev.RouteName = first.RouteName
		ev.DepartureTime = first.DepartureTime
		ev.AvailableSeats = first.AvailableSeats
	}
	if ev.RouteID == "" {
		ev.RouteID = "ALL"
	}

	if err := p.publisher.PublishRouteOpen(ctx, ev); err != nil {
		p.logger.Error("Failed to publish route-open event", "err", err)
	}
}

func (p *Poller) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Running:    p.running,
		CheckCount: p.checkCount,
		Interval:   p.interval.String(),
		LastOpen:   p.lastOpen,
		LastCheck:  p.lastCheck,
	}
}
