// Package reservationservice assembles the shuttle reservation backend:
// REST API, route-open broadcast pipeline, and the status poller.
package reservationservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/schoolbus/go-reservation-service/internal/api"
	"github.com/schoolbus/go-reservation-service/internal/pipeline"
	"github.com/schoolbus/go-reservation-service/internal/poller"
	"github.com/schoolbus/go-reservation-service/internal/webpush"
	"github.com/schoolbus/go-reservation-service/pkg/dispatch"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
	"github.com/schoolbus/go-reservation-service/reservationservice/config"
)

// Stores bundles the persistence interfaces the service depends on.
type Stores struct {
	Users        store.UserStore
	Routes       store.RouteStore
	Reservations store.ReservationStore
	Status       store.StatusStore
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[shuttle.RouteOpenEvent]
	poller          *poller.Poller
	logger          *slog.Logger
}

// New assembles the service.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	publisher dispatch.RouteEventPublisher,
	webDispatcher dispatch.WebDispatcher,
	fcmDispatcher dispatch.Dispatcher,
	apnsDispatcher dispatch.Dispatcher,
	keys *webpush.KeyManager,
	stores Stores,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Processor
	processor := pipeline.NewProcessor(webDispatcher, fcmDispatcher, apnsDispatcher, stores.Users, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.RouteOpenEventTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. Poller
	statusPoller := poller.New(stores.Status, stores.Routes, publisher, cfg.PollInterval, logger)

	// 5. API handlers
	routeAPI := api.NewRouteAPI(stores.Routes, publisher, logger)
	userAPI := api.NewUserAPI(stores.Users, logger)
	bookingAPI := api.NewBookingAPI(stores.Routes, stores.Reservations, stores.Users, logger)
	pushAPI := api.NewPushAPI(stores.Users, webDispatcher, keys, logger)
	statusAPI := api.NewStatusAPI(stores.Status, statusPoller, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(handlerFunc))
	}

	// Routes
	handle("GET /api/v1/routes", routeAPI.List)
	handle("POST /api/v1/routes", routeAPI.Create)
	handle("GET /api/v1/routes/{routeID}", routeAPI.Get)
	handle("PUT /api/v1/routes/{routeID}", routeAPI.Update)
	handle("DELETE /api/v1/routes/{routeID}", routeAPI.Delete)
	handle("POST /api/v1/routes/{routeID}/toggle", routeAPI.Toggle)

	// Users
	handle("POST /api/v1/users/register", userAPI.Register)
	handle("GET /api/v1/users/{studentID}", userAPI.Get)
	handle("PUT /api/v1/users/{studentID}", userAPI.Update)

	// Bookings
	handle("POST /api/v1/bookings", bookingAPI.Create)
	handle("GET /api/v1/bookings/user/{studentID}", bookingAPI.ListForUser)

	// Push
	handle("POST /api/v1/push/subscribe", pushAPI.Subscribe)
	handle("POST /api/v1/push/unsubscribe", pushAPI.Unsubscribe)
	handle("POST /api/v1/push/test", pushAPI.Test)
	handle("GET /api/v1/push/vapid-public-key", pushAPI.VapidPublicKey)

	// Reservation status
	handle("GET /api/v1/reservation/status", statusAPI.Get)
	handle("POST /api/v1/reservation/update", statusAPI.Update)
	handle("GET /api/v1/reservation/poller", statusAPI.PollerStats)

	// Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers are written by the middleware.
	})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		poller:          statusPoller,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.poller.Start(ctx)
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	w.poller.Stop()
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
