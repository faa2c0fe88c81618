package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/schoolbus/go-reservation-service/pkg/dispatch"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

type RouteAPI struct {
	Routes store.RouteStore
	Events dispatch.RouteEventPublisher
	Logger *slog.Logger
}

func NewRouteAPI(routes store.RouteStore, events dispatch.RouteEventPublisher, logger *slog.Logger) *RouteAPI {
	return &RouteAPI{Routes: routes, Events: events, Logger: logger}
}

type CreateRouteRequest struct {
	RouteName     string `json:"route_name"`
	RouteID       string `json:"route_id"`
	BusType       string `json:"bus_type"`
	DepartureTime string `json:"departure_time"`
	TotalSeats    int    `json:"total_seats"`
}

type UpdateRouteRequest struct {
	RouteName      *string `json:"route_name"`
	BusType        *string `json:"bus_type"`
	DepartureTime  *string `json:"departure_time"`
	TotalSeats     *int    `json:"total_seats"`
	AvailableSeats *int    `json:"available_seats"`
	IsOpen         *bool   `json:"is_open"`
}

func (api *RouteAPI) List(w http.ResponseWriter, r *http.Request) {
	routes, err := api.Routes.ListRoutes(r.Context())
	if err != nil {
		api.Logger.Error("failed to list routes", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"routes": routes,
		"count":  len(routes),
	})
}

func (api *RouteAPI) Get(w http.ResponseWriter, r *http.Request) {
	route, err := api.Routes.GetRoute(r.Context(), r.PathValue("routeID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "route not found")
			return
		}
		api.Logger.Error("failed to get route", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (api *RouteAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.RouteID == "" || req.RouteName == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing route_id or route_name")
		return
	}
	if req.TotalSeats <= 0 {
		req.TotalSeats = 30
	}
	if req.BusType == "" {
		req.BusType = "inbound"
	}

	route := shuttle.Route{
		RouteID:        req.RouteID,
		RouteName:      req.RouteName,
		BusType:        req.BusType,
		DepartureTime:  req.DepartureTime,
		TotalSeats:     req.TotalSeats,
		AvailableSeats: req.TotalSeats,
		IsOpen:         false,
		CreatedAt:      time.Now(),
	}
	if err := api.Routes.InsertRoute(r.Context(), route); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			response.WriteJSONError(w, http.StatusBadRequest, "route already exists")
			return
		}
		api.Logger.Error("failed to create route", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "route created",
		"route":   route,
	})
}

func (api *RouteAPI) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	upd := store.RouteUpdate{
		RouteName:      req.RouteName,
		BusType:        req.BusType,
		DepartureTime:  req.DepartureTime,
		TotalSeats:     req.TotalSeats,
		AvailableSeats: req.AvailableSeats,
		IsOpen:         req.IsOpen,
	}
	if upd == (store.RouteUpdate{}) {
		response.WriteJSONError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	route, err := api.Routes.UpdateRoute(r.Context(), r.PathValue("routeID"), upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "route not found")
			return
		}
		api.Logger.Error("failed to update route", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "route updated",
		"route":   route,
	})
}

func (api *RouteAPI) Delete(w http.ResponseWriter, r *http.Request) {
	routeID := r.PathValue("routeID")
	if err := api.Routes.DeleteRoute(r.Context(), routeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "route not found")
			return
		}
		api.Logger.Error("failed to delete route", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "route deleted",
		"route_id": routeID,
	})
}

// Toggle flips the route's booking window. Flipping to open publishes a
// route-open event; publish failures are logged, not surfaced, because the
// toggle itself succeeded and push delivery is best effort.
func (api *RouteAPI) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	routeID := r.PathValue("routeID")

	current, err := api.Routes.GetRoute(ctx, routeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "route not found")
			return
		}
		api.Logger.Error("failed to get route", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	route, err := api.Routes.SetOpen(ctx, routeID, !current.IsOpen)
	if err != nil {
		api.Logger.Error("failed to toggle route", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	message := "route closed"
	if route.IsOpen {
		message = "route opened"
		if api.Events != nil {
			ev := shuttle.RouteOpenEvent{
				RouteID:        route.RouteID,
				RouteName:      route.RouteName,
				DepartureTime:  route.DepartureTime,
				AvailableSeats: route.AvailableSeats,
				OpenedAt:       time.Now(),
			}
			if err := api.Events.PublishRouteOpen(ctx, ev); err != nil {
				api.Logger.Error("failed to publish route-open event", "route_id", route.RouteID, "err", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"route":   route,
	})
}
