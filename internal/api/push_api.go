package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/schoolbus/go-reservation-service/internal/webpush"
	"github.com/schoolbus/go-reservation-service/pkg/dispatch"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

type PushAPI struct {
	Users  store.UserStore
	Web    dispatch.WebDispatcher
	Keys   *webpush.KeyManager
	Logger *slog.Logger
}

func NewPushAPI(users store.UserStore, web dispatch.WebDispatcher, keys *webpush.KeyManager, logger *slog.Logger) *PushAPI {
	return &PushAPI{Users: users, Web: web, Keys: keys, Logger: logger}
}

type SubscribeRequest struct {
	StudentID    string               `json:"student_id"`
	Subscription shuttle.Subscription `json:"subscription"`
}

type UnsubscribeRequest struct {
	StudentID string `json:"student_id"`
}

type TestNotificationRequest struct {
	StudentID string `json:"student_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

func (api *PushAPI) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Logger.Error("subscribe: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.StudentID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing student_id")
		return
	}
	if !req.Subscription.Complete() {
		api.Logger.Warn("subscribe: validation failed", "reason", "missing fields")
		response.WriteJSONError(w, http.StatusBadRequest, "incomplete subscription object")
		return
	}

	if err := api.Users.SavePushSubscription(r.Context(), req.StudentID, req.Subscription); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		api.Logger.Error("failed to save subscription", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("push subscription registered", "student_id", req.StudentID, "endpoint", req.Subscription.Endpoint)

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "push subscription registered",
		"student_id": req.StudentID,
	})
}

func (api *PushAPI) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.StudentID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing student_id")
		return
	}

	if err := api.Users.ClearPushSubscription(r.Context(), req.StudentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		api.Logger.Error("failed to clear subscription", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("push subscription removed", "student_id", req.StudentID)

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "push subscription removed",
		"student_id": req.StudentID,
	})
}

// Test sends one notification to a single student's subscription so a
// client can verify its registration end to end.
func (api *PushAPI) Test(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TestNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	user, err := api.Users.GetUser(ctx, req.StudentID)
	if err != nil || user.PushSubscription == nil {
		response.WriteJSONError(w, http.StatusNotFound, "push subscription not found")
		return
	}

	content := shuttle.NotificationContent{Title: req.Title, Body: req.Body}
	summary, err := api.Web.Dispatch(ctx, []shuttle.Subscription{*user.PushSubscription}, content, nil)
	if err != nil {
		if errors.Is(err, webpush.ErrSignerUnavailable) {
			response.WriteJSONError(w, http.StatusServiceUnavailable, "push delivery is disabled")
			return
		}
		api.Logger.Error("test notification failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "push delivery failed")
		return
	}
	if summary.Delivered == 0 {
		response.WriteJSONError(w, http.StatusInternalServerError, "push delivery failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "test notification sent",
		"student_id": req.StudentID,
	})
}

// VapidPublicKey hands the browser the key it needs to create a
// subscription bound to this sender.
func (api *PushAPI) VapidPublicKey(w http.ResponseWriter, r *http.Request) {
	key := api.Keys.PublicKey()
	if key == "" {
		response.WriteJSONError(w, http.StatusInternalServerError, "VAPID public key not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": key})
}
