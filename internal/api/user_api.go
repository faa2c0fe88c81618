package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

type UserAPI struct {
	Users  store.UserStore
	Logger *slog.Logger
}

func NewUserAPI(users store.UserStore, logger *slog.Logger) *UserAPI {
	return &UserAPI{Users: users, Logger: logger}
}

type RegisterUserRequest struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type UpdateUserRequest struct {
	Name                *string `json:"name"`
	Email               *string `json:"email"`
	Phone               *string `json:"phone"`
	FCMToken            *string `json:"fcm_token"`
	APNToken            *string `json:"apn_token"`
	NotificationEnabled *bool   `json:"notification_enabled"`
}

func (api *UserAPI) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.StudentID == "" || req.Name == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing student_id or name")
		return
	}

	user := shuttle.User{
		StudentID:           req.StudentID,
		Name:                req.Name,
		Email:               req.Email,
		Phone:               req.Phone,
		NotificationEnabled: true,
		CreatedAt:           time.Now(),
	}
	if err := api.Users.InsertUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			response.WriteJSONError(w, http.StatusBadRequest, "student id already registered")
			return
		}
		api.Logger.Error("failed to register user", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("user registered", "student_id", req.StudentID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "registration complete",
		"user": map[string]string{
			"student_id": user.StudentID,
			"name":       user.Name,
			"email":      user.Email,
			"phone":      user.Phone,
		},
	})
}

func (api *UserAPI) Get(w http.ResponseWriter, r *http.Request) {
	user, err := api.Users.GetUser(r.Context(), r.PathValue("studentID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		api.Logger.Error("failed to get user", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	// Device tokens and the push subscription stay server-side.
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id":           user.StudentID,
		"name":                 user.Name,
		"email":                user.Email,
		"phone":                user.Phone,
		"notification_enabled": user.NotificationEnabled,
		"created_at":           user.CreatedAt,
	})
}

func (api *UserAPI) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	upd := store.UserUpdate{
		Name:                req.Name,
		Email:               req.Email,
		Phone:               req.Phone,
		FCMToken:            req.FCMToken,
		APNToken:            req.APNToken,
		NotificationEnabled: req.NotificationEnabled,
	}
	if upd == (store.UserUpdate{}) {
		response.WriteJSONError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	studentID := r.PathValue("studentID")
	if err := api.Users.UpdateUser(r.Context(), studentID, upd); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		api.Logger.Error("failed to update user", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "user updated",
		"student_id": studentID,
	})
}
