package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/schoolbus/go-reservation-service/internal/webpush"
	"github.com/schoolbus/go-reservation-service/pkg/dispatch"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

// NewProcessor creates the fan-out logic for one route-open event: fetch
// every subscribed user, split them into platform buckets, dispatch, then
// clean up whatever each platform reported as permanently dead.
// fcmDispatcher and apnsDispatcher may be nil when the deployment has no
// credentials for those platforms; the web path is always present.
func NewProcessor(
	webDispatcher dispatch.WebDispatcher,
	fcmDispatcher dispatch.Dispatcher,
	apnsDispatcher dispatch.Dispatcher,
	users store.UserStore,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[shuttle.RouteOpenEvent] {

	return func(ctx context.Context, original messagepipeline.Message, ev *shuttle.RouteOpenEvent) error {
		procLogger := logger.With(
			"route_id", ev.RouteID,
			"pubsub_msg_id", original.ID,
		)

		recipients, err := users.SubscribedUsers(ctx)
		if err != nil {
			procLogger.Error("Failed to fetch subscribed users", "err", err)
			return err
		}
		if len(recipients) == 0 {
			procLogger.Info("No subscribed users; dropping notification.")
			return nil
		}

		content := contentFor(ev)
		data := map[string]string{
			"route_id": ev.RouteID,
			"url":      "/",
		}

		// Bucket recipients per platform. Indices into webSubs map back to
		// student IDs for stale-subscription cleanup.
		var (
			webSubs     []shuttle.Subscription
			webStudents []string
			fcmTokens   []string
			apnTokens   []string
		)
		fcmOwners := make(map[string]string)
		apnOwners := make(map[string]string)
		for _, u := range recipients {
			if u.PushSubscription != nil {
				webSubs = append(webSubs, *u.PushSubscription)
				webStudents = append(webStudents, u.StudentID)
			}
			if u.FCMToken != "" {
				fcmTokens = append(fcmTokens, u.FCMToken)
				fcmOwners[u.FCMToken] = u.StudentID
			}
			if u.APNToken != "" {
				apnTokens = append(apnTokens, u.APNToken)
				apnOwners[u.APNToken] = u.StudentID
			}
		}

		// Path A: Web Push
		summary, err := webDispatcher.Dispatch(ctx, webSubs, content, data)
		if err != nil {
			if errors.Is(err, webpush.ErrSignerUnavailable) {
				// Delivery-disabled deployment: drop rather than redeliver.
				procLogger.Warn("Web push disabled (no VAPID key); skipping broadcast")
			} else {
				procLogger.Error("Web dispatch failed", "err", err)
				return err
			}
		} else {
			for _, idx := range summary.StaleIndices {
				studentID := webStudents[idx]
				if err := users.ClearPushSubscription(ctx, studentID); err != nil {
					procLogger.Warn("Failed to delete stale subscription", "student_id", studentID, "err", err)
				}
			}
			procLogger.Info("Web dispatched",
				"delivered", summary.Delivered, "failed", summary.Failed, "stale", len(summary.StaleIndices))
		}

		// Path B: FCM
		if fcmDispatcher != nil && len(fcmTokens) > 0 {
			if err := dispatchTokens(ctx, fcmDispatcher, fcmTokens, fcmOwners, content, data, users, procLogger, "fcm"); err != nil {
				return err
			}
		}

		// Path C: APNs
		if apnsDispatcher != nil && len(apnTokens) > 0 {
			if err := dispatchTokens(ctx, apnsDispatcher, apnTokens, apnOwners, content, data, users, procLogger, "apns"); err != nil {
				return err
			}
		}

		return nil
	}
}

func dispatchTokens(
	ctx context.Context,
	dispatcher dispatch.Dispatcher,
	tokens []string,
	owners map[string]string,
	content shuttle.NotificationContent,
	data map[string]string,
	users store.UserStore,
	logger *slog.Logger,
	platform string,
) error {
	receipt, invalidTokens, err := dispatcher.Dispatch(ctx, tokens, content, data)

	for _, t := range invalidTokens {
		empty := ""
		upd := store.UserUpdate{}
		if platform == "fcm" {
			upd.FCMToken = &empty
		} else {
			upd.APNToken = &empty
		}
		if err := users.UpdateUser(ctx, owners[t], upd); err != nil {
			logger.Warn("Failed to clear dead device token", "platform", platform, "err", err)
		}
	}

	if err != nil {
		logger.Error("Token dispatch failed", "platform", platform, "err", err)
		return err // retryable
	}
	logger.Info("Token dispatch complete", "platform", platform, "receipt", receipt)
	return nil
}

func contentFor(ev *shuttle.RouteOpenEvent) shuttle.NotificationContent {
	body := "Booking is now open."
	if ev.RouteName != "" {
		body = fmt.Sprintf("%s (%s) is open for booking: %d seats available.",
			ev.RouteName, ev.DepartureTime, ev.AvailableSeats)
	}
	return shuttle.NotificationContent{
		Title:              "Shuttle booking open!",
		Body:               body,
		RequireInteraction: true,
	}
}
