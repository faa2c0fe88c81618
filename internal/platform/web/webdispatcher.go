// Package web delivers notifications to browser push subscriptions via the
// Web Push protocol, carrying its own aes128gcm encryption and VAPID
// authentication rather than delegating to a relay vendor SDK.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/schoolbus/go-reservation-service/internal/webpush"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
)

// Outcome classifies one delivery attempt.
type Outcome int

const (
	// OutcomeDelivered: the relay accepted the message (200/201/202).
	OutcomeDelivered Outcome = iota
	// OutcomeGone: the relay reported the subscription permanently invalid
	// (400/404/410/413), or the subscription material was malformed. Never
	// retried; the subscription should be removed from storage.
	OutcomeGone
	// OutcomeTransient: network fault, timeout or unexpected status.
	// Eligible for retry by the caller; this component never retries.
	OutcomeTransient
)

const (
	defaultTTLSeconds = 86400
	requestTimeout    = 10 * time.Second
)

type Dispatcher struct {
	keys       *webpush.KeyManager
	ttlSeconds int
	logger     *slog.Logger
	httpClient *http.Client
}

func NewDispatcher(keys *webpush.KeyManager, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		keys:       keys,
		ttlSeconds: defaultTTLSeconds,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Dispatch applies the single-recipient pipeline across subs sequentially
// and summarizes. Each recipient gets its own ephemeral key, salt and
// token, so no state is shared between iterations and a failure on one
// recipient never aborts the batch. An unavailable signer aborts before
// any network attempt, since no message could be authenticated anyway.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	subs []shuttle.Subscription,
	content shuttle.NotificationContent,
	data map[string]string,
) (shuttle.BroadcastSummary, error) {

	summary := shuttle.BroadcastSummary{StaleIndices: []int{}}
	if len(subs) == 0 {
		return summary, nil
	}
	if !d.keys.Available() {
		return summary, webpush.ErrSignerUnavailable
	}

	payload, err := json.Marshal(payloadFor(content, data))
	if err != nil {
		return summary, fmt.Errorf("failed to marshal payload: %w", err)
	}

	for i, sub := range subs {
		outcome, err := d.send(ctx, sub, payload)
		switch outcome {
		case OutcomeDelivered:
			summary.Delivered++
		case OutcomeGone:
			summary.Failed++
			summary.StaleIndices = append(summary.StaleIndices, i)
			d.logger.Warn("subscription gone", "endpoint", sub.Endpoint, "err", err)
		default:
			summary.Failed++
			d.logger.Error("web push transport error", "endpoint", sub.Endpoint, "err", err)
		}
	}

	d.logger.Info("broadcast complete",
		"delivered", summary.Delivered, "failed", summary.Failed, "stale", len(summary.StaleIndices))
	return summary, nil
}

// send runs the per-recipient pipeline: encrypt, authenticate, POST,
// classify. An incomplete or malformed subscription is already failed; no
// network call is made for it.
func (d *Dispatcher) send(ctx context.Context, sub shuttle.Subscription, payload []byte) (Outcome, error) {
	if !sub.Complete() {
		return OutcomeGone, errors.New("incomplete subscription")
	}

	ciphertext, err := webpush.Encrypt(payload, sub.Keys.P256dh, sub.Keys.Auth)
	if err != nil {
		if errors.Is(err, webpush.ErrEncryption) {
			return OutcomeGone, err
		}
		return OutcomeTransient, err
	}

	token, err := d.keys.Token(sub.Endpoint, webpush.DefaultTokenTTL)
	if err != nil {
		return OutcomeTransient, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(ciphertext))
	if err != nil {
		return OutcomeGone, err
	}
	req.Header.Set("TTL", strconv.Itoa(d.ttlSeconds))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("Authorization", d.keys.AuthorizationHeader(token))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return OutcomeTransient, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return OutcomeDelivered, nil
	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone, http.StatusRequestEntityTooLarge:
		return OutcomeGone, fmt.Errorf("relay rejected subscription: status %d", resp.StatusCode)
	default:
		return OutcomeTransient, fmt.Errorf("unexpected relay status %d", resp.StatusCode)
	}
}

// payloadFor shapes the JSON the service worker reads. Defaults mirror the
// web client's assets.
func payloadFor(content shuttle.NotificationContent, data map[string]string) map[string]any {
	icon := content.Icon
	if icon == "" {
		icon = "/vite.svg"
	}
	badge := content.Badge
	if badge == "" {
		badge = icon
	}
	vibrate := content.Vibrate
	if len(vibrate) == 0 {
		vibrate = []int{200, 100, 200}
	}
	if data == nil {
		data = map[string]string{}
	}
	return map[string]any{
		"title":              content.Title,
		"body":               content.Body,
		"icon":               icon,
		"badge":              badge,
		"vibrate":            vibrate,
		"data":               data,
		"requireInteraction": true,
	}
}
