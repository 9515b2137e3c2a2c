package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	"go.uber.org/zap"
)

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Status   string            `json:"status"`
			Metadata map[string]string `json:"metadata"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyWebhook checks the Stripe-Signature HMAC against the mode-scoped
// signing secret. With no secret configured, unsigned payloads are accepted
// only outside live mode.
func (g *Gateway) VerifyWebhook(ctx context.Context, cfg domain.Config, payload []byte, headers http.Header) error {
	secret := cfg.Settings.Credential("webhook_secret")
	if secret == "" {
		if cfg.Settings.IsLive() {
			return domain.ErrWebhookSignature
		}
		g.log.Warn("accepting unsigned webhook, no signing secret configured")
		return nil
	}

	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrWebhookSignature
	}
	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrWebhookSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrWebhookSignature
}

// HandleWebhook applies an authenticated provider event. Duplicate
// confirmations degrade to a log-only no-op; unrecognized event types are
// ignored so Stripe does not retry them forever.
func (g *Gateway) HandleWebhook(ctx context.Context, cfg domain.Config, payload []byte) error {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: unreadable webhook payload", domain.ErrProvider)
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("%w: webhook event without id", domain.ErrProvider)
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return g.applyIntentEvent(ctx, cfg, event, domain.StateSucceeded, "payment confirmed by webhook")
	case "payment_intent.amount_capturable_updated":
		return g.applyIntentEvent(ctx, cfg, event, domain.StateRequiresCapture, "authorization confirmed by webhook")
	case "payment_intent.payment_failed":
		return g.applyIntentFailed(ctx, cfg, event)
	case "payment_intent.canceled":
		return g.applyIntentEvent(ctx, cfg, event, domain.StateCanceled, "payment canceled at provider")
	default:
		return domain.ErrWebhookIgnored
	}
}

func (g *Gateway) applyIntentEvent(ctx context.Context, cfg domain.Config, event webhookEvent, state domain.State, message string) error {
	ord, err := g.orderFromEvent(ctx, event)
	if err != nil {
		return err
	}
	res := &domain.ProcessResult{
		State:         state,
		Message:       message,
		TransactionID: event.Data.Object.ID,
		IsRefundable:  state == domain.StateSucceeded || state == domain.StateRequiresCapture,
		Response: map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
			"status":     event.Data.Object.Status,
		},
	}
	err = g.base.FinishPayment(ctx, cfg, ord, res)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil
	}
	return err
}

func (g *Gateway) applyIntentFailed(ctx context.Context, cfg domain.Config, event webhookEvent) error {
	ord, err := g.orderFromEvent(ctx, event)
	if err != nil {
		return err
	}
	message := "payment failed at provider"
	if event.Data.Object.LastPaymentError != nil && event.Data.Object.LastPaymentError.Message != "" {
		message = event.Data.Object.LastPaymentError.Message
	}
	res := &domain.ProcessResult{
		State:         domain.StateFailed,
		Message:       message,
		TransactionID: event.Data.Object.ID,
		Response: map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
		},
	}
	return g.base.FinishPayment(ctx, cfg, ord, res)
}

func (g *Gateway) orderFromEvent(ctx context.Context, event webhookEvent) (*orderdomain.Order, error) {
	raw := event.Data.Object.Metadata["order_id"]
	if raw == "" {
		g.log.Warn("webhook event without order_id metadata", zap.String("event_id", event.ID))
		return nil, domain.ErrWebhookIgnored
	}
	orderID, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, domain.ErrWebhookIgnored
	}
	ord, err := g.base.Orders.Find(ctx, g.base.DB, orderID)
	if errors.Is(err, orderdomain.ErrNotFound) {
		return nil, domain.ErrWebhookIgnored
	}
	if err != nil {
		return nil, err
	}
	return ord, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, domain.ErrWebhookSignature
	}
	return timestamp, signatures, nil
}
