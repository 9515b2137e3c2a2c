package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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

const signatureHeader = "X-Square-Hmacsha256-Signature"

type webhookEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment payment `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyWebhook checks the base64 HMAC-SHA256 of notification URL + body
// against the mode-scoped signature key. Unsigned payloads pass only outside
// live mode.
func (g *Gateway) VerifyWebhook(ctx context.Context, cfg domain.Config, payload []byte, headers http.Header) error {
	key := cfg.Settings.Credential("webhook_signature_key")
	if key == "" {
		if cfg.Settings.IsLive() {
			return domain.ErrWebhookSignature
		}
		g.log.Warn("accepting unsigned webhook, no signature key configured")
		return nil
	}

	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return domain.ErrWebhookSignature
	}

	notificationURL := g.base.BaseURL + "/webhooks/" + cfg.Code
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(notificationURL))
	_, _ = mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrWebhookSignature
	}
	return nil
}

// HandleWebhook applies payment.updated events; everything else is ignored.
func (g *Gateway) HandleWebhook(ctx context.Context, cfg domain.Config, payload []byte) error {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: unreadable webhook payload", domain.ErrProvider)
	}
	if event.Type != "payment.updated" && event.Type != "payment.created" {
		return domain.ErrWebhookIgnored
	}

	p := event.Data.Object.Payment
	if p.ReferenceID == "" {
		g.log.Warn("webhook payment without reference id", zap.String("event_id", event.EventID))
		return domain.ErrWebhookIgnored
	}
	orderID, err := snowflake.ParseString(p.ReferenceID)
	if err != nil {
		return domain.ErrWebhookIgnored
	}
	ord, err := g.base.Orders.Find(ctx, g.base.DB, orderID)
	if errors.Is(err, orderdomain.ErrNotFound) {
		return domain.ErrWebhookIgnored
	}
	if err != nil {
		return err
	}

	res := resultFromPayment(&p)
	res.Message = res.Message + " (webhook)"
	res.Response["event_id"] = event.EventID
	if res.State == domain.StateInitiated {
		return domain.ErrWebhookIgnored
	}
	err = g.base.FinishPayment(ctx, cfg, ord, res)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil
	}
	return err
}
