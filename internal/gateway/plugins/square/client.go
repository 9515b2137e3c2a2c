package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/payway/internal/gateway/domain"
)

const (
	sandboxEndpoint = "https://connect.squareupsandbox.com"
	liveEndpoint    = "https://connect.squareup.com"
	apiVersion      = "2024-01-18"
)

type apiClient struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

func newClient(cfg domain.Config) (*apiClient, error) {
	accessToken := cfg.Settings.Credential("access_token")
	if accessToken == "" {
		return nil, fmt.Errorf("%w: square access token not configured", domain.ErrConfiguration)
	}
	endpoint := sandboxEndpoint
	if cfg.Settings.IsLive() {
		endpoint = liveEndpoint
	}
	return &apiClient{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
	CardDetails struct {
		Card struct {
			CardBrand string `json:"card_brand"`
			Last4     string `json:"last_4"`
		} `json:"card"`
	} `json:"card_details"`
}

type paymentEnvelope struct {
	Payment payment `json:"payment"`
	Errors  []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *paymentEnvelope) errorDetail() string {
	if len(e.Errors) > 0 {
		return e.Errors[0].Detail
	}
	return ""
}

type createPaymentRequest struct {
	SourceID       string      `json:"source_id"`
	IdempotencyKey string      `json:"idempotency_key"`
	AmountMoney    amountMoney `json:"amount_money"`
	Autocomplete   bool        `json:"autocomplete"`
	CustomerID     string      `json:"customer_id,omitempty"`
	ReferenceID    string      `json:"reference_id,omitempty"`
}

type amountMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func money(amount int64, currency string) amountMoney {
	return amountMoney{Amount: amount, Currency: strings.ToUpper(currency)}
}

func (c *apiClient) createPayment(ctx context.Context, req createPaymentRequest) (*paymentEnvelope, error) {
	var out paymentEnvelope
	if err := c.do(ctx, http.MethodPost, "/v2/payments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) completePayment(ctx context.Context, id string) (*paymentEnvelope, error) {
	var out paymentEnvelope
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+url.PathEscape(id)+"/complete", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) cancelPayment(ctx context.Context, id string) (*paymentEnvelope, error) {
	var out paymentEnvelope
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+url.PathEscape(id)+"/cancel", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type refundEnvelope struct {
	Refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"refund"`
}

func (c *apiClient) refundPayment(ctx context.Context, paymentID, idempotencyKey string, amount int64, currency string) (*refundEnvelope, error) {
	body := map[string]any{
		"payment_id":      paymentID,
		"idempotency_key": idempotencyKey,
		"amount_money":    money(amount, currency),
	}
	var out refundEnvelope
	if err := c.do(ctx, http.MethodPost, "/v2/refunds", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type customerEnvelope struct {
	Customer struct {
		ID string `json:"id"`
	} `json:"customer"`
}

func (c *apiClient) createCustomer(ctx context.Context, referenceID string) (*customerEnvelope, error) {
	var out customerEnvelope
	if err := c.do(ctx, http.MethodPost, "/v2/customers", map[string]any{
		"reference_id": referenceID,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type cardEnvelope struct {
	Card struct {
		ID        string `json:"id"`
		CardBrand string `json:"card_brand"`
		Last4     string `json:"last_4"`
	} `json:"card"`
}

func (c *apiClient) createCard(ctx context.Context, customerID, sourceID, idempotencyKey string) (*cardEnvelope, error) {
	body := map[string]any{
		"idempotency_key": idempotencyKey,
		"source_id":       sourceID,
		"card": map[string]any{
			"customer_id": customerID,
		},
	}
	var out cardEnvelope
	if err := c.do(ctx, http.MethodPost, "/v2/cards", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) disableCard(ctx context.Context, cardID string) error {
	return c.do(ctx, http.MethodPost, "/v2/cards/"+url.PathEscape(cardID)+"/disable", map[string]any{}, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Square-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: square responded %d: %s", domain.ErrProvider, resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: unreadable square response", domain.ErrProvider)
		}
	}
	return nil
}
