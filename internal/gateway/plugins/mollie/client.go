package mollie

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

const endpoint = "https://api.mollie.com"

// apiClient talks to the Mollie v2 API. Mollie issues distinct test_ and
// live_ keys, so the mode-scoped credential maps directly onto its key pairs.
type apiClient struct {
	apiKey     string
	httpClient *http.Client
}

func newClient(cfg domain.Config) (*apiClient, error) {
	apiKey := cfg.Settings.Credential("api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("%w: mollie api key not configured", domain.ErrConfiguration)
	}
	return &apiClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type molliePayment struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Metadata struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
	Links struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

func mollieAmount(amount int64, currency string) map[string]string {
	return map[string]string{
		"currency": strings.ToUpper(currency),
		"value":    domain.FormatAmount(amount),
	}
}

func (c *apiClient) createPayment(ctx context.Context, amount int64, currency, description, redirectURL, webhookURL, orderID string) (*molliePayment, error) {
	body := map[string]any{
		"amount":      mollieAmount(amount, currency),
		"description": description,
		"redirectUrl": redirectURL,
		"metadata":    map[string]string{"order_id": orderID},
	}
	if webhookURL != "" {
		body["webhookUrl"] = webhookURL
	}
	var out molliePayment
	if err := c.do(ctx, http.MethodPost, "/v2/payments", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) getPayment(ctx context.Context, id string) (*molliePayment, error) {
	var out molliePayment
	if err := c.do(ctx, http.MethodGet, "/v2/payments/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type mollieRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *apiClient) createRefund(ctx context.Context, paymentID string, amount int64, currency string) (*mollieRefund, error) {
	body := map[string]any{
		"amount": mollieAmount(amount, currency),
	}
	var out mollieRefund
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+url.PathEscape(paymentID)+"/refunds", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
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
	req, err := http.NewRequestWithContext(ctx, method, endpoint+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

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
		return fmt.Errorf("%w: mollie responded %d: %s", domain.ErrProvider, resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: unreadable mollie response", domain.ErrProvider)
		}
	}
	return nil
}
