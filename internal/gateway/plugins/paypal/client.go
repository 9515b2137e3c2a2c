package paypal

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
	"github.com/smallbiznis/payway/internal/tokencache"
)

const (
	sandboxEndpoint = "https://api-m.sandbox.paypal.com"
	liveEndpoint    = "https://api-m.paypal.com"
)

// apiClient talks to the PayPal Orders v2 REST API. Access tokens come from
// the shared token cache so concurrent requests reuse one bearer token.
type apiClient struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	tokens       *tokencache.Cache
}

func newClient(cfg domain.Config, tokens *tokencache.Cache) (*apiClient, error) {
	clientID := cfg.Settings.Credential("client_id")
	clientSecret := cfg.Settings.Credential("client_secret")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: paypal client credentials not configured", domain.ErrConfiguration)
	}
	endpoint := sandboxEndpoint
	if cfg.Settings.IsLive() {
		endpoint = liveEndpoint
	}
	return &apiClient{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		tokens:       tokens,
	}, nil
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

func (r *orderResponse) approveURL() string {
	for _, l := range r.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func (r *orderResponse) captureID() string {
	for _, unit := range r.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.ID != "" {
				return capture.ID
			}
		}
	}
	return ""
}

func (c *apiClient) createOrder(ctx context.Context, amount int64, currency, returnURL, cancelURL string) (*orderResponse, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]any{
				"currency_code": strings.ToUpper(currency),
				"value":         domain.FormatAmount(amount),
			},
		}},
		"application_context": map[string]any{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}
	var out orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) getOrder(ctx context.Context, id string) (*orderResponse, error) {
	var out orderResponse
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) captureOrder(ctx context.Context, id string) (*orderResponse, error) {
	var out orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(id)+"/capture", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *apiClient) refundCapture(ctx context.Context, captureID string, amount int64, currency string) (*refundResponse, error) {
	body := map[string]any{
		"amount": map[string]any{
			"currency_code": strings.ToUpper(currency),
			"value":         domain.FormatAmount(amount),
		},
	}
	var out refundResponse
	if err := c.do(ctx, http.MethodPost, "/v2/payments/captures/"+url.PathEscape(captureID)+"/refund", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

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
	req.Header.Set("Authorization", "Bearer "+token)
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
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(ctx, c.tokenKey())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: paypal responded %d: %s", domain.ErrProvider, resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: unreadable paypal response", domain.ErrProvider)
		}
	}
	return nil
}

func (c *apiClient) tokenKey() string {
	return "paypal:" + c.clientID
}

func (c *apiClient) accessToken(ctx context.Context) (string, error) {
	return c.tokens.GetToken(ctx, c.tokenKey(), func(ctx context.Context) (string, time.Duration, error) {
		form := url.Values{"grant_type": {"client_credentials"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.endpoint+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return "", 0, err
		}
		req.SetBasicAuth(c.clientID, c.clientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", domain.ErrProvider, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", 0, fmt.Errorf("%w: paypal token request failed with %d", domain.ErrProvider, resp.StatusCode)
		}
		var out struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", 0, fmt.Errorf("%w: unreadable token response", domain.ErrProvider)
		}
		if out.AccessToken == "" {
			return "", 0, fmt.Errorf("%w: empty access token", domain.ErrProvider)
		}
		return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
	})
}
