package authorizenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallbiznis/payway/internal/gateway/domain"
)

const (
	sandboxEndpoint = "https://apitest.authorize.net/xml/v1/request.api"
	liveEndpoint    = "https://api.authorize.net/xml/v1/request.api"
)

type apiClient struct {
	endpoint       string
	loginID        string
	transactionKey string
	httpClient     *http.Client
}

func newClient(cfg domain.Config) (*apiClient, error) {
	loginID := cfg.Settings.Credential("login_id")
	transactionKey := cfg.Settings.Credential("transaction_key")
	if loginID == "" || transactionKey == "" {
		return nil, fmt.Errorf("%w: authorize.net credentials not configured", domain.ErrConfiguration)
	}
	endpoint := sandboxEndpoint
	if cfg.Settings.IsLive() {
		endpoint = liveEndpoint
	}
	return &apiClient{
		endpoint:       endpoint,
		loginID:        loginID,
		transactionKey: transactionKey,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) auth() map[string]any {
	return map[string]any{
		"name":           c.loginID,
		"transactionKey": c.transactionKey,
	}
}

type transactionResponse struct {
	TransactionResponse struct {
		ResponseCode string `json:"responseCode"`
		TransID      string `json:"transId"`
		AccountNum   string `json:"accountNumber"`
		Errors       []struct {
			ErrorCode string `json:"errorCode"`
			ErrorText string `json:"errorText"`
		} `json:"errors"`
	} `json:"transactionResponse"`
	Messages apiMessages `json:"messages"`
}

type apiMessages struct {
	ResultCode string `json:"resultCode"`
	Message    []struct {
		Code string `json:"code"`
		Text string `json:"text"`
	} `json:"message"`
}

func (m apiMessages) ok() bool { return m.ResultCode == "Ok" }

func (m apiMessages) text() string {
	if len(m.Message) > 0 {
		return m.Message[0].Text
	}
	return ""
}

// createTransaction runs one transactionType against the AIM endpoint.
func (c *apiClient) createTransaction(ctx context.Context, transaction map[string]any) (*transactionResponse, error) {
	body := map[string]any{
		"createTransactionRequest": map[string]any{
			"merchantAuthentication": c.auth(),
			"transactionRequest":     transaction,
		},
	}
	var out transactionResponse
	if err := c.do(ctx, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type profileResponse struct {
	CustomerProfileID        string      `json:"customerProfileId"`
	CustomerPaymentProfileID string      `json:"customerPaymentProfileId"`
	Messages                 apiMessages `json:"messages"`
}

func (c *apiClient) request(ctx context.Context, name string, payload map[string]any) (*profileResponse, error) {
	payload["merchantAuthentication"] = c.auth()
	var out profileResponse
	if err := c.do(ctx, map[string]any{name: payload}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) do(ctx context.Context, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	// The endpoint prefixes responses with a UTF-8 BOM.
	payload = bytes.TrimPrefix(payload, []byte("\xef\xbb\xbf"))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: authorize.net responded %d", domain.ErrProvider, resp.StatusCode)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: unreadable authorize.net response", domain.ErrProvider)
	}
	return nil
}
