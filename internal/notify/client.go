// Package notify предоставляет клиент для внешней системы уведомлений.
// События изменения состояния ваучеров отправляются коллаборатору
// HTTP-запросом с повторными попытками.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с системой уведомлений.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// EventPayload описывает отправляемое событие.
type EventPayload struct {
	Name          string `json:"name"`
	ParticipantID int64  `json:"participant_id,omitempty"`
	AccountID     int64  `json:"account_id,omitempty"`
	OrderID       int64  `json:"order_id,omitempty"`
	VoucherID     int64  `json:"voucher_id,omitempty"`
	PauseID       int64  `json:"pause_id,omitempty"`
	AmountCents   int64  `json:"amount,omitempty"`
}

// NewClient создаёт клиент системы уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = 5 * time.Second
	c.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: c,
	}
}

// Send отправляет событие системе уведомлений.
func (c *Client) Send(ctx context.Context, payload EventPayload) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notify client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("notify responded %d", resp.StatusCode)
	}

	return nil
}
