package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider talks to a payment gateway over JSON. Every call carries a
// bounded timeout; the gateway's verdict maps onto the error taxonomy:
// 4xx decline -> DeclinedError, 5xx/network -> TransientError.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 2500 * time.Millisecond
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) ProcessPayment(ctx context.Context, orderID string, amount int64, currency, method string) (Result, error) {
	body := map[string]any{
		"order_id": orderID,
		"amount":   amount,
		"currency": currency,
		"method":   method,
	}
	var res Result
	if err := p.post(ctx, "/payments", "capture", body, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (p *HTTPProvider) RefundPayment(ctx context.Context, paymentID string, amount int64) (RefundResult, error) {
	body := map[string]any{
		"payment_id": paymentID,
		"amount":     amount,
	}
	var res RefundResult
	if err := p.post(ctx, "/refunds", "refund", body, &res); err != nil {
		return RefundResult{}, err
	}
	return res, nil
}

func (p *HTTPProvider) post(ctx context.Context, path, op string, body, out any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var decline struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&decline)
		if decline.Reason == "" {
			decline.Reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return &DeclinedError{Reason: decline.Reason}
	default:
		return &TransientError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
}
