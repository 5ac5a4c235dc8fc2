package registry

/*
Файл client.go — HTTP-транспорт к внешнему сервису обучения/инференса
(Prophet-сервис и его собратья). Контракт границы:

  POST /predict {organization_id, site_id, metric_id, model_type, horizon, historical_data}
  POST /train   {organization_id, site_id, metric_id, model_type, historical_data}

«Недостаточно данных» сервис обязан возвращать как типизированный ответ
(insufficient_data: true), а не как HTTP-ошибку.
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// SeriesPayload — точка ряда в wire-формате сервиса.
type SeriesPayload struct {
	Date  string  `json:"date"` // ISO "2024-01-01"
	Value float64 `json:"value"`
}

type PredictRequest struct {
	OrganizationID string          `json:"organization_id"`
	SiteID         string          `json:"site_id,omitempty"`
	MetricID       string          `json:"metric_id"`
	ModelType      string          `json:"model_type"`
	Horizon        int             `json:"horizon"`
	HistoricalData []SeriesPayload `json:"historical_data"`
}

type PredictResponse struct {
	Forecasted       []float64 `json:"forecasted"`
	ConfidenceLower  []float64 `json:"confidence_lower"`
	ConfidenceUpper  []float64 `json:"confidence_upper"`
	Method           string    `json:"method"`
	InsufficientData bool      `json:"insufficient_data"`
}

type TrainRequest struct {
	OrganizationID string          `json:"organization_id"`
	SiteID         string          `json:"site_id,omitempty"`
	MetricID       string          `json:"metric_id"`
	ModelType      string          `json:"model_type"`
	HistoricalData []SeriesPayload `json:"historical_data"`
}

type TrainResponse struct {
	Validated        bool            `json:"validated"`
	InsufficientData bool            `json:"insufficient_data"`
	AccuracyMetrics  json.RawMessage `json:"accuracy_metrics,omitempty"`
	Reason           string          `json:"reason,omitempty"`
}

// HTTPCaller реализует Caller поверх net/http. Оборачивается в
// ReliabilityWrapper при сборке воркера.
type HTTPCaller struct {
	baseURL string
	client  *http.Client
}

func NewHTTPCaller(baseURL string, timeout time.Duration) *HTTPCaller {
	return &HTTPCaller{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCaller) Call(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("inference: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference: call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("inference: failed to read response: %w", err)
	}

	// 429: сервис сам сказал, когда возвращаться
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 5 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, perr := strconv.Atoi(s); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &ThrottleError{RetryAfter: retryAfter, Cause: fmt.Errorf("http 429")}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference: unexpected status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// Client — типизированные вызовы поверх надежного транспорта.
type Client struct {
	transport Caller
}

func NewClient(transport Caller) *Client {
	return &Client{transport: transport}
}

func (c *Client) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("inference: failed to marshal predict request: %w", err)
	}
	raw, err := c.transport.Call(ctx, "/predict", payload)
	if err != nil {
		return nil, err
	}
	var out PredictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("inference: malformed predict response: %w", err)
	}
	return &out, nil
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (*TrainResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("inference: failed to marshal train request: %w", err)
	}
	raw, err := c.transport.Call(ctx, "/train", payload)
	if err != nil {
		return nil, err
	}
	var out TrainResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("inference: malformed train response: %w", err)
	}
	return &out, nil
}

// toPayload конвертирует доменный ряд в wire-формат.
func toPayload(series *domain.MetricSeries) []SeriesPayload {
	out := make([]SeriesPayload, 0, len(series.Points))
	for _, p := range series.Points {
		out = append(out, SeriesPayload{Date: p.Date.Format("2006-01-02"), Value: p.Value})
	}
	return out
}
