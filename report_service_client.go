package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go-report-checkout/checkout"
	"go-report-checkout/models"

	"github.com/hashicorp/go-retryablehttp"
)

const maxErrorBodyBytes = 64 << 10

type BackendConfig struct {
	URL           string        `json:"url" mapstructure:"url"`
	OrderTimeout  time.Duration `json:"order_timeout" mapstructure:"order_timeout"`
	ReportTimeout time.Duration `json:"report_timeout" mapstructure:"report_timeout"`
	ReadyAttempts int           `json:"ready_attempts" mapstructure:"ready_attempts"`
}

func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		URL:           "http://localhost:5000",
		OrderTimeout:  30 * time.Second,
		ReportTimeout: 5 * time.Minute,
		ReadyAttempts: 5,
	}
}

// ReportServiceClient talks to the report backend. Business calls are sent
// once; only the readiness probe retries.
type ReportServiceClient struct {
	baseURL      string
	orderClient  *http.Client
	reportClient *http.Client
	probe        *retryablehttp.Client
}

func NewReportServiceClient(config BackendConfig) *ReportServiceClient {
	defaults := DefaultBackendConfig()
	if config.OrderTimeout <= 0 {
		config.OrderTimeout = defaults.OrderTimeout
	}
	if config.ReportTimeout <= 0 {
		config.ReportTimeout = defaults.ReportTimeout
	}
	if config.ReadyAttempts <= 0 {
		config.ReadyAttempts = defaults.ReadyAttempts
	}

	probe := retryablehttp.NewClient()
	probe.RetryMax = config.ReadyAttempts - 1
	probe.RetryWaitMin = 200 * time.Millisecond
	probe.RetryWaitMax = 2 * time.Second
	probe.HTTPClient.Timeout = 5 * time.Second
	probe.Logger = slog.Default()

	return &ReportServiceClient{
		baseURL:      strings.TrimRight(config.URL, "/"),
		orderClient:  &http.Client{Timeout: config.OrderTimeout},
		reportClient: &http.Client{Timeout: config.ReportTimeout},
		probe:        probe,
	}
}

// CreateOrder asks the backend to open a gateway order for amount, in whole
// currency units.
func (c *ReportServiceClient) CreateOrder(ctx context.Context, amount int) (models.Order, error) {
	var order models.Order
	if err := c.postJSON(ctx, c.orderClient, "/api/create-order", models.CreateOrderRequest{Amount: amount}, &order); err != nil {
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}
	if order.OrderID == "" {
		return models.Order{}, errors.New("create order: backend returned no order_id")
	}
	slog.Info("Order created", "order_id", order.OrderID, "amount", order.Amount, "currency", order.Currency)
	return order, nil
}

func (c *ReportServiceClient) GenerateReport(ctx context.Context, req models.ReportRequest) (models.GenerateReportResponse, error) {
	var resp models.GenerateReportResponse
	if err := c.postJSON(ctx, c.reportClient, "/api/generate-report", req, &resp); err != nil {
		return models.GenerateReportResponse{}, fmt.Errorf("generate report: %w", err)
	}
	slog.Info("Report generated", "report_type", req.ReportType(), "download_url", resp.DownloadURL)
	return resp, nil
}

// DownloadLocation appends the backend's download path to its base URL as is.
func (c *ReportServiceClient) DownloadLocation(path string) string {
	return c.baseURL + path
}

// Ready polls the backend health endpoint until it answers 200 or the
// attempts run out.
func (c *ReportServiceClient) Ready(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.probe.Do(req)
	if err != nil {
		return fmt.Errorf("backend not ready: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	slog.Info("Report backend health check passed", "url", c.baseURL)
	return nil
}

func (c *ReportServiceClient) postJSON(ctx context.Context, client *http.Client, path string, body any, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Calling report backend", "path", path, "body_size", len(jsonData))
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeBackendError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeBackendError turns a non-2xx answer into a checkout.BackendError. An
// unreadable body leaves Message empty so the caller falls back to its own text.
func decodeBackendError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var body models.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		slog.Warn("Backend error body is not JSON", "status_code", resp.StatusCode, "body", string(raw))
	}
	return &checkout.BackendError{StatusCode: resp.StatusCode, Message: body.Message}
}
