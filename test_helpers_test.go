package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go-report-checkout/catalog"
	"go-report-checkout/checkout"
	"go-report-checkout/images"

	"github.com/stretchr/testify/require"
)

const testBaseURL = "http://localhost:8081"

var testConfig = ServerConfig{
	Host:           "localhost",
	Port:           8081,
	UseTls:         false,
	TlsCertPath:    "",
	TlsPrivKeyPath: "",
}

// fakeBackend plays the report backend.
type fakeBackend struct {
	server *httptest.Server

	mu          sync.Mutex
	orderStatus int
	orderBody   string
	orders      []map[string]any
	reports     []map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/api/create-order", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		b.orders = append(b.orders, body)
		status, errBody := b.orderStatus, b.orderBody
		b.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(errBody))
			return
		}
		amount, _ := body["amount"].(float64)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order_id": "order_test",
			"amount":   int(amount) * 100,
			"currency": "INR",
			"key_id":   "rzp_test_key",
		})
	})
	mux.HandleFunc("/api/generate-report", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		b.reports = append(b.reports, body)
		b.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       "success",
			"message":      "Report generated successfully.",
			"download_url": "/api/download-report/report.pdf",
		})
	})
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) failOrders(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderStatus = status
	b.orderBody = body
}

func (b *fakeBackend) calls() (orders []map[string]any, reports []map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.orders...), append([]map[string]any(nil), b.reports...)
}

type testEnv struct {
	backend  *fakeBackend
	storage  SessionStorage
	registry *FormRegistry
	events   *EventBroadcaster
	server   *Server
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	backend := newFakeBackend(t)
	backendConfig := DefaultBackendConfig()
	backendConfig.URL = backend.server.URL
	client := NewReportServiceClient(backendConfig)

	tokens, err := NewHmacFormTokenCreator(testTokenSecret, "report-checkout", time.Hour)
	require.NoError(t, err)

	storage := NewInMemorySessionStorage()
	events := NewEventBroadcaster()
	registry := NewFormRegistry(catalog.Default(), storage, events)
	checkoutConfig := checkout.DefaultConfig()
	checkoutConfig.PaymentWindow = 10 * time.Second

	testState := &ServerState{
		ctx:          context.Background(),
		registry:     registry,
		storage:      storage,
		tokens:       tokens,
		orchestrator: checkout.NewOrchestrator(catalog.Default(), client, registry, images.NewEncoder(images.DefaultEncoderConfig()), checkoutConfig),
		events:       events,
		maxUpload:    images.DefaultEncoderConfig().MaxBytes,
	}

	srv, err := NewServer(testState, testConfig)
	require.NoError(t, err)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("server error: %v", err)
		}
	}()

	waitUntilHealthy(t, testBaseURL+"/api/health")
	t.Cleanup(func() {
		if err := srv.Stop(); err != nil {
			t.Logf("error shutting down server: %v", err)
		}
	})
	return &testEnv{backend: backend, storage: storage, registry: registry, events: events, server: srv}
}

func waitUntilHealthy(t *testing.T, url string) {
	t.Helper()
	const maxAttempts = 50
	for i := 0; i < maxAttempts; i++ {
		if resp, err := http.Get(url); err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not start in time")
}

func doJSON[T any](t *testing.T, method, url, token string, payload any) (*http.Response, []byte, *T) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)
	return resp, respBody, &v
}

func postJSON[T any](t *testing.T, url, token string, payload any) (*http.Response, []byte, *T) {
	t.Helper()
	return doJSON[T](t, http.MethodPost, url, token, payload)
}

func postMultipart[T any](t *testing.T, url, token string, fields map[string]string, files map[string][]byte) (*http.Response, []byte, *T) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, data := range files {
		part, err := mw.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)
	return resp, respBody, &v
}

func mustStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}

func createForm(t *testing.T) CreateFormResponse {
	t.Helper()
	resp, body, created := postJSON[CreateFormResponse](t, testBaseURL+"/api/forms", "", nil)
	mustStatus(t, resp, http.StatusCreated, body)
	require.NotEmpty(t, created.FormId)
	require.NotEmpty(t, created.Token)
	return *created
}

func formURL(id, suffix string) string {
	return testBaseURL + "/api/forms/" + id + suffix
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 150, B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func individualFields() map[string]string {
	return map[string]string{
		"reportOption":         "individual",
		"individualReportType": "premium",
		"language":             "Hindi",
		catalog.FieldFullName1: "Asha Rao",
		catalog.FieldDob1:      "1990-04-12",
		catalog.FieldGender1:   "female",
	}
}

func individualFiles(t *testing.T) map[string][]byte {
	return map[string][]byte{
		catalog.FieldLeftPalm1:  testPNG(t),
		catalog.FieldRightPalm1: testPNG(t),
	}
}
