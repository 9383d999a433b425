package models

// CreateOrderRequest is posted to /api/create-order.
type CreateOrderRequest struct {
	Amount int `json:"amount"`
}

// Order is a gateway-side reservation of an amount. Amount is in the
// currency's smallest unit as returned by the backend.
type Order struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

// ErrorResponse is the body the backend sends with a non-2xx status.
type ErrorResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// GenerateReportResponse is the body of a successful /api/generate-report call.
type GenerateReportResponse struct {
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}
