package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-report-checkout/catalog"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadConfigFile_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `{
		"server_config": {"host": "127.0.0.1", "port": 9000},
		"backend": {"url": "http://backend:5000", "report_timeout": "2m"},
		"checkout": {"merchant_name": "Palms Inc"},
		"catalog": {"currency": "USD", "symbol": "$", "prices": [
			{"category": "individual", "subtype": "basic", "amount": 5},
			{"category": "individual", "subtype": "premium", "amount": 15},
			{"category": "couple", "subtype": "premium", "amount": 20}
		]},
		"form_token_secret": "0123456789abcdef0123456789abcdef",
		"storage_type": "memory"
	}`)

	config, err := readConfigFile(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", config.ServerConfig.Host)
	require.Equal(t, 9000, config.ServerConfig.Port)
	require.Equal(t, "http://backend:5000", config.Backend.URL)
	require.Equal(t, 2*time.Minute, config.Backend.ReportTimeout)
	require.Equal(t, 30*time.Second, config.Backend.OrderTimeout)
	require.Equal(t, "Palms Inc", config.Checkout.MerchantName)
	require.Equal(t, "#007bff", config.Checkout.ThemeColor)
	require.Equal(t, 15*time.Minute, config.Checkout.PaymentWindow)
	require.Equal(t, int64(10<<20), config.Uploads.MaxBytes)
	require.Equal(t, "info", config.LogLevel)

	prices, err := createCatalog(config.Catalog)
	require.NoError(t, err)
	amount, err := prices.Price(catalog.Couple, catalog.Basic)
	require.NoError(t, err)
	require.Equal(t, 20, amount)
	require.Equal(t, "USD", prices.Currency())
}

func TestReadConfigFile_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `{"backend": {"url": "http://from-file"}, "storage_type": "memory"}`)
	t.Setenv("CHECKOUT_BACKEND_URL", "http://from-env")
	t.Setenv("CHECKOUT_CHECKOUT_PAYMENT_WINDOW", "5m")
	t.Setenv("CHECKOUT_FORM_TOKEN_SECRET", "env-secret")

	config, err := readConfigFile(path)
	require.NoError(t, err)
	require.Equal(t, "http://from-env", config.Backend.URL)
	require.Equal(t, 5*time.Minute, config.Checkout.PaymentWindow)
	require.Equal(t, "env-secret", config.FormTokenSecret)
}

func TestReadConfigFile_Missing(t *testing.T) {
	_, err := readConfigFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestCreateSessionStorage(t *testing.T) {
	storage, err := createSessionStorage(&Config{StorageType: "memory"})
	require.NoError(t, err)
	require.IsType(t, &InMemorySessionStorage{}, storage)

	_, err = createSessionStorage(&Config{StorageType: "postgres"})
	require.ErrorContains(t, err, "postgres is not a valid storage type")

	_, err = createSessionStorage(&Config{StorageType: "redis"})
	require.Error(t, err)
}

func TestCreateCatalog_DefaultsWhenNoPrices(t *testing.T) {
	prices, err := createCatalog(CatalogConfig{Currency: "INR", Symbol: "₹"})
	require.NoError(t, err)
	amount, err := prices.Price(catalog.Individual, catalog.Premium)
	require.NoError(t, err)
	require.Equal(t, 150, amount)

	_, err = createCatalog(CatalogConfig{Currency: "XYZ1"})
	require.Error(t, err)
}
