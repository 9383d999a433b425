package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go-report-checkout/catalog"
	"go-report-checkout/checkout"
	"go-report-checkout/images"
	log "go-report-checkout/logging"
	redis "go-report-checkout/redis"

	"github.com/spf13/viper"
)

type CatalogConfig struct {
	Currency string          `json:"currency" mapstructure:"currency"`
	Symbol   string          `json:"symbol" mapstructure:"symbol"`
	Prices   []catalog.Entry `json:"prices" mapstructure:"prices"`
}

type Config struct {
	ServerConfig ServerConfig `json:"server_config" mapstructure:"server_config"`
	LogLevel     string       `json:"log_level" mapstructure:"log_level"`
	LogFormat    string       `json:"log_format" mapstructure:"log_format"`

	Backend  BackendConfig        `json:"backend" mapstructure:"backend"`
	Checkout checkout.Config      `json:"checkout" mapstructure:"checkout"`
	Uploads  images.EncoderConfig `json:"uploads" mapstructure:"uploads"`
	Catalog  CatalogConfig        `json:"catalog" mapstructure:"catalog"`

	FormTokenSecret   string        `json:"form_token_secret" mapstructure:"form_token_secret"`
	FormTokenIssuer   string        `json:"form_token_issuer" mapstructure:"form_token_issuer"`
	FormTokenValidity time.Duration `json:"form_token_validity" mapstructure:"form_token_validity"`

	StorageType         string                    `json:"storage_type" mapstructure:"storage_type"`
	RedisConfig         redis.RedisConfig         `json:"redis_config,omitempty" mapstructure:"redis_config"`
	RedisSentinelConfig redis.RedisSentinelConfig `json:"redis_sentinel_config,omitempty" mapstructure:"redis_sentinel_config"`
}

func main() {
	configPath := flag.String("config", "", "Path for the config.json to use")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("please provide a config path using the --config flag")
	}

	config, err := readConfigFile(*configPath)
	if err != nil {
		log.Fatal("failed to read config file", "path", *configPath, "error", err)
	}
	log.InitLogger(config.LogLevel, config.LogFormat)
	slog.Info("using config", "path", *configPath)

	prices, err := createCatalog(config.Catalog)
	if err != nil {
		log.Fatal("failed to build price catalog", "error", err)
	}

	storage, err := createSessionStorage(&config)
	if err != nil {
		log.Fatal("failed to instantiate session storage", "error", err)
	}

	tokens, err := NewHmacFormTokenCreator(config.FormTokenSecret, config.FormTokenIssuer, config.FormTokenValidity)
	if err != nil {
		log.Fatal("failed to instantiate form token creator", "error", err)
	}

	backend := NewReportServiceClient(config.Backend)
	readyCtx, cancelReady := context.WithTimeout(context.Background(), 30*time.Second)
	if err := backend.Ready(readyCtx); err != nil {
		slog.Warn("report backend is not ready, continuing", "url", config.Backend.URL, "error", err)
	}
	cancelReady()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := NewEventBroadcaster()
	registry := NewFormRegistry(prices, storage, events)
	orchestrator := checkout.NewOrchestrator(prices, backend, registry, images.NewEncoder(config.Uploads), config.Checkout)

	serverState := ServerState{
		ctx:          ctx,
		registry:     registry,
		storage:      storage,
		tokens:       tokens,
		orchestrator: orchestrator,
		events:       events,
		maxUpload:    config.Uploads.MaxBytes,
	}

	server, err := NewServer(&serverState, config.ServerConfig)
	if err != nil {
		log.Fatal("failed to create server", "error", err)
	}

	// A form is unreachable once its token has expired.
	formMaxAge := config.FormTokenValidity
	if formMaxAge <= 0 {
		formMaxAge = SessionTimeout
	}
	go registry.RunReaper(serverState.ctx, formReaperInterval, formMaxAge)

	go func() {
		<-ctx.Done()
		_ = server.Stop()
	}()

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("failed to listen and serve", "error", err)
	}
}

func setConfigDefaults(v *viper.Viper) {
	backend := DefaultBackendConfig()
	v.SetDefault("server_config.host", "0.0.0.0")
	v.SetDefault("server_config.port", 8080)
	v.SetDefault("server_config.use_tls", false)
	v.SetDefault("server_config.tls_priv_key_path", "")
	v.SetDefault("server_config.tls_cert_path", "")
	v.SetDefault("server_config.static_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("backend.url", backend.URL)
	v.SetDefault("backend.order_timeout", backend.OrderTimeout)
	v.SetDefault("backend.report_timeout", backend.ReportTimeout)
	v.SetDefault("backend.ready_attempts", backend.ReadyAttempts)

	checkoutDefaults := checkout.DefaultConfig()
	v.SetDefault("checkout.merchant_name", checkoutDefaults.MerchantName)
	v.SetDefault("checkout.notes_address", checkoutDefaults.NotesAddress)
	v.SetDefault("checkout.theme_color", checkoutDefaults.ThemeColor)
	v.SetDefault("checkout.default_language", checkoutDefaults.DefaultLanguage)
	v.SetDefault("checkout.payment_window", checkoutDefaults.PaymentWindow)

	uploads := images.DefaultEncoderConfig()
	v.SetDefault("uploads.max_bytes", uploads.MaxBytes)
	v.SetDefault("uploads.normalize", uploads.Normalize)
	v.SetDefault("uploads.max_width", uploads.MaxWidth)
	v.SetDefault("uploads.max_height", uploads.MaxHeight)
	v.SetDefault("uploads.jpeg_quality", uploads.JPEGQuality)

	v.SetDefault("catalog.currency", "INR")
	v.SetDefault("catalog.symbol", "₹")

	v.SetDefault("form_token_secret", "")
	v.SetDefault("form_token_issuer", "report-checkout")
	v.SetDefault("form_token_validity", SessionTimeout)

	v.SetDefault("storage_type", "memory")
	v.SetDefault("redis_config.host", "")
	v.SetDefault("redis_config.port", 6379)
	v.SetDefault("redis_config.password", "")
	v.SetDefault("redis_config.namespace", "report-checkout")
	v.SetDefault("redis_sentinel_config.sentinel_host", "")
	v.SetDefault("redis_sentinel_config.sentinel_port", 26379)
	v.SetDefault("redis_sentinel_config.password", "")
	v.SetDefault("redis_sentinel_config.master_name", "")
	v.SetDefault("redis_sentinel_config.sentinel_username", "")
	v.SetDefault("redis_sentinel_config.namespace", "report-checkout")
}

// readConfigFile loads the JSON config. Every key can be overridden from the
// environment as CHECKOUT_<KEY>, nested keys joined by underscores, e.g.
// CHECKOUT_BACKEND_URL or CHECKOUT_FORM_TOKEN_SECRET.
func readConfigFile(path string) (Config, error) {
	v := viper.New()
	setConfigDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("CHECKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

func createCatalog(config CatalogConfig) (*catalog.Catalog, error) {
	if len(config.Prices) == 0 {
		return catalog.New(catalog.DefaultEntries, config.Currency, config.Symbol)
	}
	return catalog.New(config.Prices, config.Currency, config.Symbol)
}

func createSessionStorage(config *Config) (SessionStorage, error) {
	if config.StorageType == "redis" {
		slog.Info("Using redis session storage")
		client, err := redis.NewRedisClient(&config.RedisConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisSessionStorage(client, config.RedisConfig.Namespace), nil
	}
	if config.StorageType == "redis_sentinel" {
		slog.Info("Using redis sentinel session storage")
		client, err := redis.NewRedisSentinelClient(&config.RedisSentinelConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisSessionStorage(client, config.RedisSentinelConfig.Namespace), nil
	}
	if config.StorageType == "memory" {
		slog.Info("Using in memory session storage")
		return NewInMemorySessionStorage(), nil
	}
	return nil, fmt.Errorf("%v is not a valid storage type", config.StorageType)
}
