package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

type RedisConfig struct {
	Host      string `json:"host" mapstructure:"host"`
	Port      int    `json:"port" mapstructure:"port"`
	Password  string `json:"password" mapstructure:"password"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

type RedisSentinelConfig struct {
	SentinelHost     string `json:"sentinel_host" mapstructure:"sentinel_host"`
	SentinelPort     int    `json:"sentinel_port" mapstructure:"sentinel_port"`
	Password         string `json:"password" mapstructure:"password"`
	MasterName       string `json:"master_name" mapstructure:"master_name"`
	SentinelUsername string `json:"sentinel_username" mapstructure:"sentinel_username"`
	Namespace        string `json:"namespace" mapstructure:"namespace"`
}

// NewRedisClient connects to a single Redis node and pings it.
func NewRedisClient(config *RedisConfig) (*redis.Client, error) {
	if config.Host == "" || config.Port <= 0 {
		return nil, errors.New("redis host and port are required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "host", config.Host, "port", config.Port)
	return client, nil
}

// NewRedisSentinelClient asks the sentinel for the current master and pings it.
func NewRedisSentinelClient(config *RedisSentinelConfig) (*redis.Client, error) {
	if config.MasterName == "" {
		return nil, errors.New("redis sentinel master name is required")
	}

	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:       config.MasterName,
		SentinelAddrs:    []string{fmt.Sprintf("%s:%d", config.SentinelHost, config.SentinelPort)},
		SentinelUsername: config.SentinelUsername,
		SentinelPassword: config.Password,
		Password:         config.Password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis through Sentinel: %w", err)
	}

	slog.Info("Connected to Redis through Sentinel", "master", config.MasterName, "sentinel_host", config.SentinelHost)
	return client, nil
}
