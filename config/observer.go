package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ObserverConfig configures the consensus observer block feed.
type ObserverConfig struct {
	// MaxNumPendingBlocks bounds the pending block buffer.
	MaxNumPendingBlocks uint64 `mapstructure:"max-num-pending-blocks"`
	// MaxNumPayloads bounds the block payload store.
	MaxNumPayloads uint64 `mapstructure:"max-num-payloads"`
	// NetworkRequestTimeout bounds each subscribe RPC attempt.
	NetworkRequestTimeout time.Duration `mapstructure:"network-request-timeout"`
	// MaxConcurrentSubscriptions is the target number of upstream peers to
	// hold subscriptions with.
	MaxConcurrentSubscriptions uint64 `mapstructure:"max-concurrent-subscriptions"`
	// MaxSubscriptionSyncTimeout is the message-inactivity window after which
	// a subscription is considered unhealthy.
	MaxSubscriptionSyncTimeout time.Duration `mapstructure:"max-subscription-sync-timeout"`
	// SubscriptionCheckInterval is the cadence of the subscription health
	// check and top-up loop.
	SubscriptionCheckInterval time.Duration `mapstructure:"subscription-check-interval"`
	// PingWindow is the number of ping samples retained per peer.
	PingWindow int `mapstructure:"ping-window"`
	// MessageQueueCapacity bounds each inbound message queue.
	MessageQueueCapacity int `mapstructure:"message-queue-capacity"`
}

func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		MaxNumPendingBlocks:        100,
		MaxNumPayloads:             200,
		NetworkRequestTimeout:      10 * time.Second,
		MaxConcurrentSubscriptions: 2,
		MaxSubscriptionSyncTimeout: 30 * time.Second,
		SubscriptionCheckInterval:  15 * time.Second,
		PingWindow:                 10,
		MessageQueueCapacity:       500,
	}
}

type ObserverOption func(*ObserverConfig)

// WithMaxNumPendingBlocks sets the pending block buffer capacity.
func WithMaxNumPendingBlocks(max uint64) ObserverOption {
	return func(cfg *ObserverConfig) {
		cfg.MaxNumPendingBlocks = max
	}
}

// WithNetworkRequestTimeout sets the per-attempt subscribe RPC timeout.
func WithNetworkRequestTimeout(timeout time.Duration) ObserverOption {
	return func(cfg *ObserverConfig) {
		cfg.NetworkRequestTimeout = timeout
	}
}

// WithMaxConcurrentSubscriptions sets the target subscription count.
func WithMaxConcurrentSubscriptions(max uint64) ObserverOption {
	return func(cfg *ObserverConfig) {
		cfg.MaxConcurrentSubscriptions = max
	}
}

// LoadObserverConfig reads an observer configuration from the given file,
// with environment variables (prefix MERIDIAN_, dashes as underscores)
// overriding file values and defaults filling the gaps.
func LoadObserverConfig(path string) (ObserverConfig, error) {
	cfg := DefaultObserverConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("could not read observer config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("could not unmarshal observer config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the block feed cannot operate with.
func (cfg ObserverConfig) Validate() error {
	if cfg.MaxNumPendingBlocks == 0 {
		return fmt.Errorf("max-num-pending-blocks must be positive")
	}
	if cfg.MaxConcurrentSubscriptions == 0 {
		return fmt.Errorf("max-concurrent-subscriptions must be positive")
	}
	if cfg.NetworkRequestTimeout <= 0 {
		return fmt.Errorf("network-request-timeout must be positive")
	}
	if cfg.MessageQueueCapacity <= 0 {
		return fmt.Errorf("message-queue-capacity must be positive")
	}
	return nil
}
