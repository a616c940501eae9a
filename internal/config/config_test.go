package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal defaults failed: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Server.Mode != "debug" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("driver want sqlite got %s", cfg.Database.Driver)
	}
	if cfg.Order.Currency != "VND" || cfg.Order.PaymentExpireMinutes != 30 {
		t.Fatalf("unexpected order defaults: %+v", cfg.Order)
	}
	if cfg.Order.ShippingFee != 30000 {
		t.Fatalf("shipping fee want 30000 got %v", cfg.Order.ShippingFee)
	}
	if cfg.Security.CheckoutRateLimit.MaxRequests != 10 || cfg.Security.CheckoutRateLimit.WindowSeconds != 60 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.Security.CheckoutRateLimit)
	}
	if cfg.Queue.Queues["critical"] != 5 {
		t.Fatalf("critical queue weight want 5 got %d", cfg.Queue.Queues["critical"])
	}
	if cfg.Kafka.Enabled || cfg.Tracing.Enabled {
		t.Fatalf("kafka and tracing should be disabled by default")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("unexpected metrics defaults: %+v", cfg.Metrics)
	}
}

func TestGatewayConfigUnmarshal(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("payment.gateways", map[string]interface{}{
		"wallet_b": map[string]interface{}{
			"app_id": "2553",
			"key1":   "k1",
		},
	})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	raw, ok := cfg.Payment.Gateways["wallet_b"]
	if !ok {
		t.Fatalf("wallet_b config missing")
	}
	if raw["app_id"] != "2553" {
		t.Fatalf("app_id want 2553 got %v", raw["app_id"])
	}
}

func TestToLoggerOptions(t *testing.T) {
	opts := LogConfig{Dir: "/tmp/logs", Filename: "x.log", MaxSizeMB: 5, Compress: true}.ToLoggerOptions()
	if opts.Dir != "/tmp/logs" || opts.Filename != "x.log" || opts.MaxSizeMB != 5 || !opts.Compress {
		t.Fatalf("unexpected logger options: %+v", opts)
	}
}
