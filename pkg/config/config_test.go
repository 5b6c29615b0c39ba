package config

import (
	"strings"
	"testing"
	"time"

	"DemandCast/internal/domain/models"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", c.Server.Port)
	}
	if c.Cache.Backend != "memory" {
		t.Errorf("cache backend = %q", c.Cache.Backend)
	}
	if c.Forecasting.StockoutPolicy != models.StockoutImpute {
		t.Errorf("stockout policy = %q", c.Forecasting.StockoutPolicy)
	}
	if c.Forecasting.CacheTTL != 15*time.Minute {
		t.Errorf("cache ttl = %v", c.Forecasting.CacheTTL)
	}
	if c.Tracing.Environment != "test" {
		t.Errorf("tracing environment = %q", c.Tracing.Environment)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"cache backend":     "environment: test\ncache:\n  backend: disk\n",
		"kafka brokers":     "environment: test\nkafka:\n  enabled: true\n",
		"queue needs redis": "environment: test\nqueue:\n  enabled: true\npostgres:\n  enabled: true\n  dsn: postgres://x\n",
		"postgres dsn":      "environment: test\npostgres:\n  enabled: true\n",
		"stockout policy":   "environment: test\nforecasting:\n  stockout_policy: drop\n",
		"malformed":         "environment: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env := map[string]string{
		"HTTP_PORT":       "9090",
		"KAFKA_BROKERS":   "k1:9092,k2:9092",
		"STOCKOUT_POLICY": "EXCLUDE",
		"REDIS_PORT":      "not-a-number",
	}
	c.applyEnv(func(k string) string { return env[k] })
	if err := c.finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if c.Server.Port != 9090 {
		t.Errorf("port = %d", c.Server.Port)
	}
	if strings.Join(c.Kafka.Brokers, ",") != "k1:9092,k2:9092" {
		t.Errorf("brokers = %v", c.Kafka.Brokers)
	}
	if c.Forecasting.StockoutPolicy != models.StockoutExclude {
		t.Errorf("stockout policy = %q", c.Forecasting.StockoutPolicy)
	}
	if c.Redis.Port != 6379 {
		t.Errorf("redis port = %d, want default kept", c.Redis.Port)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	c, err := Load("../../config/config.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := c.Forecasting.Tiers["strict"]; !ok {
		t.Fatalf("expected strict tier")
	}
	if got := c.Forecasting.ThresholdsFor("strict").MinObservations; got != 12 {
		t.Errorf("strict min observations = %d", got)
	}
	if c.RedisAddr() != "localhost:6379" {
		t.Errorf("redis addr = %q", c.RedisAddr())
	}
}
