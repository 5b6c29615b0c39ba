package clickhouse

import (
	"context"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

func TestOptionsFromConfig(t *testing.T) {
	o := options(ClientConfig{
		Host:        "ch.local",
		Port:        8123,
		Database:    "retail",
		User:        "reader",
		Password:    "secret",
		UseHTTP:     true,
		MaxExecTime: 90 * time.Second,
	})
	if len(o.Addr) != 1 || o.Addr[0] != "ch.local:8123" {
		t.Fatalf("addr = %v", o.Addr)
	}
	if o.Protocol != ch.HTTP {
		t.Fatalf("expected http protocol")
	}
	if o.Auth.Database != "retail" || o.Auth.Username != "reader" {
		t.Fatalf("auth = %+v", o.Auth)
	}
	if o.Settings["max_execution_time"] != 90 {
		t.Fatalf("max_execution_time = %v", o.Settings["max_execution_time"])
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(context.Background()); err == nil {
		t.Fatalf("expected error without host")
	}
}
