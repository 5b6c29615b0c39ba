package server

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type trace struct{ events []string }

type fakeComponent struct {
	name     string
	t        *trace
	startErr error
	stopErr  error
}

func (c *fakeComponent) Start() error {
	c.t.events = append(c.t.events, "start "+c.name)
	return c.startErr
}

func (c *fakeComponent) Stop(context.Context) error {
	c.t.events = append(c.t.events, "stop "+c.name)
	return c.stopErr
}

func TestRunContextOrdersLifecycle(t *testing.T) {
	tr := &trace{}
	app := New(nil, time.Second)
	app.AddCloser("db", func(context.Context) error { tr.events = append(tr.events, "close db"); return nil })
	app.AddComponent("queue", &fakeComponent{name: "queue", t: tr})
	app.AddComponent("http", &fakeComponent{name: "http", t: tr})
	app.AddCloser("tracing", func(context.Context) error { tr.events = append(tr.events, "close tracing"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.RunContext(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "start queue,start http,stop http,stop queue,close tracing,close db"
	if got := strings.Join(tr.events, ","); got != want {
		t.Fatalf("events = %s\nwant     %s", got, want)
	}
}

func TestRunContextStopsStartedOnFailure(t *testing.T) {
	tr := &trace{}
	boom := errors.New("port in use")
	app := New(nil, time.Second)
	app.AddComponent("queue", &fakeComponent{name: "queue", t: tr})
	app.AddComponent("http", &fakeComponent{name: "http", t: tr, startErr: boom})
	app.AddComponent("consumer", &fakeComponent{name: "consumer", t: tr})

	err := app.RunContext(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	want := "start queue,start http,stop queue"
	if got := strings.Join(tr.events, ","); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
}

func TestShutdownJoinsErrors(t *testing.T) {
	tr := &trace{}
	stopErr := errors.New("stop failed")
	closeErr := errors.New("close failed")
	app := New(nil, time.Second)
	app.AddComponent("http", &fakeComponent{name: "http", t: tr, stopErr: stopErr})
	app.AddCloser("db", func(context.Context) error { return closeErr })
	app.AddComponent("nil", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := app.RunContext(ctx)
	if !errors.Is(err, stopErr) || !errors.Is(err, closeErr) {
		t.Fatalf("err = %v", err)
	}
}
