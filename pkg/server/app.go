package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	applogger "DemandCast/pkg/logger"
)

// Component is a long-running part of the application: the HTTP server, the
// Kafka consumer, the job queue.
type Component interface {
	Start() error
	Stop(ctx context.Context) error
}

type namedComponent struct {
	name string
	c    Component
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	l               *applogger.Logger
	shutdownTimeout time.Duration
	components      []namedComponent
	closers         []closer
}

// New creates an empty App.
func New(l *applogger.Logger, shutdownTimeout time.Duration) *App {
	if l == nil {
		l = applogger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &App{l: l, shutdownTimeout: shutdownTimeout}
}

// AddComponent registers a component. Components start in registration order
// and stop in reverse.
func (a *App) AddComponent(name string, c Component) {
	if c != nil {
		a.components = append(a.components, namedComponent{name: name, c: c})
	}
}

// AddCloser registers a resource released after every component stopped.
// Closers run in reverse registration order.
func (a *App) AddCloser(name string, fn func(ctx context.Context) error) {
	if fn != nil {
		a.closers = append(a.closers, closer{name: name, fn: fn})
	}
}

// Logger returns the application logger.
func (a *App) Logger() *applogger.Logger { return a.l }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and shuts down once ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	for i, nc := range a.components {
		if err := nc.c.Start(); err != nil {
			a.l.Error("component start failed", applogger.String("component", nc.name), applogger.Error(err))
			a.shutdown(a.components[:i])
			return fmt.Errorf("start %s: %w", nc.name, err)
		}
		a.l.Info("component started", applogger.String("component", nc.name))
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown(a.components)
}

// shutdown stops started components, then releases every closer.
func (a *App) shutdown(started []namedComponent) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		nc := started[i]
		if err := nc.c.Stop(ctx); err != nil {
			a.l.Warn("component stop error", applogger.String("component", nc.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", nc.name, err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
