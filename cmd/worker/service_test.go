package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type runFunc func(context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestRunStopsBeforeConsumersWhenDependencyDown(t *testing.T) {
	started := false
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Dependencies: map[string]pinger{
			"redis": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
		},
		Consumers: map[string]runner{
			"notifications": runFunc(func(context.Context) error { started = true; return nil }),
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
	if started {
		t.Fatal("consumer must not start when a dependency is down")
	}
}

func TestRunCancelsSiblingsWhenConsumerFails(t *testing.T) {
	siblingStopped := make(chan struct{})
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Consumers: map[string]runner{
			"broken": runFunc(func(context.Context) error { return errors.New("subscription deleted") }),
			"notifications": runFunc(func(ctx context.Context) error {
				<-ctx.Done()
				close(siblingStopped)
				return ctx.Err()
			}),
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected consumer error")
	}
	select {
	case <-siblingStopped:
	case <-time.After(time.Second):
		t.Fatal("sibling consumer was not canceled")
	}
}

func TestRunReturnsContextErrorOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Consumers: map[string]runner{
			"notifications": runFunc(func(ctx context.Context) error {
				cancel()
				<-ctx.Done()
				return ctx.Err()
			}),
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: quietLogger()}); err == nil {
		t.Fatal("expected error without consumers")
	}
	if _, err := NewService(ServiceParams{Consumers: map[string]runner{"n": runFunc(nil)}}); err == nil {
		t.Fatal("expected error without logger")
	}
}
