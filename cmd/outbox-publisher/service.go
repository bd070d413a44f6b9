package main

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/ticketpay-backend/internal/bootstrap"
	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	maxIdleBackoff      = 10 * time.Second
	pollJitterPercent   = 20
)

type drainer interface {
	Drain(ctx context.Context) (int, error)
}

type ServiceParams struct {
	Config *config.Config
	Logger *logger.Logger
	// Database and PubSub must answer a ping before the first drain.
	Database bootstrap.Pinger
	PubSub   bootstrap.Pinger
	Relay    drainer
}

// Service polls the outbox and relays payment events until its context ends.
type Service struct {
	logg  *logger.Logger
	deps  map[string]bootstrap.Pinger
	relay drainer
	poll  time.Duration
	sleep func(context.Context, time.Duration) error
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Database == nil || params.PubSub == nil:
		return nil, errors.New("database and pubsub clients are required")
	case params.Relay == nil:
		return nil, errors.New("outbox relay is required")
	}

	poll := time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Service{
		logg:  params.Logger,
		deps:  map[string]bootstrap.Pinger{"database": params.Database, "pubsub": params.PubSub},
		relay: params.Relay,
		poll:  poll,
		sleep: sleepCtx,
	}, nil
}

// Run drains batches back to back while rows keep coming. Empty polls and
// failed batches wait on a jittered exponential backoff capped at
// maxIdleBackoff; any handled row resets it.
func (s *Service) Run(ctx context.Context) error {
	if err := bootstrap.WaitReady(ctx, s.logg, s.deps); err != nil {
		return err
	}

	idle := s.idleBackoff()
	for ctx.Err() == nil {
		handled, err := s.relay.Drain(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
		} else if handled > 0 {
			idle = s.idleBackoff()
			continue
		}

		wait, _ := idle.Next()
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *Service) idleBackoff() retry.Backoff {
	return retry.WithJitterPercent(pollJitterPercent,
		retry.WithCappedDuration(maxIdleBackoff, retry.NewExponential(s.poll)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
