package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/ticketpay-backend/internal/bootstrap"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

type pinger = bootstrap.Pinger

// runner is a long-lived subscriber loop.
type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger *logger.Logger
	// Dependencies are pinged by name before any consumer starts.
	Dependencies map[string]pinger
	Consumers    map[string]runner
}

// Service runs every event consumer until one fails or ctx ends.
type Service struct {
	logg      *logger.Logger
	deps      map[string]bootstrap.Pinger
	consumers map[string]runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, dep := range params.Dependencies {
		if dep == nil {
			return nil, fmt.Errorf("%s dependency is nil", name)
		}
	}
	for name, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("%s consumer is nil", name)
		}
	}
	return &Service{logg: params.Logger, deps: params.Dependencies, consumers: params.Consumers}, nil
}

// Run returns ctx.Err() on shutdown, or the first consumer error otherwise.
// A failing consumer cancels the others.
func (s *Service) Run(ctx context.Context) error {
	if err := bootstrap.WaitReady(ctx, s.logg, s.deps); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range sortedKeys(s.consumers) {
		consumer := s.consumers[name]
		consumerCtx := s.logg.WithField(gctx, "consumer", name)
		g.Go(func() error {
			s.logg.Info(consumerCtx, "consumer starting")
			err := consumer.Run(consumerCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(consumerCtx, "consumer stopped unexpectedly", err)
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
