package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/rubberops/tapping-backend/pkg/logger"
)

type consumer interface {
	Name() string
	Run(ctx context.Context) error
}

type pinger func(context.Context) error

// ServiceParams wires the consumers that share one worker process.
type ServiceParams struct {
	Logger       *logger.Logger
	Consumers    []consumer
	Dependencies map[string]pinger
}

// Service runs every consumer until the context ends or one of them fails.
type Service struct {
	logg         *logger.Logger
	consumers    []consumer
	dependencies map[string]pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for i, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("consumer %d is nil", i)
		}
	}

	return &Service{
		logg:         params.Logger,
		consumers:    params.Consumers,
		dependencies: params.Dependencies,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	var errs error
	for name, ping := range s.dependencies {
		if ping == nil {
			continue
		}
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			errs = multierr.Append(errs, fmt.Errorf("%s ping failed: %w", name, err))
		}
	}
	if errs != nil {
		return errs
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until every consumer returns. The first failure cancels the
// others; context cancellation is not reported as an error.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, c := range s.consumers {
		wg.Add(1)
		go func(c consumer) {
			defer wg.Done()
			consumerCtx := s.logg.WithField(runCtx, "consumer", c.Name())
			s.logg.Info(consumerCtx, "consumer.start")
			err := c.Run(consumerCtx)
			if err == nil || errors.Is(err, context.Canceled) {
				s.logg.Info(consumerCtx, "consumer.stop")
				return
			}
			s.logg.Error(consumerCtx, "consumer stopped unexpectedly", err)
			mu.Lock()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			mu.Unlock()
			cancel()
		}(c)
	}
	wg.Wait()

	if errs != nil {
		return errs
	}
	return ctx.Err()
}
