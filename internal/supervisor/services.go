// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package supervisor

import (
	"context"
	"time"
)

// Runner is the lifecycle contract shared by Cordon's long-running
// components: block until the context is canceled, return the reason.
//
// Satisfied by the API server, the websocket hub, and the frame
// consumer.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService adapts a Runner to suture.Service with a stable name
// for supervisor logs.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService wraps a Runner as a supervised service.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (s *RunnerService) String() string {
	return s.name
}

// Bus is the lifecycle contract of the embedded message broker, which
// starts during construction and only needs supervised shutdown.
//
// Satisfied by the embedded NATS server.
type Bus interface {
	Running() bool
	Shutdown(ctx context.Context) error
}

// BusService supervises an already-running broker: it parks until the
// context is canceled, then drives graceful shutdown with a bounded
// deadline.
type BusService struct {
	bus             Bus
	shutdownTimeout time.Duration
	name            string
}

// NewBusService wraps a running broker as a supervised service.
func NewBusService(name string, bus Bus, shutdownTimeout time.Duration) *BusService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &BusService{bus: bus, shutdownTimeout: shutdownTimeout, name: name}
}

// Serve implements suture.Service.
func (s *BusService) Serve(ctx context.Context) error {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.bus.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (s *BusService) String() string {
	return s.name
}
