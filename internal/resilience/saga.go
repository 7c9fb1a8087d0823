// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience provides the step runner that drives a whitelabel run:
// ordered steps, each with an optional compensation that undoes it when a
// later step fails.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Saga Step
// =============================================================================

// SagaStep is one step of a saga with its rollback action.
//
// # Description
//
// Execute performs the forward action. Compensate undoes it if a later step
// fails. For a whitelabel run, mutation steps compensate by restoring the
// artifacts they backed up; the snapshot step compensates by removing the
// snapshot directory.
//
// # Example
//
//	step := SagaStep{
//	    Name: "mutate sdk-core",
//	    Execute: func(ctx context.Context) error {
//	        return mutate(ctx, "sdk-core")
//	    },
//	    Compensate: func(ctx context.Context) error {
//	        return sess.RestoreBackups(paths)
//	    },
//	}
//
// # Limitations
//
//   - Compensate should be idempotent
//   - Compensate may be nil if there is nothing to undo
type SagaStep struct {
	// Name identifies the step in logs and errors.
	Name string

	// Execute performs the forward action.
	Execute func(ctx context.Context) error

	// Compensate undoes Execute. May be nil.
	Compensate func(ctx context.Context) error

	// Timeout overrides the saga's StepTimeout. Zero uses the default.
	Timeout time.Duration
}

// =============================================================================
// Saga Configuration
// =============================================================================

// SagaConfig configures saga behavior.
type SagaConfig struct {
	// StepTimeout bounds each step. Default: 30 minutes, long enough for a
	// full monorepo build.
	StepTimeout time.Duration

	// CompensationTimeout bounds each compensation. Default: 30 seconds.
	CompensationTimeout time.Duration

	// CompensateOnFail runs compensations when a step fails. Default: true
	// via DefaultSagaConfig.
	CompensateOnFail bool

	// Logger receives step and compensation events. Default: slog.Default().
	Logger *slog.Logger

	// OnStepStart is called before each step executes.
	OnStepStart func(step SagaStep)

	// OnStepComplete is called after each step succeeds.
	OnStepComplete func(step SagaStep, duration time.Duration)

	// OnStepFail is called when a step fails.
	OnStepFail func(step SagaStep, err error)

	// OnCompensate is called after each compensation, with its error.
	OnCompensate func(step SagaStep, err error)
}

// DefaultSagaConfig returns the configuration used by whitelabel runs.
func DefaultSagaConfig() SagaConfig {
	return SagaConfig{
		StepTimeout:         30 * time.Minute,
		CompensationTimeout: 30 * time.Second,
		CompensateOnFail:    true,
		Logger:              slog.Default(),
	}
}

// =============================================================================
// Errors
// =============================================================================

// ErrSagaCancelled indicates the context ended before all steps ran.
var ErrSagaCancelled = errors.New("saga cancelled")

// CompensationError records one failed compensation.
type CompensationError struct {
	// StepName is the step being compensated.
	StepName string

	// Err is what went wrong.
	Err error
}

// SagaError is returned by Execute when a step fails.
//
// Unwrap yields the step's own error, so errors.Is and errors.As see
// through the saga to the cause.
type SagaError struct {
	// Step is the name of the failed step.
	Step string

	// Err is the step's error.
	Err error

	// Compensated lists the steps whose compensation succeeded, in the
	// order they ran.
	Compensated []string

	// CompensationErrors lists compensations that failed.
	CompensationErrors []CompensationError
}

// Error implements error.
func (e *SagaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %q failed: %v", e.Step, e.Err)
	if len(e.CompensationErrors) > 0 {
		b.WriteString(" (rollback incomplete:")
		for _, ce := range e.CompensationErrors {
			fmt.Fprintf(&b, " %s: %v;", ce.StepName, ce.Err)
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the step's error.
func (e *SagaError) Unwrap() error {
	return e.Err
}

// RolledBack reports whether every compensation succeeded.
func (e *SagaError) RolledBack() bool {
	return len(e.CompensationErrors) == 0
}

// =============================================================================
// Saga
// =============================================================================

// Saga runs steps in order and compensates completed steps in reverse order
// when one fails.
//
// # Description
//
// Steps run on the caller's goroutine, one at a time. A step's context is
// derived from the caller's with the step timeout applied; steps that run
// subprocesses honor it through exec.CommandContext. Compensation runs on a
// fresh context so cleanup completes even when the caller's context was
// cancelled.
//
// # Thread Safety
//
// All methods lock the saga. Concurrent Execute calls on the same instance
// are serialized.
//
// # Limitations
//
//   - No persistence; state is lost on process crash. The backup files left
//     on disk are the recovery path for that case.
//   - A compensation failure leaves partial state and is reported in
//     SagaError.CompensationErrors.
type Saga struct {
	config    SagaConfig
	steps     []SagaStep
	completed []SagaStep
	mu        sync.Mutex
}

// NewSaga creates an empty saga. Zero values in config are replaced with
// defaults.
func NewSaga(config SagaConfig) *Saga {
	if config.StepTimeout <= 0 {
		config.StepTimeout = 30 * time.Minute
	}
	if config.CompensationTimeout <= 0 {
		config.CompensationTimeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Saga{config: config}
}

// AddStep appends a step.
func (s *Saga) AddStep(step SagaStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

// Execute runs all steps.
//
// # Description
//
// Runs each step with its timeout. On the first failure, completed steps
// are compensated in reverse order (when CompensateOnFail is set) and a
// *SagaError is returned. A cancelled context before a step counts as that
// step failing with ErrSagaCancelled.
//
// # Inputs
//
//   - ctx: Cancellation for the forward steps.
//
// # Outputs
//
//   - error: nil on success, otherwise *SagaError.
func (s *Saga) Execute(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed = s.completed[:0]

	for _, step := range s.steps {
		err := ctx.Err()
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrSagaCancelled, err)
		} else {
			err = s.executeStep(ctx, step)
		}
		if err == nil {
			s.completed = append(s.completed, step)
			continue
		}

		if s.config.OnStepFail != nil {
			s.config.OnStepFail(step, err)
		}
		sagaErr := &SagaError{Step: step.Name, Err: err}
		if s.config.CompensateOnFail {
			s.compensate(sagaErr)
		}
		return sagaErr
	}
	return nil
}

func (s *Saga) executeStep(ctx context.Context, step SagaStep) error {
	if s.config.OnStepStart != nil {
		s.config.OnStepStart(step)
	}
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = s.config.StepTimeout
	}

	s.config.Logger.Debug("Executing step", "step", step.Name)
	start := time.Now()

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := step.Execute(stepCtx)
	duration := time.Since(start)
	if err == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("step timed out after %v", timeout)
	}
	if err != nil {
		s.config.Logger.Error("Step failed", "step", step.Name, "duration", duration, "error", err)
		return err
	}

	s.config.Logger.Debug("Step completed", "step", step.Name, "duration", duration)
	if s.config.OnStepComplete != nil {
		s.config.OnStepComplete(step, duration)
	}
	return nil
}

// compensate undoes completed steps in reverse order. A failing
// compensation is recorded and the rest still run.
func (s *Saga) compensate(sagaErr *SagaError) {
	if len(s.completed) == 0 {
		return
	}
	s.config.Logger.Warn("Rolling back completed steps", "count", len(s.completed))

	for i := len(s.completed) - 1; i >= 0; i-- {
		step := s.completed[i]
		if step.Compensate == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.config.CompensationTimeout)
		err := step.Compensate(ctx)
		cancel()

		if err != nil {
			s.config.Logger.Error("Compensation failed", "step", step.Name, "error", err)
			sagaErr.CompensationErrors = append(sagaErr.CompensationErrors,
				CompensationError{StepName: step.Name, Err: err})
		} else {
			s.config.Logger.Info("Compensated step", "step", step.Name)
			sagaErr.Compensated = append(sagaErr.Compensated, step.Name)
		}
		if s.config.OnCompensate != nil {
			s.config.OnCompensate(step, err)
		}
	}
}

// CompletedSteps returns the names of steps that succeeded in the last
// Execute, in order.
func (s *Saga) CompletedSteps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.completed))
	for i, step := range s.completed {
		names[i] = step.Name
	}
	return names
}
