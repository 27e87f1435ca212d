package graph

import (
	"errors"
	"time"
)

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := graph.New(def, st, emitter,
//	    graph.WithMaxSteps(50),
//	    graph.WithDefaultNodeTimeout(30*time.Second),
//	    graph.WithMetrics(metrics),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	maxSteps           int
	defaultNodeTimeout time.Duration
	restartCompleted   bool
	deleteOnComplete   bool
	metrics            *PrometheusMetrics
}

// WithMaxSteps limits the number of node executions in one run.
//
// Default: 0 (no limit). Retry loops in the graph should carry their own
// counter in state; MaxSteps is a liveness guard for misconfigured routers.
//
// When MaxSteps is exceeded, the call returns an EngineError with code
// "MAX_STEPS_EXCEEDED" and the run is closed as aborted. Later calls return
// ErrRunAlreadyComplete.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return errors.New("max steps cannot be negative")
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the timeout for nodes registered without their own.
//
// Default: 0 (no timeout).
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("node timeout cannot be negative")
		}
		cfg.defaultNodeTimeout = d
		return nil
	}
}

// WithRestartCompleted lets Run start a fresh run over a completed or
// cancelled checkpoint instead of returning ErrRunAlreadyComplete.
func WithRestartCompleted() Option {
	return func(cfg *engineConfig) error {
		cfg.restartCompleted = true
		return nil
	}
}

// WithDeleteOnComplete removes the checkpoint once a run reaches End. Later
// calls for the run ID see ErrRunNotFound (Resume) or start over (Run).
func WithDeleteOnComplete() Option {
	return func(cfg *engineConfig) error {
		cfg.deleteOnComplete = true
		return nil
	}
}

// WithMetrics records run, step, retry and interrupt metrics.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}
