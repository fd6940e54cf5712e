// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/ipdrlens/internal/logging"
)

// maxConsecutiveFailures hands a persistently failing task back to the
// supervisor so its backoff applies.
const maxConsecutiveFailures = 3

// Task is one run of a periodic job.
type Task func(ctx context.Context) error

// PeriodicService runs a Task every interval until its context ends.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     Task
}

// NewPeriodicService creates a service named name. A non-positive interval
// makes Serve idle until shutdown.
func NewPeriodicService(name string, interval time.Duration, task Task) *PeriodicService {
	return &PeriodicService{name: name, interval: interval, task: task}
}

// Serve implements suture.Service. Single failures are logged and the
// schedule continues; after maxConsecutiveFailures the error is returned.
func (p *PeriodicService) Serve(ctx context.Context) error {
	if p.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		start := time.Now()
		err := p.task(ctx)
		if err == nil {
			failures = 0
			logging.Debug().Str("service", p.name).Dur("duration", time.Since(start)).Msg("Periodic task complete")
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		logging.Warn().Err(err).Str("service", p.name).Int("consecutive_failures", failures).Msg("Periodic task failed")
		if failures >= maxConsecutiveFailures {
			return fmt.Errorf("%s failed %d times in a row: %w", p.name, failures, err)
		}
	}
}

// String names the service in supervisor logs.
func (p *PeriodicService) String() string {
	return p.name
}
