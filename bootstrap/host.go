/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomoncle/managementapp/database"
)

var ErrShutdownTimeout = errors.New("hosted services did not stop before the shutdown timeout")

// Service is a long-running component started by the host.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Host runs services until its context is cancelled or the process gets
// SIGINT or SIGTERM.
type Host struct {
	services        []Service
	shutdownTimeout time.Duration
	logger          database.Logger
}

func NewHost(logger database.Logger, shutdownTimeout time.Duration, services ...Service) *Host {
	return &Host{services: services, shutdownTimeout: shutdownTimeout, logger: logger}
}

func (h *Host) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range h.services {
		svc := svc
		g.Go(func() error {
			err := svc.Run(gctx)
			if err != nil && gctx.Err() != nil && errors.Is(err, gctx.Err()) {
				return nil
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", svc.Name(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	h.logger.Info("Application started. Press Ctrl+C to shut down.", "services", len(h.services))

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
	}
	h.logger.Info("Application is shutting down...")

	if h.shutdownTimeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(h.shutdownTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrShutdownTimeout
	}
}
