// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events carries reimport notifications over NATS.
//
// The import command publishes a ReimportEvent after new records are
// written. Serving processes subscribe and rebuild their catalog, swap in
// a fresh snapshot and drop the cache entries of the named datasets.
// Trace context travels in the message headers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// DefaultSubject is the subject reimport events are published on.
const DefaultSubject = "connectome.reimport"

// DefaultFlushTimeout bounds the publish flush when ctx has no deadline.
const DefaultFlushTimeout = 5 * time.Second

// ErrNoConnection is returned when a nil connection is used.
var ErrNoConnection = errors.New("nats connection is nil")

// ReimportEvent announces that datasets were reimported.
type ReimportEvent struct {
	// DatasetIDs lists the reimported datasets. Empty means all datasets.
	DatasetIDs []string `json:"dataset_ids"`

	// Source describes the producer, e.g. the import directory.
	Source string `json:"source,omitempty"`

	// At is when the import finished.
	At time.Time `json:"at"`
}

// headerCarrier adapts nats.Msg headers to propagation.TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Connect dials NATS with reconnects enabled and connection state changes
// logged.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Publish sends ev on subject with the trace context of ctx and waits for
// the server to acknowledge it. Without a deadline on ctx the wait is
// bounded by DefaultFlushTimeout.
func Publish(ctx context.Context, nc *nats.Conn, subject string, ev ReimportEvent) error {
	if nc == nil {
		return ErrNoConnection
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode reimport event: %w", err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFlushTimeout)
		defer cancel()
	}
	if err := nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}

// Handler processes one reimport event.
type Handler func(ctx context.Context, ev ReimportEvent) error

// Subscribe calls handler for every event on subject.
//
// Description:
//
//	Malformed messages are logged and dropped. Handler errors are logged;
//	the subscription stays active. Each handler call gets a context
//	carrying the publisher's trace and bounded by timeout when positive.
//
// Outputs:
//
//	*nats.Subscription - Unsubscribe to stop delivery.
//	error - ErrNoConnection or a subscribe failure.
func Subscribe(nc *nats.Conn, subject string, timeout time.Duration, handler Handler, logger *slog.Logger) (*nats.Subscription, error) {
	if nc == nil {
		return nil, ErrNoConnection
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("subject", subject))

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev ReimportEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Warn("dropping malformed reimport event", slog.String("error", err.Error()))
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := handler(ctx, ev); err != nil {
			logger.Error("reimport handler failed",
				slog.Any("datasets", ev.DatasetIDs),
				slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
