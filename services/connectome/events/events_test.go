// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	srv.Start()
	require.True(t, srv.ReadyForConnections(3*time.Second), "nats not ready")

	nc, err := Connect(srv.ClientURL(), "events-test", quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func TestPublishSubscribe(t *testing.T) {
	nc := startNATS(t)
	got := make(chan ReimportEvent, 1)

	sub, err := Subscribe(nc, DefaultSubject, time.Second, func(_ context.Context, ev ReimportEvent) error {
		got <- ev
		return nil
	}, quietLogger())
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, Publish(context.Background(), nc, DefaultSubject, ReimportEvent{
		DatasetIDs: []string{"witvliet_2020_7", "witvliet_2020_8"},
		Source:     "/data",
	}))

	select {
	case ev := <-got:
		assert.Equal(t, []string{"witvliet_2020_7", "witvliet_2020_8"}, ev.DatasetIDs)
		assert.Equal(t, "/data", ev.Source)
		assert.False(t, ev.At.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestSubscribe_PropagatesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	nc := startNATS(t)
	got := make(chan trace.SpanContext, 1)
	sub, err := Subscribe(nc, "trace.test", 0, func(ctx context.Context, _ ReimportEvent) error {
		got <- trace.SpanContextFromContext(ctx)
		return nil
	}, quietLogger())
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "import")
	defer span.End()

	require.NoError(t, Publish(ctx, nc, "trace.test", ReimportEvent{}))

	select {
	case sc := <-got:
		assert.Equal(t, span.SpanContext().TraceID(), sc.TraceID())
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestSubscribe_SurvivesBadMessagesAndHandlerErrors(t *testing.T) {
	nc := startNATS(t)
	calls := make(chan int, 4)
	n := 0

	sub, err := Subscribe(nc, "bad.test", 0, func(context.Context, ReimportEvent) error {
		n++
		calls <- n
		return errors.New("rebuild failed")
	}, quietLogger())
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, nc.Publish("bad.test", []byte("{not json")))
	require.NoError(t, Publish(context.Background(), nc, "bad.test", ReimportEvent{}))
	require.NoError(t, Publish(context.Background(), nc, "bad.test", ReimportEvent{}))

	for want := 1; want <= 2; want++ {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestPublish_WithoutDeadline(t *testing.T) {
	nc := startNATS(t)
	sub, err := nc.SubscribeSync("nodeadline.test")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	// Command contexts carry cancellation but no deadline.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	require.False(t, hasDeadline)

	require.NoError(t, Publish(ctx, nc, "nodeadline.test", ReimportEvent{DatasetIDs: []string{"D1"}}))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data), `"D1"`)
}

func TestPublish_CancelledContext(t *testing.T) {
	nc := startNATS(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Publish(ctx, nc, "cancelled.test", ReimportEvent{}), context.Canceled)
}

func TestNilConnection(t *testing.T) {
	assert.ErrorIs(t, Publish(context.Background(), nil, DefaultSubject, ReimportEvent{}), ErrNoConnection)
	_, err := Subscribe(nil, DefaultSubject, 0, nil, nil)
	assert.ErrorIs(t, err, ErrNoConnection)
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)
	assert.Empty(t, c.Get("traceparent"))
	assert.Nil(t, c.Keys())

	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
