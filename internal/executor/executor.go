// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package executor dispatches composed requests to provider adapters,
// choosing the streaming or single-shot transport per model capability.
// Every attempt, including cancelled and partial streams, is recorded in
// the performance tracker before Dispatch returns.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/medswitch/medswitch/internal/catalog"
	"github.com/medswitch/medswitch/internal/metrics"
	"github.com/medswitch/medswitch/internal/provider"
	"github.com/medswitch/medswitch/internal/trace"
)

// Result is the outcome of one successful dispatch.
type Result struct {
	Content  string
	Streamed bool
	Latency  time.Duration
}

// Executor owns the adapter set and the per-call timeout.
type Executor struct {
	adapters  map[string]provider.Adapter
	tracker   *metrics.Tracker
	tracer    *trace.Bus
	timeout   time.Duration
	streaming bool
}

// New builds an executor over adapters keyed by family. The streaming flag
// is the global control; per-model streaming still requires the model's
// descriptor flag.
func New(adapters map[string]provider.Adapter, tracker *metrics.Tracker, tracer *trace.Bus, timeout time.Duration, streaming bool) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		adapters:  adapters,
		tracker:   tracker,
		tracer:    tracer,
		timeout:   timeout,
		streaming: streaming,
	}
}

// Dispatch sends the request to the model's adapter. When the model and the
// global flag both allow streaming, chunks are forwarded to onChunk as they
// arrive and accumulated into the returned content; otherwise the
// single-shot path runs. Either way latency and outcome are recorded.
func (e *Executor) Dispatch(ctx context.Context, desc catalog.ModelDescriptor, req provider.Request, onChunk func(string)) (Result, error) {
	adapter, ok := e.adapters[desc.Family]
	if !ok {
		return Result{}, provider.NewValidationError(desc.ID, "no adapter registered for family "+desc.Family)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	requestID := uuid.NewString()
	start := time.Now()

	var (
		content  string
		streamed bool
		err      error
	)
	if desc.Streaming && e.streaming {
		streamed = true
		content, err = e.stream(ctx, adapter, req, onChunk)
	} else {
		content, err = adapter.Complete(ctx, req)
	}
	latency := time.Since(start)

	e.tracker.Record(desc.ID, latency, err == nil)
	ev := trace.Event{
		Kind:      trace.KindGeneration,
		RequestID: requestID,
		Model:     desc.ID,
		Name:      "completion",
		LatencyMs: latency.Milliseconds(),
		Data:      map[string]any{"streamed": streamed},
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.tracer.Emit(ev)

	if err != nil {
		classified := provider.Classify(desc.ID, err)
		log.WithField("request_id", requestID).
			Warnf("dispatch to %s failed after %s: %s", desc.ID, latency.Round(time.Millisecond), classified.Kind)
		return Result{Latency: latency, Streamed: streamed}, classified
	}
	return Result{Content: content, Streamed: streamed, Latency: latency}, nil
}

// stream drains the adapter's chunk channel, forwarding fragments and
// accumulating the final text. Caller cancellation stops the drain; the
// adapter owns closing the channel and releasing the connection, and the
// partial attempt is recorded as failed by Dispatch.
func (e *Executor) stream(ctx context.Context, adapter provider.Adapter, req provider.Request, onChunk func(string)) (string, error) {
	ch, err := adapter.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			// Drain in the background so the adapter goroutine can exit.
			go func() {
				for range ch {
				}
			}()
			return sb.String(), ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Err != nil {
				return sb.String(), chunk.Err
			}
			sb.WriteString(chunk.Content)
			if onChunk != nil {
				onChunk(chunk.Content)
			}
		}
	}
}
