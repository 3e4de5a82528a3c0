// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fallback classifies execution failures and drives a bounded retry
// across the static fallback chain. The walk is iterative with an explicit
// hop counter and visited set, so a misconfigured chain can never recurse
// or loop.
package fallback

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/medswitch/medswitch/internal/catalog"
	"github.com/medswitch/medswitch/internal/executor"
	"github.com/medswitch/medswitch/internal/provider"
)

// DegradedResponse is returned when every fallback attempt failed. A
// clinical deployment must never answer with an empty or silently failed
// turn, so the notice is explicit and points at out-of-band help.
const DegradedResponse = "I'm sorry, I couldn't reach any of the configured AI services just now, " +
	"so I can't answer this message. Please try again in a moment. " +
	"If your question is urgent or concerns worsening symptoms, contact your " +
	"clinician or local emergency services directly rather than waiting."

// Chain is the static, acyclic fallback mapping.
type Chain struct {
	next map[string]string
}

// NewChain validates acyclicity once and returns the chain. The walk bound
// is the map size, so validation terminates on any input.
func NewChain(next map[string]string) (*Chain, error) {
	for start := range next {
		visited := map[string]bool{start: true}
		current := start
		for i := 0; i <= len(next); i++ {
			n, ok := next[current]
			if !ok {
				break
			}
			if visited[n] {
				return nil, fmt.Errorf("fallback: chain cycle through %q", n)
			}
			visited[n] = true
			current = n
		}
	}
	if next == nil {
		next = map[string]string{}
	}
	return &Chain{next: next}, nil
}

// Next returns the designated fallback for a model id.
func (c *Chain) Next(id string) (string, bool) {
	n, ok := c.next[id]
	return n, ok
}

// BuildFunc composes the request for one candidate model, so each fallback
// hop gets a prompt tailored to its target.
type BuildFunc func(catalog.ModelDescriptor) (provider.Request, error)

// Outcome is the terminal result of an execution with fallback.
type Outcome struct {
	Content  string
	ModelID  string
	Streamed bool
	// Degraded marks the safe fallback-exhausted response.
	Degraded bool
	// ErrorTag is the machine-readable failure tag on a degraded outcome.
	ErrorTag string
}

// Controller walks the chain after a primary failure.
type Controller struct {
	chain      *Chain
	registry   *catalog.Registry
	exec       *executor.Executor
	maxRetries int
}

// NewController wires the controller. maxRetries bounds fallback hops after
// the original attempt.
func NewController(chain *Chain, registry *catalog.Registry, exec *executor.Executor, maxRetries int) *Controller {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Controller{chain: chain, registry: registry, exec: exec, maxRetries: maxRetries}
}

// Execute attempts the primary model and, for non-internal calls, walks the
// fallback chain on retryable failures. Internal calls re-raise the first
// failure unmodified: no retry, no degraded text. Validation failures are
// surfaced immediately on any call.
//
// When the chain is exhausted Execute returns a degraded Outcome and a nil
// error; the original failure has already been recorded for diagnostics.
func (f *Controller) Execute(ctx context.Context, desc catalog.ModelDescriptor, build BuildFunc, internal bool, onChunk func(string)) (Outcome, error) {
	result, err := f.attempt(ctx, desc, build, onChunk)
	if err == nil {
		return Outcome{Content: result.Content, ModelID: desc.ID, Streamed: result.Streamed}, nil
	}
	if internal {
		return Outcome{}, err
	}

	var pe *provider.Error
	if errors.As(err, &pe) && !pe.Retryable() {
		return Outcome{}, err
	}

	firstErr := err
	visited := map[string]bool{desc.ID: true}
	current := desc.ID

	for hops := 0; hops < f.maxRetries; hops++ {
		nextID, ok := f.chain.Next(current)
		if !ok {
			break
		}
		// The chain is validated acyclic at load, but never retry into the
		// original failed provider or any already-visited hop regardless.
		if nextID == desc.ID || visited[nextID] {
			break
		}
		visited[nextID] = true
		current = nextID

		nextDesc, ok := f.registry.Get(nextID)
		if !ok {
			log.Warnf("fallback chain names unknown model %s, stopping walk", nextID)
			break
		}

		log.Infof("falling back from %s to %s (hop %d/%d)", desc.ID, nextID, hops+1, f.maxRetries)
		result, err = f.attempt(ctx, nextDesc, build, onChunk)
		if err == nil {
			return Outcome{Content: result.Content, ModelID: nextID, Streamed: result.Streamed}, nil
		}
		if errors.As(err, &pe) && !pe.Retryable() {
			return Outcome{}, err
		}
	}

	log.Errorf("fallback exhausted for %s, original failure: %v", desc.ID, firstErr)
	return Outcome{
		Content:  DegradedResponse,
		ModelID:  desc.ID,
		Degraded: true,
		ErrorTag: string(provider.KindExhaustedFallback),
	}, nil
}

func (f *Controller) attempt(ctx context.Context, desc catalog.ModelDescriptor, build BuildFunc, onChunk func(string)) (executor.Result, error) {
	req, err := build(desc)
	if err != nil {
		return executor.Result{}, err
	}
	return f.exec.Dispatch(ctx, desc, req, onChunk)
}
