// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package comparison fans a single message out to several models
// concurrently. Each sub-call is an internal, non-persisted request whose
// failure is contained in its own result slot; one bad provider never
// affects the others.
package comparison

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Runner executes one internal completion for a model. The router's
// internal process-message path implements this.
type Runner interface {
	RunInternal(ctx context.Context, modelID, sessionID, message string) (string, error)
}

// Result is one model's slot in a comparison.
type Result struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
	Success  bool   `json:"success"`
}

// Engine performs the fan-out.
type Engine struct {
	runner Runner
}

// NewEngine wires the engine to its runner.
func NewEngine(runner Runner) *Engine {
	return &Engine{runner: runner}
}

// Compare issues one internal call per model concurrently and collects one
// slot per model. Sub-calls share the caller's ctx and are independently
// cancellable through it; a panic inside one sub-call is captured in its
// slot like any other failure.
func (e *Engine) Compare(ctx context.Context, message string, modelIDs []string, sessionID string) map[string]Result {
	results := make(map[string]Result, len(modelIDs))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, id := range modelIDs {
		wg.Add(1)
		go func(modelID string) {
			defer wg.Done()
			res := e.runOne(ctx, modelID, sessionID, message)
			mu.Lock()
			results[modelID] = res
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}

func (e *Engine) runOne(ctx context.Context, modelID, sessionID, message string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("comparison sub-call for %s panicked: %v", modelID, r)
			res = Result{Error: fmt.Sprintf("internal failure: %v", r), Success: false}
		}
	}()

	content, err := e.runner.RunInternal(ctx, modelID, sessionID, message)
	if err != nil {
		return Result{Error: err.Error(), Success: false}
	}
	return Result{Response: content, Success: true}
}
