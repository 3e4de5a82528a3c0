// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package adapters

import (
	"context"
	"strings"
	"sync"

	"github.com/medswitch/medswitch/internal/provider"
)

// Scripted is an in-memory adapter with programmable responses and
// failures. Tests and the example program use it in place of a network
// provider.
type Scripted struct {
	family string

	mu        sync.Mutex
	response  string
	chunks    []string
	err       error
	failFirst int
	calls     int
}

// NewScripted creates an adapter for a family that echoes the last user
// message until programmed otherwise.
func NewScripted(family string) *Scripted {
	return &Scripted{family: family}
}

// WithResponse fixes the completion text.
func (a *Scripted) WithResponse(text string) *Scripted {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.response = text
	return a
}

// WithChunks fixes the streamed fragments; the non-streaming path joins them.
func (a *Scripted) WithChunks(chunks ...string) *Scripted {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks = chunks
	return a
}

// WithError makes every call fail with err.
func (a *Scripted) WithError(err error) *Scripted {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	return a
}

// FailFirst makes the next n calls fail with err, then succeed.
func (a *Scripted) FailFirst(n int, err error) *Scripted {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failFirst = n
	a.err = err
	return a
}

// Calls reports how many completions were attempted.
func (a *Scripted) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Family implements provider.Adapter.
func (a *Scripted) Family() string { return a.family }

func (a *Scripted) next(req provider.Request) (string, []string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		if a.failFirst == 0 {
			return "", nil, a.err
		}
		if a.calls <= a.failFirst {
			return "", nil, a.err
		}
	}
	if len(a.chunks) > 0 {
		return strings.Join(a.chunks, ""), a.chunks, nil
	}
	if a.response != "" {
		return a.response, []string{a.response}, nil
	}
	last := ""
	for _, m := range req.Messages {
		if m.Role == "user" {
			last = m.Content
		}
	}
	echo := "echo: " + last
	return echo, []string{echo}, nil
}

// Complete implements provider.Adapter.
func (a *Scripted) Complete(ctx context.Context, req provider.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, _, err := a.next(req)
	return content, err
}

// Stream implements provider.Adapter.
func (a *Scripted) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, chunks, err := a.next(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Chunk)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- provider.Chunk{Content: c}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
