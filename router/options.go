// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"github.com/medswitch/medswitch/internal/provider"
	"github.com/medswitch/medswitch/internal/store"
	"github.com/medswitch/medswitch/internal/trace"
)

type options struct {
	adapters      []provider.Adapter
	transcriber   provider.Transcriber
	traceHandlers []trace.Handler
	selection     *store.SelectionStore
	ephemeral     bool
}

// Option configures a Router.
type Option func(*options)

// WithAdapters registers provider adapters, keyed by their family.
func WithAdapters(adapters ...provider.Adapter) Option {
	return func(o *options) {
		o.adapters = append(o.adapters, adapters...)
	}
}

// WithTranscriber sets the audio transcription collaborator.
func WithTranscriber(t provider.Transcriber) Option {
	return func(o *options) {
		o.transcriber = t
	}
}

// WithTraceHandlers attaches observability hooks. Without handlers the
// trace bus is inert and every emit is a no-op.
func WithTraceHandlers(handlers ...trace.Handler) Option {
	return func(o *options) {
		o.traceHandlers = append(o.traceHandlers, handlers...)
	}
}

// WithSelectionStore overrides the default sqlite selection store.
func WithSelectionStore(s *store.SelectionStore) Option {
	return func(o *options) {
		o.selection = s
	}
}

// WithEphemeralSelection keeps the current selection in memory only.
func WithEphemeralSelection() Option {
	return func(o *options) {
		o.ephemeral = true
	}
}
