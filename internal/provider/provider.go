// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider defines the contract between the routing core and the
// per-family provider adapters, plus the shared error taxonomy for
// classifying adapter failures.
package provider

import "context"

// Message is one wire-level chat message handed to an adapter.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ImageB64 carries a base64-encoded image for vision-capable models.
	// Adapters for non-vision models must ignore it.
	ImageB64 string `json:"image_b64,omitempty"`
	// ImageMIME is the media type of ImageB64, e.g. "image/png".
	ImageMIME string `json:"image_mime,omitempty"`
}

// Request is a composed, provider-agnostic completion request.
type Request struct {
	// Model is the upstream model identifier for the target provider.
	Model string `json:"model"`
	// Messages is the full prompt: system prompt, history, current turn.
	Messages []Message `json:"messages"`
	// MaxTokens bounds the completion length; 0 means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// Temperature controls sampling; 0 means provider default.
	Temperature float64 `json:"temperature,omitempty"`
}

// Chunk is one fragment of a streamed completion. A non-nil Err terminates
// the stream; no further chunks follow it.
type Chunk struct {
	Content string
	Err     error
}

// Adapter is the single asynchronous interface every provider family
// implements. All calls honor ctx cancellation and deadlines.
type Adapter interface {
	// Family identifies the provider family this adapter serves.
	Family() string

	// Complete performs a single-shot completion.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream performs an incremental completion. The returned channel is a
	// lazy, finite, non-restartable sequence of fragments; the adapter
	// closes it when the stream ends, errors, or ctx is cancelled.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Transcriber converts an audio payload to text. Implemented by an excluded
// collaborator; the composer consumes it during audio composition.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}
