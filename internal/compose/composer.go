// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package compose builds provider-agnostic completion requests from session
// history plus optional image and audio payloads. Composition degrades
// gracefully: a missing capability is described in the prompt rather than
// failing the request.
package compose

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"

	"github.com/medswitch/medswitch/internal/catalog"
	"github.com/medswitch/medswitch/internal/conversation"
	"github.com/medswitch/medswitch/internal/provider"
)

// DefaultSystemPrompt frames every clinical conversation.
const DefaultSystemPrompt = "You are a careful clinical assistant. Answer factually, " +
	"flag uncertainty explicitly, and remind the user to contact a clinician or " +
	"emergency services for anything urgent. Never invent patient data."

// completionReserve keeps headroom in the context window for the reply.
const completionReserve = 1024

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// Input describes one turn to compose.
type Input struct {
	SessionID string
	Message   string
	// Image is a raw image payload; encoded for vision models, described
	// as omitted otherwise.
	Image     []byte
	ImageMIME string
	// Audio is a raw audio payload, substituted by its transcript.
	Audio []byte
	// IncludeHistory appends the trailing stored messages.
	IncludeHistory bool
	// SystemPrompt overrides the default clinical prompt when non-empty.
	SystemPrompt string
	// MaxTokens bounds the completion; 0 means provider default.
	MaxTokens int
}

// Composer assembles provider requests.
type Composer struct {
	store         *conversation.Store
	transcriber   provider.Transcriber
	historyWindow int
}

// New creates a composer. The transcriber may be nil; audio payloads are
// then described as unavailable rather than transcribed.
func New(store *conversation.Store, transcriber provider.Transcriber, historyWindow int) *Composer {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &Composer{store: store, transcriber: transcriber, historyWindow: historyWindow}
}

// Build composes the request for one target model. The system prompt gains
// provider-specific augmentation, history is bounded by both the message
// window and the model's context window, and multimodal payloads are
// embedded or substituted per the model's capabilities.
func (c *Composer) Build(ctx context.Context, desc catalog.ModelDescriptor, in Input) (provider.Request, error) {
	req := provider.Request{
		Model:     desc.RemoteName,
		MaxTokens: in.MaxTokens,
	}

	req.Messages = append(req.Messages, provider.Message{
		Role:    string(conversation.RoleSystem),
		Content: c.systemPrompt(desc, in),
	})

	var history []provider.Message
	if in.IncludeHistory {
		for _, m := range c.store.History(in.SessionID, c.historyWindow) {
			history = append(history, provider.Message{Role: string(m.Role), Content: m.Content})
		}
	}

	current := provider.Message{
		Role:    string(conversation.RoleUser),
		Content: in.Message,
	}

	if len(in.Audio) > 0 {
		transcript, err := c.transcribe(ctx, in.Audio)
		if err != nil {
			return req, err
		}
		if current.Content != "" {
			current.Content += "\n\n"
		}
		current.Content += "[Voice message transcript] " + transcript
	}

	if len(in.Image) > 0 {
		if desc.Vision {
			current.ImageB64 = base64.StdEncoding.EncodeToString(in.Image)
			current.ImageMIME = in.ImageMIME
			if current.ImageMIME == "" {
				current.ImageMIME = "image/jpeg"
			}
		} else {
			current.Content += fmt.Sprintf(
				"\n\n[An image was attached, but %s cannot view images. Ask the user to describe the visible findings in text.]",
				desc.Name)
			log.Debugf("image omitted for non-vision model %s", desc.ID)
		}
	}

	history = c.fitContextWindow(desc, req.Messages[0], history, current)
	req.Messages = append(req.Messages, history...)
	req.Messages = append(req.Messages, current)
	return req, nil
}

func (c *Composer) systemPrompt(desc catalog.ModelDescriptor, in Input) string {
	prompt := in.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	var aug []string
	if desc.Vision {
		aug = append(aug, "You can analyze attached medical images when provided.")
	}
	if len(desc.Specialties) > 0 {
		aug = append(aug, "You are particularly strong in: "+strings.Join(desc.Specialties, ", ")+".")
	}
	if len(aug) > 0 {
		prompt += " " + strings.Join(aug, " ")
	}
	return prompt
}

func (c *Composer) transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.transcriber == nil {
		log.Warn("audio payload received but no transcriber is configured")
		return "(audio attached, transcription unavailable)", nil
	}
	transcript, err := c.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("compose: transcribe audio: %w", err)
	}
	return transcript, nil
}

// fitContextWindow drops history oldest-first until the whole prompt fits
// the model's context window, leaving reserve room for the completion.
func (c *Composer) fitContextWindow(desc catalog.ModelDescriptor, system provider.Message, history []provider.Message, current provider.Message) []provider.Message {
	if desc.ContextWindow <= 0 {
		return history
	}
	budget := desc.ContextWindow - completionReserve
	if budget <= 0 {
		budget = desc.ContextWindow
	}

	fixed := CountTokens(system.Content) + CountTokens(current.Content)
	for len(history) > 0 {
		total := fixed
		for _, m := range history {
			total += CountTokens(m.Content)
		}
		if total <= budget {
			break
		}
		history = history[1:]
	}
	return history
}

// CountTokens counts tokens with the cl100k encoding, falling back to a
// bytes/4 heuristic when the encoding is unavailable.
func CountTokens(text string) int {
	codecOnce.Do(func() {
		var err error
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("cl100k tokenizer unavailable, using heuristic counts: %v", err)
			codec = nil
		}
	})
	if codec != nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}
