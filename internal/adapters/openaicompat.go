// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package adapters ships the concrete provider adapters the routing core
// dispatches to: an OpenAI-compatible HTTP adapter, a local Ollama adapter,
// an HTTP transcriber client, and a scripted in-memory adapter for tests
// and examples.
package adapters

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/medswitch/medswitch/internal/provider"
)

// OpenAICompat talks to any OpenAI-compatible chat-completions endpoint.
type OpenAICompat struct {
	family    string
	baseURL   string
	apiKeyEnv string
	client    *http.Client
}

// NewOpenAICompat binds an adapter to a provider family and endpoint. The
// API key is read from apiKeyEnv at call time; client may be nil.
func NewOpenAICompat(family, baseURL, apiKeyEnv string, client *http.Client) *OpenAICompat {
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAICompat{family: family, baseURL: baseURL, apiKeyEnv: apiKeyEnv, client: client}
}

// Family implements provider.Adapter.
func (a *OpenAICompat) Family() string { return a.family }

// Complete implements the single-shot path.
func (a *OpenAICompat) Complete(ctx context.Context, req provider.Request) (string, error) {
	body, err := a.encode(req, false)
	if err != nil {
		return "", err
	}
	resp, err := a.post(ctx, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	content := gjson.GetBytes(payload, "choices.0.message.content")
	if !content.Exists() {
		return "", &provider.StatusError{Code: resp.StatusCode, Body: "response missing choices[0].message.content"}
	}
	return content.String(), nil
}

// Stream implements the incremental path over server-sent events. The
// returned channel closes on stream end, error, or ctx cancellation; the
// response body is always released.
func (a *OpenAICompat) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	body, err := a.encode(req, true)
	if err != nil {
		return nil, err
	}
	resp, err := a.post(ctx, body)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Chunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			delta := gjson.Get(data, "choices.0.delta.content")
			if !delta.Exists() || delta.String() == "" {
				continue
			}
			select {
			case ch <- provider.Chunk{Content: delta.String()}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			ch <- provider.Chunk{Err: err}
		}
	}()
	return ch, nil
}

// encode builds the chat-completions body with sjson so optional fields are
// only present when set.
func (a *OpenAICompat) encode(req provider.Request, stream bool) ([]byte, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", req.Model)
	body, _ = sjson.SetBytes(body, "stream", stream)
	if req.MaxTokens > 0 {
		body, _ = sjson.SetBytes(body, "max_tokens", req.MaxTokens)
	}
	if req.Temperature > 0 {
		body, _ = sjson.SetBytes(body, "temperature", req.Temperature)
	}
	for i, m := range req.Messages {
		prefix := fmt.Sprintf("messages.%d", i)
		body, _ = sjson.SetBytes(body, prefix+".role", m.Role)
		if m.ImageB64 == "" {
			body, _ = sjson.SetBytes(body, prefix+".content", m.Content)
			continue
		}
		// Vision payloads use the content-parts form.
		body, _ = sjson.SetBytes(body, prefix+".content.0.type", "text")
		body, _ = sjson.SetBytes(body, prefix+".content.0.text", m.Content)
		body, _ = sjson.SetBytes(body, prefix+".content.1.type", "image_url")
		body, _ = sjson.SetBytes(body, prefix+".content.1.image_url.url",
			fmt.Sprintf("data:%s;base64,%s", m.ImageMIME, m.ImageB64))
	}
	return body, nil
}

func (a *OpenAICompat) post(ctx context.Context, body []byte) (*http.Response, error) {
	url := strings.TrimSuffix(a.baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKeyEnv != "" {
		if key := os.Getenv(a.apiKeyEnv); key != "" {
			httpReq.Header.Set("Authorization", "Bearer "+key)
		}
	}
	httpReq.Header.Set("User-Agent", "medswitch")

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		log.Debugf("%s upstream error after %s: status %d", a.family, time.Since(start).Round(time.Millisecond), resp.StatusCode)
		return nil, &provider.StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}
