// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package adapters

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/medswitch/medswitch/internal/provider"
)

// Ollama talks to a local Ollama daemon's /api/chat endpoint. Local models
// need no credentials; streaming uses Ollama's JSON-lines framing.
type Ollama struct {
	baseURL string
	client  *http.Client
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

// NewOllama binds the adapter to a daemon address; client may be nil.
func NewOllama(baseURL string, client *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Ollama{baseURL: baseURL, client: client}
}

// Family implements provider.Adapter.
func (a *Ollama) Family() string { return "ollama" }

// Complete implements the single-shot path.
func (a *Ollama) Complete(ctx context.Context, req provider.Request) (string, error) {
	resp, err := a.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(payload, "message.content").String(), nil
}

// Stream implements the incremental path over JSON lines.
func (a *Ollama) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	resp, err := a.post(ctx, req, true)
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
			line := scanner.Bytes()
			content := gjson.GetBytes(line, "message.content").String()
			if content != "" {
				select {
				case ch <- provider.Chunk{Content: content}:
				case <-ctx.Done():
					return
				}
			}
			if gjson.GetBytes(line, "done").Bool() {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			ch <- provider.Chunk{Err: err}
		}
	}()
	return ch, nil
}

func (a *Ollama) post(ctx context.Context, req provider.Request, stream bool) (*http.Response, error) {
	or := ollamaRequest{Model: req.Model, Stream: stream}
	for _, m := range req.Messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		if m.ImageB64 != "" {
			om.Images = []string{m.ImageB64}
		}
		or.Messages = append(or.Messages, om)
	}
	body, err := json.Marshal(or)
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(a.baseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &provider.StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}
