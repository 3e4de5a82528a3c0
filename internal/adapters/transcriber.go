// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package adapters

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/medswitch/medswitch/internal/provider"
)

// HTTPTranscriber posts audio to a whisper-style transcription endpoint.
type HTTPTranscriber struct {
	baseURL   string
	model     string
	apiKeyEnv string
	client    *http.Client
}

// NewHTTPTranscriber binds the client to an endpoint; client may be nil.
func NewHTTPTranscriber(baseURL, model, apiKeyEnv string, client *http.Client) *HTTPTranscriber {
	if model == "" {
		model = "whisper-1"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTranscriber{baseURL: baseURL, model: model, apiKeyEnv: apiKeyEnv, client: client}
}

// Transcribe implements provider.Transcriber.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", t.model); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	url := strings.TrimSuffix(t.baseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if t.apiKeyEnv != "" {
		if key := os.Getenv(t.apiKeyEnv); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &provider.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return gjson.GetBytes(body, "text").String(), nil
}
