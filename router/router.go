// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router is the facade over the provider routing core. It exposes
// the five operations the API layer consumes: listing available models,
// switching the active model, processing a message, comparing models, and
// reading performance counters.
package router

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/medswitch/medswitch/internal/catalog"
	"github.com/medswitch/medswitch/internal/comparison"
	"github.com/medswitch/medswitch/internal/compose"
	"github.com/medswitch/medswitch/internal/config"
	"github.com/medswitch/medswitch/internal/conversation"
	"github.com/medswitch/medswitch/internal/executor"
	"github.com/medswitch/medswitch/internal/fallback"
	"github.com/medswitch/medswitch/internal/logging"
	"github.com/medswitch/medswitch/internal/metrics"
	"github.com/medswitch/medswitch/internal/provider"
	"github.com/medswitch/medswitch/internal/store"
	"github.com/medswitch/medswitch/internal/switchover"
	"github.com/medswitch/medswitch/internal/trace"
)

// Router owns the routing core. Construct it once per process and inject it
// into request handlers; it is safe for concurrent use across sessions.
type Router struct {
	cfg           *config.Config
	registry      *catalog.Registry
	conversations *conversation.Store
	tracker       *metrics.Tracker
	tracer        *trace.Bus
	composer      *compose.Composer
	controller    *fallback.Controller
	coordinator   *switchover.Coordinator
	comparator    *comparison.Engine
	selStore      *store.SelectionStore
}

// ModelSummary is one row of GetAvailableModels.
type ModelSummary struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Capabilities   []string `json:"capabilities"`
	RecommendedFor []string `json:"recommended_for"`
}

// ProcessRequest is one conversational turn.
type ProcessRequest struct {
	Message        string
	ConversationID string
	// Image is an optional raw image payload.
	Image     []byte
	ImageMIME string
	// Audio is an optional raw audio payload.
	Audio []byte
	// ModelOverride bypasses the current selection for this turn.
	ModelOverride string
	// Internal marks warm-up and comparison sub-calls: no history, no
	// persistence, failures re-raised instead of degraded.
	Internal bool
	// OnChunk receives streamed fragments as they arrive; may be nil.
	OnChunk func(string)
}

// ProcessResponse is the caller-visible result of one turn.
type ProcessResponse struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Streamed bool   `json:"streamed"`
	// Degraded marks the safe fallback-exhausted response; ErrorTag then
	// carries the machine-readable failure tag.
	Degraded bool   `json:"degraded,omitempty"`
	ErrorTag string `json:"error_tag,omitempty"`
}

// New assembles the routing core from configuration and options.
func New(cfg *config.Config, opts ...Option) (*Router, error) {
	logging.Setup(cfg.Debug)
	if cfg.LoggingToFile {
		logging.EnableFileLogging(cfg.LogsDir, cfg.LogsMaxTotalSizeMB)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	registry, err := catalog.New(cfg.Models, cfg.PreferenceRules)
	if err != nil {
		return nil, err
	}

	var archive *conversation.Archive
	if cfg.Archive.Enabled {
		path := cfg.Archive.Path
		if path == "" {
			path = filepath.Join(cfg.StateDir, "conversations.log.gz")
		}
		archive, err = conversation.NewArchive(path)
		if err != nil {
			return nil, err
		}
	}
	conversations := conversation.NewStore(conversation.Config{
		MaxConversations:           cfg.Conversation.MaxConversations,
		MaxMessagesPerConversation: cfg.Conversation.MaxMessagesPerConversation,
		TTL:                        cfg.Conversation.TTL(),
		SummaryWindow:              cfg.Conversation.SummaryWindow,
	}, archive)

	selStore := o.selection
	if selStore == nil && !o.ephemeral {
		selStore, err = store.Open(filepath.Join(cfg.StateDir, "selection.db"))
		if err != nil {
			return nil, err
		}
	}
	selection, err := switchover.NewSelection(selStore, cfg.DefaultModel)
	if err != nil {
		return nil, err
	}

	adapters := make(map[string]provider.Adapter, len(o.adapters))
	for _, a := range o.adapters {
		adapters[a.Family()] = a
	}

	tracker := metrics.NewTracker()
	var tracer *trace.Bus
	if cfg.Tracing {
		tracer = trace.NewBus(o.traceHandlers...)
	}
	exec := executor.New(adapters, tracker, tracer, cfg.RequestTimeout(), cfg.Streaming())
	composer := compose.New(conversations, o.transcriber, cfg.Conversation.SummaryWindow)

	chain, err := fallback.NewChain(cfg.Fallback.Chain)
	if err != nil {
		return nil, err
	}
	controller := fallback.NewController(chain, registry, exec, cfg.Fallback.MaxRetries)
	summaryModel := cfg.SummaryModel
	if summaryModel == "" {
		summaryModel = cfg.DefaultModel
	}
	coordinator := switchover.NewCoordinator(selection, registry, conversations, composer, controller, summaryModel)

	r := &Router{
		cfg:           cfg,
		registry:      registry,
		conversations: conversations,
		tracker:       tracker,
		tracer:        tracer,
		composer:      composer,
		controller:    controller,
		coordinator:   coordinator,
		selStore:      selStore,
	}
	r.comparator = comparison.NewEngine(internalRunner{r})
	return r, nil
}

// GetAvailableModels lists catalog entries matching the preferences.
func (r *Router) GetAvailableModels(prefs catalog.Preferences) []ModelSummary {
	descs := r.registry.List(prefs)
	out := make([]ModelSummary, 0, len(descs))
	for _, d := range descs {
		out = append(out, ModelSummary{
			ID:             d.ID,
			Name:           d.Name,
			Capabilities:   d.Capabilities(),
			RecommendedFor: d.Specialties,
		})
	}
	return out
}

// GetCurrentModel returns the process-wide selected model id.
func (r *Router) GetCurrentModel() string {
	return r.coordinator.Selection().Current()
}

// SwitchModel changes the process-wide selection, transferring recent
// context from conversationID to the new provider.
func (r *Router) SwitchModel(ctx context.Context, modelID, conversationID, reason string) switchover.Result {
	r.tracer.Emit(trace.Event{Kind: trace.KindTrace, Name: "switch_model", Model: modelID, SessionID: conversationID})
	return r.coordinator.Switch(ctx, modelID, conversationID, reason)
}

// ProcessMessage runs one turn: touch session, compose, dispatch with
// fallback, persist the exchange, and return the response. Degraded
// responses come back success-shaped with Degraded set; only validation
// failures and internal-call failures return an error.
func (r *Router) ProcessMessage(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	modelID := req.ModelOverride
	if modelID == "" {
		modelID = r.GetCurrentModel()
	}
	desc, ok := r.registry.Get(modelID)
	if !ok {
		return ProcessResponse{}, provider.NewValidationError(modelID,
			"unknown model id; call GetAvailableModels for the valid set")
	}

	requestID := uuid.NewString()
	start := time.Now()
	r.tracer.Emit(trace.Event{
		Kind: trace.KindTrace, RequestID: requestID, Name: "process_message",
		Model: desc.ID, SessionID: req.ConversationID,
	})

	if !req.Internal {
		r.conversations.TouchOrCreate(req.ConversationID)
	}

	build := func(d catalog.ModelDescriptor) (provider.Request, error) {
		return r.composer.Build(ctx, d, compose.Input{
			SessionID:      req.ConversationID,
			Message:        req.Message,
			Image:          req.Image,
			ImageMIME:      req.ImageMIME,
			Audio:          req.Audio,
			IncludeHistory: !req.Internal,
		})
	}

	outcome, err := r.controller.Execute(ctx, desc, build, req.Internal, req.OnChunk)
	if err != nil {
		return ProcessResponse{}, err
	}

	if !req.Internal {
		now := time.Now()
		r.conversations.Append(req.ConversationID,
			conversation.Message{Role: conversation.RoleUser, Content: req.Message, Timestamp: now},
			conversation.Message{Role: conversation.RoleAssistant, Content: outcome.Content, Timestamp: now},
		)
	}

	log.WithField("request_id", requestID).
		Debugf("processed message via %s in %s (streamed=%t degraded=%t)",
			outcome.ModelID, time.Since(start).Round(time.Millisecond), outcome.Streamed, outcome.Degraded)

	return ProcessResponse{
		Content:  outcome.Content,
		Model:    outcome.ModelID,
		Streamed: outcome.Streamed,
		Degraded: outcome.Degraded,
		ErrorTag: outcome.ErrorTag,
	}, nil
}

// CompareModels fans the message out to each model concurrently. Individual
// failures land in their own result slot; the map always has one entry per
// requested model.
func (r *Router) CompareModels(ctx context.Context, message string, modelIDs []string, conversationID string) map[string]comparison.Result {
	r.tracer.Emit(trace.Event{Kind: trace.KindTrace, Name: "compare_models", SessionID: conversationID,
		Data: map[string]any{"models": modelIDs}})
	return r.comparator.Compare(ctx, message, modelIDs, conversationID)
}

// GetPerformance returns the per-model counters.
func (r *Router) GetPerformance() map[string]metrics.Snapshot {
	return r.tracker.Snapshot()
}

// Close releases the trace bus, the selection store, and file logging.
func (r *Router) Close() error {
	r.tracer.Close()
	logging.CloseFileLogging()
	if r.selStore != nil {
		return r.selStore.Close()
	}
	return nil
}

// internalRunner adapts the router to the comparison engine's Runner.
type internalRunner struct {
	r *Router
}

func (ir internalRunner) RunInternal(ctx context.Context, modelID, sessionID, message string) (string, error) {
	resp, err := ir.r.ProcessMessage(ctx, ProcessRequest{
		Message:        message,
		ConversationID: sessionID,
		ModelOverride:  modelID,
		Internal:       true,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
