// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package switchover

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/medswitch/medswitch/internal/catalog"
	"github.com/medswitch/medswitch/internal/compose"
	"github.com/medswitch/medswitch/internal/conversation"
	"github.com/medswitch/medswitch/internal/fallback"
	"github.com/medswitch/medswitch/internal/provider"
)

// State names the coordinator's position in one switch.
type State string

const (
	StateIdle        State = "idle"
	StateSummarizing State = "summarizing"
	StateWarmingUp   State = "warming_up"
	StateCommitted   State = "committed"
	StateFailed      State = "failed"
)

// summaryTokenBudget keeps the context summary short and cheap.
const summaryTokenBudget = 256

// Result reports one switch to the caller.
type Result struct {
	Success            bool   `json:"success"`
	PreviousModel      string `json:"previous_model"`
	CurrentModel       string `json:"current_model"`
	ContextTransferred bool   `json:"context_transferred"`
	Message            string `json:"message"`
	Error              string `json:"error,omitempty"`
}

// Coordinator drives the idle → summarizing → warming_up → committed state
// machine. A failure before commit leaves the previous selection untouched,
// so the reported and persisted selections never diverge.
type Coordinator struct {
	selection     *Selection
	registry      *catalog.Registry
	conversations *conversation.Store
	composer      *compose.Composer
	controller    *fallback.Controller
	summaryModel  string
}

// NewCoordinator wires the coordinator. summaryModel names the fast,
// low-cost model used for context summaries; it must resolve in the catalog
// or switches proceed without context transfer.
func NewCoordinator(sel *Selection, registry *catalog.Registry, conversations *conversation.Store, composer *compose.Composer, controller *fallback.Controller, summaryModel string) *Coordinator {
	return &Coordinator{
		selection:     sel,
		registry:      registry,
		conversations: conversations,
		composer:      composer,
		controller:    controller,
		summaryModel:  summaryModel,
	}
}

// Selection exposes the guarded current-selection cell.
func (c *Coordinator) Selection() *Selection {
	return c.selection
}

// Switch moves the process-wide selection to modelID, transferring recent
// conversational context to the new provider. Summarization and warm-up
// failures degrade (the switch still commits, reporting the transfer as
// failed); only validation and persistence failures abort, leaving the
// previous selection in place.
func (c *Coordinator) Switch(ctx context.Context, modelID, sessionID, reason string) Result {
	previous := c.selection.Current()
	state := StateIdle

	target, ok := c.registry.Get(modelID)
	if !ok {
		return c.fail(previous, modelID, fmt.Sprintf("unknown model id %q", modelID))
	}
	if modelID == previous {
		return Result{
			Success:       true,
			PreviousModel: previous,
			CurrentModel:  modelID,
			Message:       fmt.Sprintf("%s is already the active model", target.Name),
		}
	}

	state = StateSummarizing
	log.Infof("switch %s -> %s (%s): %s", previous, modelID, reason, state)
	summary := c.summarize(ctx, sessionID)

	transferred := false
	if summary != "" {
		state = StateWarmingUp
		log.Debugf("switch %s -> %s: %s", previous, modelID, state)
		transferred = c.warmUp(ctx, target, summary)
	}

	if err := c.selection.commit(modelID); err != nil {
		log.Errorf("switch %s -> %s failed to persist: %v", previous, modelID, err)
		return c.fail(previous, modelID, "could not persist the new selection")
	}
	state = StateCommitted
	log.Infof("switch %s -> %s: %s (context transferred: %t)", previous, modelID, state, transferred)

	return Result{
		Success:            true,
		PreviousModel:      previous,
		CurrentModel:       modelID,
		ContextTransferred: transferred,
		Message:            fmt.Sprintf("Switched to %s", target.Name),
	}
}

func (c *Coordinator) fail(previous, attempted, msg string) Result {
	log.Warnf("switch %s -> %s: %s: %s", previous, attempted, StateFailed, msg)
	return Result{
		Success:       false,
		PreviousModel: previous,
		CurrentModel:  previous,
		Error:         msg,
	}
}

// summarize asks a fast model for a concise clinical summary of the recent
// slice. Any failure degrades to an empty summary rather than blocking the
// switch.
func (c *Coordinator) summarize(ctx context.Context, sessionID string) string {
	slice := c.conversations.Summarize(sessionID)
	if len(slice) == 0 {
		return ""
	}

	summarizer, ok := c.registry.Get(c.summaryModel)
	if !ok {
		log.Warnf("summary model %q not in catalog, skipping context summary", c.summaryModel)
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Summarize the following clinical conversation in at most five sentences. " +
		"Keep symptoms, findings, and any advice already given. Do not add new advice.\n\n")
	for _, m := range slice {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	outcome, err := c.runInternal(ctx, summarizer, sb.String())
	if err != nil {
		log.Warnf("context summary via %s failed, switching without transfer: %v", summarizer.ID, err)
		return ""
	}
	return outcome
}

// warmUp primes the new provider with the summary as an internal message.
// The message never enters history or the caller-visible transcript.
func (c *Coordinator) warmUp(ctx context.Context, target catalog.ModelDescriptor, summary string) bool {
	prompt := "Context from the patient's previous conversation (internal summary, do not repeat verbatim): " + summary
	if _, err := c.runInternal(ctx, target, prompt); err != nil {
		log.Warnf("warm-up of %s failed, committing switch without context transfer: %v", target.ID, err)
		return false
	}
	return true
}

func (c *Coordinator) runInternal(ctx context.Context, desc catalog.ModelDescriptor, message string) (string, error) {
	build := func(d catalog.ModelDescriptor) (provider.Request, error) {
		return c.composer.Build(ctx, d, compose.Input{
			Message:   message,
			MaxTokens: summaryTokenBudget,
		})
	}
	outcome, err := c.controller.Execute(ctx, desc, build, true, nil)
	if err != nil {
		return "", err
	}
	return outcome.Content, nil
}
