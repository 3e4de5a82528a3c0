// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package switchover coordinates model switches: it summarizes recent
// context, warms up the newly selected provider, and owns the process-wide
// current-selection cell.
package switchover

import (
	"sync"

	"github.com/medswitch/medswitch/internal/store"
)

// Selection is the single process-wide current-model cell. It is written
// only by the Coordinator; reads are concurrent-safe. The durable record is
// written before the in-memory cell, so the cell never reports a selection
// that failed to persist.
type Selection struct {
	mu      sync.RWMutex
	current string
	store   *store.SelectionStore
}

// NewSelection loads the persisted selection, falling back to defaultID
// when no record exists. The store may be nil for ephemeral deployments.
func NewSelection(st *store.SelectionStore, defaultID string) (*Selection, error) {
	current := defaultID
	if st != nil {
		loaded, err := st.Load(defaultID)
		if err != nil {
			return nil, err
		}
		current = loaded
	}
	return &Selection{current: current, store: st}, nil
}

// Current returns the selected model id.
func (s *Selection) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// commit persists then publishes the new selection. On persistence failure
// the in-memory value is left untouched.
func (s *Selection) commit(modelID string) error {
	if s.store != nil {
		if err := s.store.Save(modelID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.current = modelID
	s.mu.Unlock()
	return nil
}
