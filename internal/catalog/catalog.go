// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package catalog provides the immutable, process-wide registry of provider
// descriptors and a preference-based filter over them. Descriptors are loaded
// once at startup and never mutated; credential presence per provider family
// is checked once at startup and cached.
package catalog

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"

	"github.com/medswitch/medswitch/internal/config"
)

// PrivacyLevel classifies where a model's inference runs.
type PrivacyLevel string

const (
	PrivacyCloud     PrivacyLevel = "cloud"
	PrivacyLocal     PrivacyLevel = "local"
	PrivacyEncrypted PrivacyLevel = "encrypted"
)

// ModelDescriptor describes one provider model. Immutable after load.
type ModelDescriptor struct {
	ID              string
	Name            string
	Family          string
	ContextWindow   int
	Vision          bool
	FunctionCalling bool
	Streaming       bool
	Privacy         PrivacyLevel
	CostPer1K       float64
	Speed           int
	Accuracy        int
	Languages       []string
	Specialties     []string
	RemoteName      string
	BaseURL         string
	APIKeyEnv       string
}

// SupportsLanguage reports whether the descriptor lists the language code.
// An empty language list means no declared restriction.
func (d ModelDescriptor) SupportsLanguage(code string) bool {
	if len(d.Languages) == 0 {
		return true
	}
	for _, l := range d.Languages {
		if l == code {
			return true
		}
	}
	return false
}

// Capabilities returns the modality flags as display strings.
func (d ModelDescriptor) Capabilities() []string {
	caps := []string{"text"}
	if d.Vision {
		caps = append(caps, "vision")
	}
	if d.FunctionCalling {
		caps = append(caps, "function-calling")
	}
	if d.Streaming {
		caps = append(caps, "streaming")
	}
	return caps
}

// Preferences filter the catalog listing.
type Preferences struct {
	// LocalOnly restricts results to models with local privacy.
	LocalOnly bool
	// RequireVision restricts results to vision-capable models.
	RequireVision bool
	// Language restricts results to models supporting the language code.
	Language string
	// MaxCostPer1K excludes models above the cost threshold; 0 disables it.
	MaxCostPer1K float64
}

// ruleEnv is the expression environment one preference rule sees.
type ruleEnv struct {
	ID            string
	Family        string
	Privacy       string
	Vision        bool
	Streaming     bool
	Speed         int
	Accuracy      int
	Cost          float64
	ContextWindow int
}

type compiledRule struct {
	name    string
	program *vm.Program
}

// Registry is the immutable catalog with cached credential presence.
type Registry struct {
	descriptors []ModelDescriptor
	byID        map[string]ModelDescriptor
	credentials map[string]bool
	rules       []compiledRule
}

// New builds the registry from configuration. Credential presence per family
// is resolved once here: a family is credentialed when at least one of its
// models either requires no key or has its key environment variable set.
// Preference rules are compiled once; an invalid rule fails the load.
func New(specs []config.ModelSpec, rules []config.PreferenceRule) (*Registry, error) {
	r := &Registry{
		byID:        make(map[string]ModelDescriptor, len(specs)),
		credentials: make(map[string]bool),
	}

	for _, s := range specs {
		privacy := PrivacyLevel(s.Privacy)
		if privacy == "" {
			privacy = PrivacyCloud
		}
		d := ModelDescriptor{
			ID:              s.ID,
			Name:            s.Name,
			Family:          s.Family,
			ContextWindow:   s.ContextWindow,
			Vision:          s.Vision,
			FunctionCalling: s.FunctionCalling,
			Streaming:       s.Streaming,
			Privacy:         privacy,
			CostPer1K:       s.CostPer1K,
			Speed:           s.Speed,
			Accuracy:        s.Accuracy,
			Languages:       append([]string(nil), s.Languages...),
			Specialties:     append([]string(nil), s.Specialties...),
			RemoteName:      s.RemoteName,
			BaseURL:         s.BaseURL,
			APIKeyEnv:       s.APIKeyEnv,
		}
		if d.RemoteName == "" {
			d.RemoteName = d.ID
		}
		r.descriptors = append(r.descriptors, d)
		r.byID[d.ID] = d

		if s.APIKeyEnv == "" || os.Getenv(s.APIKeyEnv) != "" {
			r.credentials[d.Family] = true
		} else if _, seen := r.credentials[d.Family]; !seen {
			r.credentials[d.Family] = false
		}
	}

	for _, rule := range rules {
		program, err := expr.Compile(rule.When, expr.Env(ruleEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("catalog: compile preference rule %q: %w", rule.Name, err)
		}
		r.rules = append(r.rules, compiledRule{name: rule.Name, program: program})
	}

	log.Infof("catalog loaded: %d models, %d credentialed families, %d preference rules",
		len(r.descriptors), countTrue(r.credentials), len(r.rules))
	return r, nil
}

func countTrue(m map[string]bool) int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Get returns the descriptor for a model id.
func (r *Registry) Get(id string) (ModelDescriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// HasCredentials reports the cached credential presence for a family.
func (r *Registry) HasCredentials(family string) bool {
	return r.credentials[family]
}

// List returns descriptors matching the preferences and every compiled
// preference rule, excluding families without credentials. An empty result
// is valid; List never fails.
func (r *Registry) List(prefs Preferences) []ModelDescriptor {
	var out []ModelDescriptor
	for _, d := range r.descriptors {
		if !r.credentials[d.Family] {
			continue
		}
		if prefs.LocalOnly && d.Privacy != PrivacyLocal {
			continue
		}
		if prefs.RequireVision && !d.Vision {
			continue
		}
		if prefs.Language != "" && !d.SupportsLanguage(prefs.Language) {
			continue
		}
		if prefs.MaxCostPer1K > 0 && d.CostPer1K > prefs.MaxCostPer1K {
			continue
		}
		if !r.passesRules(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (r *Registry) passesRules(d ModelDescriptor) bool {
	if len(r.rules) == 0 {
		return true
	}
	env := ruleEnv{
		ID:            d.ID,
		Family:        d.Family,
		Privacy:       string(d.Privacy),
		Vision:        d.Vision,
		Streaming:     d.Streaming,
		Speed:         d.Speed,
		Accuracy:      d.Accuracy,
		Cost:          d.CostPer1K,
		ContextWindow: d.ContextWindow,
	}
	for _, rule := range r.rules {
		out, err := expr.Run(rule.program, env)
		if err != nil {
			log.Warnf("catalog: preference rule %q failed: %v", rule.name, err)
			return false
		}
		if pass, ok := out.(bool); !ok || !pass {
			return false
		}
	}
	return true
}
