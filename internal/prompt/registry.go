// Package prompt holds the prompt templates for every LLM role in the
// pipeline. Templates are keyed by role with optional per-tier variants
// and can be overridden from a YAML file, so prompt tuning never means a
// rebuild. Callers receive templates explicitly; nothing here is ambient
// state.
package prompt

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// Roles the registry knows about.
const (
	RoleSurvey         = "survey"
	RoleMap            = "map"
	RoleReduce         = "reduce"
	RolePlanBehavioral = "plan-behavioral"
	RolePlanStructural = "plan-structural"
	RolePlanDedup      = "plan-dedup"
	RoleDraft          = "draft"
	RoleFix            = "fix"
	RoleAudit          = "audit"
)

// Template is one role's prompt pair. User is a fmt format string; each
// role's argument order is documented on its default in templates.go.
type Template struct {
	// System is the system prompt.
	System string `yaml:"system"`
	// User is the user prompt format string.
	User string `yaml:"user"`
}

// Registry resolves (role, tier) to a template. Lookup tries the
// tier-specific key ("map/fast") first and falls back to the bare role.
type Registry struct {
	templates map[string]Template
}

// NewRegistry returns a registry holding the built-in defaults.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]Template)}
	for key, tmpl := range defaultTemplates() {
		r.templates[key] = tmpl
	}
	return r
}

// Get resolves a role and tier to a template.
func (r *Registry) Get(role string, tier models.ModelTier) (Template, error) {
	if tmpl, ok := r.templates[role+"/"+string(tier)]; ok {
		return tmpl, nil
	}
	if tmpl, ok := r.templates[role]; ok {
		return tmpl, nil
	}
	return Template{}, fmt.Errorf("no prompt template for role %q", role)
}

// LoadOverrides merges templates from a YAML file over the defaults.
// Keys are roles, optionally tier-qualified ("map/fast"). Empty fields in
// an override keep the default's value for that field.
func (r *Registry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading prompt overrides: %w", err)
	}

	overrides := make(map[string]Template)
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing prompt overrides %s: %w", path, err)
	}

	for key, tmpl := range overrides {
		base := r.templates[key]
		if tmpl.System != "" {
			base.System = tmpl.System
		}
		if tmpl.User != "" {
			base.User = tmpl.User
		}
		r.templates[key] = base
	}
	return nil
}
