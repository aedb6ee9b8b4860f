package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TriggerType is how a scenario decides a session completed successfully.
type TriggerType string

const (
	TriggerKeyword TriggerType = "keyword"
	TriggerManual  TriggerType = "manual"
)

// CompletionTrigger is the configured condition that ends a session.
type CompletionTrigger struct {
	Type  TriggerType `json:"type" yaml:"type"`
	Value string      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Match reports whether content satisfies a keyword trigger. Matching is
// case-insensitive substring containment; manual triggers never match.
func (t CompletionTrigger) Match(content string) (bool, string) {
	if t.Type != TriggerKeyword || t.Value == "" {
		return false, ""
	}
	if strings.Contains(strings.ToLower(content), strings.ToLower(t.Value)) {
		return true, t.Value
	}
	return false, ""
}

// Scenario describes the task participants work on.
type Scenario struct {
	Type              string            `json:"type" yaml:"type"`
	Task              string            `json:"task" yaml:"task"`
	DurationSeconds   int               `json:"duration,omitempty" yaml:"duration,omitempty"`
	CompletionTrigger CompletionTrigger `json:"completionTrigger" yaml:"completionTrigger"`
}

// Duration returns the scenario time budget, or zero if unset.
func (s Scenario) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// Role is one configured seat in an experiment team.
type Role struct {
	Name      string          `json:"name" yaml:"name"`
	Type      ParticipantType `json:"type" yaml:"type"`
	Model     string          `json:"model,omitempty" yaml:"model,omitempty"`
	Persona   string          `json:"persona,omitempty" yaml:"persona,omitempty"`
	Knowledge Knowledge       `json:"knowledge,omitempty" yaml:"knowledge,omitempty"`
	Strategy  string          `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Config    map[string]any  `json:"config,omitempty" yaml:"config,omitempty"`
}

// ConditionConfig is a condition variant declared inside an experiment config.
type ConditionConfig struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ExperimentConfig is the parsed YAML configuration of an experiment.
type ExperimentConfig struct {
	ExperimentName string            `json:"experimentName" yaml:"experimentName"`
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`
	Version        int               `json:"version,omitempty" yaml:"version,omitempty"`
	Roles          []Role            `json:"roles" yaml:"roles"`
	Scenario       Scenario          `json:"scenario" yaml:"scenario"`
	Conditions     []ConditionConfig `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// AIRoles returns the configured AI seats in declaration order.
func (c *ExperimentConfig) AIRoles() []Role {
	var roles []Role
	for _, r := range c.Roles {
		if r.Type == ParticipantAI {
			roles = append(roles, r)
		}
	}
	return roles
}

// RoleByName resolves a role by name, case-sensitively. Returns nil when the
// name no longer matches any configured role.
func (c *ExperimentConfig) RoleByName(name string) *Role {
	for i := range c.Roles {
		if c.Roles[i].Name == name {
			return &c.Roles[i]
		}
	}
	return nil
}

// RequiredHumans counts the configured human seats.
func (c *ExperimentConfig) RequiredHumans() int {
	n := 0
	for _, r := range c.Roles {
		if r.Type == ParticipantHuman {
			n++
		}
	}
	return n
}

// ParseExperimentConfig parses and validates an experiment YAML document.
func ParseExperimentConfig(data []byte) (*ExperimentConfig, error) {
	var cfg ExperimentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if cfg.ExperimentName == "" {
		return nil, errors.New("missing required field: experimentName")
	}
	if len(cfg.Roles) == 0 {
		return nil, errors.New("missing required field: roles")
	}
	if cfg.Scenario.Task == "" {
		return nil, errors.New("missing required field: scenario.task")
	}
	for _, r := range cfg.Roles {
		if r.Name == "" {
			return nil, errors.New("role with empty name")
		}
		if r.Type != ParticipantHuman && r.Type != ParticipantAI {
			return nil, fmt.Errorf("role %q has invalid type %q", r.Name, r.Type)
		}
		if r.Type == ParticipantAI && r.Model == "" {
			return nil, fmt.Errorf("AI role %q is missing a model", r.Name)
		}
	}
	switch cfg.Scenario.CompletionTrigger.Type {
	case TriggerKeyword:
		if cfg.Scenario.CompletionTrigger.Value == "" {
			return nil, errors.New("keyword completion trigger needs a value")
		}
	case TriggerManual, "":
	default:
		return nil, fmt.Errorf("unknown completion trigger type %q", cfg.Scenario.CompletionTrigger.Type)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	return &cfg, nil
}

// Experiment is a stored experiment definition.
type Experiment struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	CreatedBy string            `json:"created_by,omitempty"`
	Config    *ExperimentConfig `json:"config"`
	CreatedAt time.Time         `json:"created_at"`
}

// Condition is a named parameter variant of an experiment, reached by
// participants through its unique access code.
type Condition struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	AccessCode   string    `json:"access_code"`
	CreatedAt    time.Time `json:"created_at"`
}
