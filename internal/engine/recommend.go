package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// RuleEngine tailors capacity recommendations with operator-supplied rules.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Description     string    `yaml:"description"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. Empty fields match anything.
type RuleMatch struct {
	Component      string   `yaml:"component"`
	Action         string   `yaml:"action"`
	Priority       string   `yaml:"priority"`
	MetricContains []string `yaml:"metric_contains"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty, returns nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("loaded capacity rules", slog.Int("rules", len(cfg.Rules)), slog.String("path", path))
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Apply rewrites recommendation descriptions with the first matching rule that sets
// one and returns the extra recommendations of every matching rule. metrics are the
// names of the component's utilization series.
func (e *RuleEngine) Apply(result models.CapacityResult, metrics []string) (models.CapacityResult, []string) {
	if e == nil {
		return result, nil
	}

	recs := append([]models.Recommendation(nil), result.Recommendations...)
	extra := make([]string, 0)
	for i, rec := range recs {
		described := false
		for _, rule := range e.rules {
			if !rule.matches(result.Component, rec, metrics) {
				continue
			}
			if !described && rule.Description != "" {
				recs[i].Description = rule.Description
				described = true
				e.logger.Debug("capacity rule applied", slog.String("rule", rule.ID), slog.String("component", result.Component))
			}
			extra = appendUnique(extra, rule.Recommendations...)
		}
	}
	result.Recommendations = recs
	return result, extra
}

func (r Rule) matches(component string, rec models.Recommendation, metrics []string) bool {
	if r.Match.Component != "" && !strings.EqualFold(r.Match.Component, component) {
		return false
	}
	if r.Match.Action != "" && !strings.EqualFold(r.Match.Action, rec.Action) {
		return false
	}
	if r.Match.Priority != "" && !strings.EqualFold(r.Match.Priority, rec.Priority) {
		return false
	}
	return metricsContain(r.Match.MetricContains, metrics)
}

func metricsContain(keywords []string, metrics []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, metric := range metrics {
		name := strings.ToLower(metric)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
