// Package parser converts raw connector payloads into canonical metric
// candidates. Each source type has its own parser; the registry fails closed
// on unknown types so a misconfigured connector surfaces as a dead-lettered
// item instead of silently vanishing.
package parser

import (
	"fmt"
	"time"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// Parser turns one raw item into zero or more canonical metric candidates.
// Parsers are structural only; candidates still go through validation.
type Parser interface {
	Parse(raw api.RawMetricData, orgID string, ingestedAt time.Time) ([]api.CanonicalMetric, error)
}

// Registry maps source types to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// DefaultRegistry returns a registry with the built-in connector parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("webhook", &WebhookParser{})
	r.Register("csv", &CSVParser{})
	return r
}

// Register binds a parser to a source type.
func (r *Registry) Register(sourceType string, p Parser) {
	r.parsers[sourceType] = p
}

// Parse dispatches to the parser for the item's source type.
func (r *Registry) Parse(raw api.RawMetricData, orgID string, ingestedAt time.Time) ([]api.CanonicalMetric, error) {
	p, ok := r.parsers[raw.SourceType]
	if !ok {
		return nil, fmt.Errorf("no parser registered for source type %q", raw.SourceType)
	}
	return p.Parse(raw, orgID, ingestedAt)
}
