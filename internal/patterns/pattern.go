// Package patterns owns the versioned obligation pattern rows. Every write
// runs inside Store.Update, which serializes writers per pattern_id and
// commits row changes together with the lifecycle events describing them.
package patterns

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Rule is one text-matching rule. Evaluation happens in the live matching
// path; this package only stores rules.
type Rule struct {
	Kind          string `json:"kind" validate:"required,oneof=regex keyword phrase"`
	Expression    string `json:"expression" validate:"required"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
}

// Matching is the primary rule plus optional variants and keyword lists.
type Matching struct {
	Primary          Rule     `json:"primary" validate:"required"`
	Variants         []Rule   `json:"variants,omitempty" validate:"omitempty,dive"`
	SemanticKeywords []string `json:"semantic_keywords,omitempty" validate:"omitempty,dive,required"`
	NegativeKeywords []string `json:"negative_keywords,omitempty" validate:"omitempty,dive,required"`
}

// ExtractionTemplate lists the structured fields a match populates.
type ExtractionTemplate struct {
	Category      string   `json:"category" validate:"required"`
	Frequency     string   `json:"frequency,omitempty"`
	DeadlineRule  string   `json:"deadline_rule,omitempty"`
	IsSubjective  bool     `json:"is_subjective"`
	EvidenceTypes []string `json:"evidence_types,omitempty"`
}

// Applicability scopes a pattern. An empty list does not restrict.
type Applicability struct {
	Modules       []string `json:"modules,omitempty"`
	Regulators    []string `json:"regulators,omitempty"`
	DocumentTypes []string `json:"document_types,omitempty"`
}

// Scope identifies the document a matching request runs against.
// Empty fields match any applicability.
type Scope struct {
	Module       string
	Regulator    string
	DocumentType string
}

// Matches reports whether a is eligible for s.
func (a Applicability) Matches(s Scope) bool {
	return allows(a.Modules, s.Module) &&
		allows(a.Regulators, s.Regulator) &&
		allows(a.DocumentTypes, s.DocumentType)
}

func allows(list []string, v string) bool {
	return len(list) == 0 || v == "" || slices.Contains(list, v)
}

// Performance is the usage summary maintained by the live matching path.
// This package reads it and never increments it.
type Performance struct {
	UsageCount         int64      `json:"usage_count"`
	SuccessCount       int64      `json:"success_count"`
	FalsePositiveCount int64      `json:"false_positive_count"`
	FalseNegativeCount int64      `json:"false_negative_count"`
	SuccessRate        float64    `json:"success_rate"`
	UserOverrideCount  int64      `json:"user_override_count"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
}

// OverrideRate is user overrides as a percentage of usage.
func (p Performance) OverrideRate() float64 {
	if p.UsageCount == 0 {
		return 0
	}
	return float64(p.UserOverrideCount) / float64(p.UsageCount) * 100
}

// Pattern is one version row of a pattern. PatternID is shared by every
// version; ID identifies the row.
type Pattern struct {
	ID                  uuid.UUID          `json:"id"`
	PatternID           string             `json:"pattern_id"`
	Version             string             `json:"pattern_version"`
	Priority            int                `json:"priority"`
	DisplayName         string             `json:"display_name"`
	Description         string             `json:"description"`
	Matching            Matching           `json:"matching"`
	ExtractionTemplate  ExtractionTemplate `json:"extraction_template"`
	Applicability       Applicability      `json:"applicability"`
	Performance         Performance        `json:"performance"`
	IsActive            bool               `json:"is_active"`
	DeprecatedAt        *time.Time         `json:"deprecated_at"`
	DeprecatedReason    *string            `json:"deprecated_reason"`
	ReplacedByPatternID *string            `json:"replaced_by_pattern_id"`
	BaseVersion         *string            `json:"base_version"`
	Notes               string             `json:"notes"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// Deprecation describes why a row stopped being active.
type Deprecation struct {
	At         time.Time
	Reason     string
	ReplacedBy *string
}

// Clone returns a copy that shares no slices or pointers with p.
func (p Pattern) Clone() Pattern {
	c := p
	c.Matching.Variants = slices.Clone(p.Matching.Variants)
	c.Matching.SemanticKeywords = slices.Clone(p.Matching.SemanticKeywords)
	c.Matching.NegativeKeywords = slices.Clone(p.Matching.NegativeKeywords)
	c.ExtractionTemplate.EvidenceTypes = slices.Clone(p.ExtractionTemplate.EvidenceTypes)
	c.Applicability.Modules = slices.Clone(p.Applicability.Modules)
	c.Applicability.Regulators = slices.Clone(p.Applicability.Regulators)
	c.Applicability.DocumentTypes = slices.Clone(p.Applicability.DocumentTypes)
	c.Performance.LastUsedAt = clonePtr(p.Performance.LastUsedAt)
	c.DeprecatedAt = clonePtr(p.DeprecatedAt)
	c.DeprecatedReason = clonePtr(p.DeprecatedReason)
	c.ReplacedByPatternID = clonePtr(p.ReplacedByPatternID)
	c.BaseVersion = clonePtr(p.BaseVersion)
	return c
}

func (p *Pattern) deprecate(d Deprecation) {
	at := d.At.UTC()
	reason := d.Reason
	p.IsActive = false
	p.DeprecatedAt = &at
	p.DeprecatedReason = &reason
	p.ReplacedByPatternID = clonePtr(d.ReplacedBy)
	p.UpdatedAt = at
}

func (p *Pattern) activate(notes string, now time.Time) {
	p.IsActive = true
	p.DeprecatedAt = nil
	p.DeprecatedReason = nil
	p.ReplacedByPatternID = nil
	if notes != "" {
		p.Notes = notes
	}
	p.UpdatedAt = now.UTC()
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
