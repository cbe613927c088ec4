package drafts

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/pkg/versioning"
)

// Changes overrides fields of the active version when cutting a draft.
// Nil fields are carried over unchanged; at least one must be set.
type Changes struct {
	Matching           *patterns.Matching           `json:"matching,omitempty" validate:"required_without_all=ExtractionTemplate Priority"`
	ExtractionTemplate *patterns.ExtractionTemplate `json:"extraction_template,omitempty"`
	Priority           *int                         `json:"priority,omitempty"`
	Reason             string                       `json:"reason,omitempty" validate:"max=1000"`
	PerformedBy        *string                      `json:"performed_by,omitempty" validate:"omitempty,min=1"`
}

func (c Changes) apply(p *patterns.Pattern) {
	if c.Matching != nil {
		p.Matching = *c.Matching
	}
	if c.ExtractionTemplate != nil {
		p.ExtractionTemplate = *c.ExtractionTemplate
	}
	if c.Priority != nil {
		p.Priority = *c.Priority
	}
}

// data is the event_data form of the overrides.
func (c Changes) data() map[string]any {
	out := make(map[string]any)
	if c.Matching != nil {
		out["matching"] = *c.Matching
	}
	if c.ExtractionTemplate != nil {
		out["extraction_template"] = *c.ExtractionTemplate
	}
	if c.Priority != nil {
		out["priority"] = *c.Priority
	}
	return out
}

// SeedCommand describes the first version of a new pattern.
type SeedCommand struct {
	PatternID          string                      `json:"pattern_id" validate:"required,max=128"`
	Version            string                      `json:"pattern_version,omitempty"`
	Priority           int                         `json:"priority"`
	DisplayName        string                      `json:"display_name" validate:"required"`
	Description        string                      `json:"description"`
	Matching           patterns.Matching           `json:"matching"`
	ExtractionTemplate patterns.ExtractionTemplate `json:"extraction_template"`
	Applicability      patterns.Applicability      `json:"applicability"`
	Reason             string                      `json:"reason,omitempty"`
	PerformedBy        *string                     `json:"performed_by,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateRule, patterns.Rule{})
	return v
}

// validateRule rejects regex rules that do not compile.
func validateRule(sl validator.StructLevel) {
	rule := sl.Current().Interface().(patterns.Rule)
	if rule.Kind != "regex" || rule.Expression == "" {
		return
	}
	if _, err := regexp.Compile(rule.Expression); err != nil {
		sl.ReportError(rule.Expression, "Expression", "expression", "regex", "")
	}
}

func (c Changes) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidChanges, describe(err))
	}
	return nil
}

func (s *SeedCommand) finalize() error {
	if s.Version == "" {
		s.Version = versioning.Initial
	}
	if !versioning.Valid(s.Version) {
		return fmt.Errorf("%w: pattern_version %q is not MAJOR.MINOR.PATCH", ErrInvalidSeed, s.Version)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSeed, describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
}
