package patterns

import (
	"github.com/JaimeStill/tenet/pkg/query"
	"github.com/JaimeStill/tenet/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "patterns", "p").
	Project("id", "ID").
	Project("pattern_id", "PatternID").
	Project("pattern_version", "Version").
	Project("priority", "Priority").
	Project("display_name", "DisplayName").
	Project("description", "Description").
	Project("matching", "Matching").
	Project("extraction_template", "ExtractionTemplate").
	Project("applicability", "Applicability").
	Project("performance", "Performance").
	Project("is_active", "IsActive").
	Project("deprecated_at", "DeprecatedAt").
	Project("deprecated_reason", "DeprecatedReason").
	Project("replaced_by_pattern_id", "ReplacedByPatternID").
	Project("base_version", "BaseVersion").
	Project("notes", "Notes").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

const returning = `id, pattern_id, pattern_version, priority, display_name, description,
	matching, extraction_template, applicability, performance, is_active,
	deprecated_at, deprecated_reason, replaced_by_pattern_id, base_version,
	notes, created_at, updated_at`

var byPatternID = query.SortField{Field: "PatternID"}

var byCreated = []query.SortField{
	{Field: "CreatedAt"},
	{Field: "ID"},
}

func scanPattern(s repository.Scanner) (Pattern, error) {
	var p Pattern
	var matching, template, applicability, performance []byte

	err := s.Scan(
		&p.ID,
		&p.PatternID,
		&p.Version,
		&p.Priority,
		&p.DisplayName,
		&p.Description,
		&matching,
		&template,
		&applicability,
		&performance,
		&p.IsActive,
		&p.DeprecatedAt,
		&p.DeprecatedReason,
		&p.ReplacedByPatternID,
		&p.BaseVersion,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}

	if err := repository.UnmarshalJSON(matching, &p.Matching, "matching"); err != nil {
		return p, err
	}
	if err := repository.UnmarshalJSON(template, &p.ExtractionTemplate, "extraction_template"); err != nil {
		return p, err
	}
	if err := repository.UnmarshalJSON(applicability, &p.Applicability, "applicability"); err != nil {
		return p, err
	}
	if err := repository.UnmarshalJSON(performance, &p.Performance, "performance"); err != nil {
		return p, err
	}

	return p, nil
}

type jsonColumns struct {
	matching      []byte
	template      []byte
	applicability []byte
	performance   []byte
}

func encodeColumns(p Pattern) (jsonColumns, error) {
	var c jsonColumns
	var err error

	if c.matching, err = repository.JSON(p.Matching); err != nil {
		return c, err
	}
	if c.template, err = repository.JSON(p.ExtractionTemplate); err != nil {
		return c, err
	}
	if c.applicability, err = repository.JSON(p.Applicability); err != nil {
		return c, err
	}
	if c.performance, err = repository.JSON(p.Performance); err != nil {
		return c, err
	}
	return c, nil
}
