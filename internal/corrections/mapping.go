package corrections

import (
	"github.com/JaimeStill/tenet/pkg/query"
	"github.com/JaimeStill/tenet/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "pattern_corrections", "c").
	Project("id", "ID").
	Project("pattern_id_used", "PatternIDUsed").
	Project("review_action", "ReviewAction").
	Project("original_data", "OriginalData").
	Project("edited_data", "EditedData").
	Project("reviewed_at", "ReviewedAt")

var byReviewed = []query.SortField{
	{Field: "ReviewedAt"},
	{Field: "ID"},
}

func scanRecord(s repository.Scanner) (Record, error) {
	var r Record
	var original, edited []byte

	err := s.Scan(
		&r.ID,
		&r.PatternIDUsed,
		&r.ReviewAction,
		&original,
		&edited,
		&r.ReviewedAt,
	)
	if err != nil {
		return r, err
	}

	if err := repository.UnmarshalJSON(original, &r.OriginalData, "original_data"); err != nil {
		return r, err
	}
	if err := repository.UnmarshalJSON(edited, &r.EditedData, "edited_data"); err != nil {
		return r, err
	}
	return r, nil
}
