package validation

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/odgrim/abathur-swarm/internal/types"
)

var nlpParser = buildNLPParser()

func buildNLPParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDeadline resolves a --deadline flag value into an absolute time,
// trying progressively looser layers so an exact format is never required
// of the caller:
//
//  1. RFC3339 ("2025-03-15T14:30:00Z")
//  2. date-only ("2025-03-15", midnight UTC)
//  3. natural language via olebedev/when ("tomorrow", "next friday at 2pm",
//     "in 3 days")
//
// now anchors the natural-language layer's relative expressions.
func ParseDeadline(value string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}

	result, err := nlpParser.Parse(value, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --deadline %q: %v", types.ErrValidation, value, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("%w: --deadline %q could not be parsed as a date or time", types.ErrValidation, value)
	}
	return result.Time, nil
}
