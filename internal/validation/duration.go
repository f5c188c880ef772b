package validation

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/odgrim/abathur-swarm/internal/types"
)

// olderThanPattern matches the --older-than duration grammar: an integer
// amount followed by a single unit letter, no sign (the flag is always a
// lookback window, never a future offset).
var olderThanPattern = regexp.MustCompile(`^([0-9]+)([dwmy])$`)

// ParseOlderThanDays parses a --older-than value of the form <N>d|w|m|y
// into a day count suitable for types.PruneFilters.OlderThanDays. "m" is
// treated as 30 days and "y" as 365 days; there is no calendar month/year
// arithmetic here, unlike ParseDeadline.
func ParseOlderThanDays(value string) (int, error) {
	m := olderThanPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("%w: --older-than %q must match <N>d|w|m|y", types.ErrValidation, value)
	}

	amount, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: --older-than %q: %v", types.ErrValidation, value, err)
	}

	switch m[2] {
	case "d":
		return amount, nil
	case "w":
		return amount * 7, nil
	case "m":
		return amount * 30, nil
	case "y":
		return amount * 365, nil
	}
	return 0, fmt.Errorf("%w: --older-than %q must match <N>d|w|m|y", types.ErrValidation, value)
}
