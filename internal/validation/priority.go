package validation

import (
	"strconv"
	"strings"

	"github.com/taskcore/taskcore/internal/types"
)

// numericToPriority translates the teacher's legacy P0-P4 numeric scale
// (internal/validation's ParsePriority in the pack) onto this core's
// four-band low/medium/high/critical enum: P0 is the most urgent in the
// teacher's scheme, so it maps to the top of taskcore's scale. P3 and P4
// both fold onto "low" since taskcore has one fewer band (Open Question
// decision, see DESIGN.md).
var numericToPriority = map[int]types.Priority{
	0: types.PriorityCritical,
	1: types.PriorityHigh,
	2: types.PriorityMedium,
	3: types.PriorityLow,
	4: types.PriorityLow,
}

// ParseLegacyPriority parses a teacher-style "P0".."P4" or "0".."4" token
// into taskcore's Priority enum, returning ok=false for anything outside
// that range or malformed input, grounded on the teacher's
// internal/validation.ParsePriority.
func ParseLegacyPriority(input string) (types.Priority, bool) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(strings.ToUpper(s), "P")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 4 {
		return "", false
	}
	p, ok := numericToPriority[n]
	return p, ok
}
